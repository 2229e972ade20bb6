package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

const searchEndpoint = "https://api.duckduckgo.com/"

// WebSearchTool answers factual queries through the DuckDuckGo
// instant-answer API. No key required; results are abstracts, not full
// result pages.
type WebSearchTool struct {
	client *http.Client
}

func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *WebSearchTool) Name() string { return "buscar_web" }

func (t *WebSearchTool) Description() string {
	return "Busca información actual en la web. Úsala solo cuando la respuesta requiera datos que no están en el contexto del usuario."
}

func (t *WebSearchTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "query", Type: "string", Description: "Consulta de búsqueda", Required: true},
	}
}

type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	query := getStringArg(args, "query", "")
	if query == "" {
		return &ToolResult{Success: false, Error: "query is required"}, nil
	}

	endpoint := searchEndpoint + "?" + url.Values{
		"q":           {query},
		"format":      {"json"},
		"no_redirect": {"1"},
		"no_html":     {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}, nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ToolResult{Success: false, Error: fmt.Sprintf("search returned %d", resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}, nil
	}

	var answer instantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return &ToolResult{Success: false, Error: err.Error()}, nil
	}

	var snippets []map[string]string
	if answer.Answer != "" {
		snippets = append(snippets, map[string]string{"text": answer.Answer})
	}
	if answer.AbstractText != "" {
		snippets = append(snippets, map[string]string{
			"text": answer.AbstractText,
			"url":  answer.AbstractURL,
		})
	}
	for _, topic := range answer.RelatedTopics {
		if len(snippets) >= 5 {
			break
		}
		if topic.Text != "" {
			snippets = append(snippets, map[string]string{
				"text": topic.Text,
				"url":  topic.FirstURL,
			})
		}
	}

	if len(snippets) == 0 {
		return &ToolResult{
			Success: true,
			Message: fmt.Sprintf("Sin resultados para '%s'", query),
		}, nil
	}

	return &ToolResult{
		Success: true,
		Data:    snippets,
		Message: fmt.Sprintf("%d resultados para '%s'", len(snippets), query),
	}, nil
}
