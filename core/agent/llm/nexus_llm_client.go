// Package llm is the OpenAI-backed language collaborator: one client,
// one file per prompt family. Every method is a single completion;
// callers own retries and fallbacks.
package llm

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	openai "github.com/sashabaranov/go-openai"

	"nexus_server/core/agent/tools"
	"nexus_server/pkg/apperr"
)

const (
	DefaultModel          = "gpt-4o"
	DefaultMiniModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

type Client struct {
	api            *openai.Client
	model          string
	miniModel      string
	embeddingModel string
	maxTokens      int
	temperature    float32
	tools          *tools.Registry
}

type Config struct {
	APIKey         string
	Model          string
	MiniModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
}

func NewClient(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	miniModel := cfg.MiniModel
	if miniModel == "" {
		miniModel = DefaultMiniModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	registry := tools.NewRegistry()
	registry.Register(tools.NewWebSearchTool())

	return &Client{
		api:            openai.NewClient(cfg.APIKey),
		model:          model,
		miniModel:      miniModel,
		embeddingModel: embeddingModel,
		maxTokens:      maxTokens,
		temperature:    float32(temperature),
		tools:          registry,
	}
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, c.model, systemPrompt, userPrompt, false)
}

// CompleteJSON forces JSON-object mode on the full model.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, c.model, systemPrompt, userPrompt, true)
}

// CompleteJSONMini forces JSON-object mode on the cheap model.
func (c *Client) CompleteJSONMini(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, c.miniModel, systemPrompt, userPrompt, true)
}

func (c *Client) complete(ctx context.Context, model, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperr.LLMError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.LLMError("empty completion", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteWithTools runs one completion with function calling enabled
// and returns the text plus any requested tool calls.
func (c *Client) CompleteWithTools(ctx context.Context, systemPrompt string, messages []openai.ChatCompletionMessage, toolDefs []tools.ToolDefinition) (string, []tools.ToolCall, error) {
	openaiTools := make([]openai.Tool, len(toolDefs))
	for i, t := range toolDefs {
		openaiTools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		}, messages...),
		Tools: openaiTools,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", nil, apperr.LLMError("tool completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, apperr.LLMError("empty completion", nil)
	}

	choice := resp.Choices[0]
	var calls []tools.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			continue
		}
		calls = append(calls, tools.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return choice.Message.Content, calls, nil
}

// Embed requests one embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, apperr.LLMError("embedding failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperr.LLMError("empty embedding response", nil)
	}

	out := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float64(v)
	}
	return out, nil
}

// decodeJSON strips optional markdown fencing and unmarshals into dst.
func decodeJSON(raw string, dst any) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return apperr.LLMError("unparseable model response", err)
	}
	return nil
}
