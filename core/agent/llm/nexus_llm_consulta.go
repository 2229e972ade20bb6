package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const consultaSystemPrompt = `Eres NEXUS, el asistente personal del usuario. Respondes en español, directo y útil, sin relleno.

Recibes un bloque de contexto con los datos que el asistente conoce del usuario: hechos de perfil, conversaciones memorizadas, alertas y recuerdos semánticos. Usa ese contexto primero. Solo usa la herramienta buscar_web cuando la pregunta requiera información externa o actual que el contexto no cubre.

No inventes datos del usuario que no estén en el contexto.`

// AnswerConsulta answers the question over the assembled context with
// the web-search tool available. A single tool round: when the model
// requests searches they are executed and folded into one follow-up
// completion.
func (c *Client) AnswerConsulta(ctx context.Context, question, contextBlock string) (string, error) {
	userPrompt := fmt.Sprintf("%s\n\nPregunta del usuario: %s", contextBlock, question)

	content, calls, err := c.CompleteWithTools(ctx, consultaSystemPrompt,
		[]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: userPrompt}},
		c.tools.Definitions())
	if err != nil {
		return "", err
	}
	if len(calls) == 0 {
		return strings.TrimSpace(content), nil
	}

	var results strings.Builder
	results.WriteString("Resultados de las búsquedas solicitadas:\n")
	for _, call := range calls {
		fmt.Fprintf(&results, "- %s(%v): %s\n", call.Name, call.Args["query"], c.tools.Execute(ctx, call))
	}

	answer, err := c.Complete(ctx, consultaSystemPrompt,
		userPrompt+"\n\n"+results.String()+"\nResponde ahora la pregunta con esta información.")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
