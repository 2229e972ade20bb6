package llm

import (
	"context"
	"fmt"

	"nexus_server/core/domain"
)

const brainSystemPrompt = `Eres el cerebro de WhatsApp de un asistente personal. Recibes el resumen previo de un chat y los mensajes nuevos. Avanza el resumen y detecta tareas reales. Responde SOLO con JSON:

{
  "nuevo_resumen": "resumen actualizado del chat en dos o tres frases, integrando el previo",
  "tareas": [
    {"titulo": "título corto", "descripcion": "qué y cuándo", "prioridad": "ALTA|MEDIA|BAJA"}
  ],
  "intencion": "qué busca la otra persona o qué está pendiente, en una frase"
}

Reglas:
- Las líneas YO son mensajes del usuario; las demás son del contacto.
- Una tarea solo cuando hay un compromiso o pedido concreto pendiente. Charla social no genera tareas.
- Si no hay nada nuevo relevante, nuevo_resumen repite lo esencial del previo y tareas queda vacío.`

// RunBrain distils one chat window against its running summary.
func (c *Client) RunBrain(ctx context.Context, chatName, previousSummary, transcript string) (*domain.BrainResult, error) {
	userPrompt := fmt.Sprintf("Chat: %s\n\nResumen previo:\n%s\n\nMensajes nuevos:\n%s",
		chatName, previousSummary, transcript)

	resp, err := c.CompleteJSON(ctx, brainSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var result domain.BrainResult
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.NuevoResumen == "" {
		result.NuevoResumen = previousSummary
	}
	return &result, nil
}
