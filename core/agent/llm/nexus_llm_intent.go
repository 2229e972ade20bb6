package llm

import (
	"context"

	"nexus_server/core/domain"
)

const intentSystemPrompt = `Eres el clasificador de intención de un asistente personal. Analiza el mensaje del usuario y responde SOLO con JSON.

Clasifica en UNO de tres tipos:
- NOISE: saludos, charla trivial, mensajes sin contenido accionable ni valor futuro.
- TASK: el usuario pide crear un recordatorio, alarma, cita, reunión, pago o acción concreta con referencia temporal.
- VALUE: información que vale la pena recordar (datos de clientes, acuerdos, hechos personales, salud, aprendizajes) aunque no pida nada explícito.

Responde con este formato exacto:
{
  "tipo": "NOISE|TASK|VALUE",
  "subtipo": "descripción corta en una palabra o dos",
  "urgencia": "ALTA|MEDIA|BAJA"
}`

// ClassifyIntent routes one utterance through the intent gate. Uses
// the cheap model; the caller applies the rule-based fallback on error.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (*domain.Intent, error) {
	resp, err := c.CompleteJSONMini(ctx, intentSystemPrompt, text)
	if err != nil {
		return nil, err
	}

	var intent domain.Intent
	if err := decodeJSON(resp, &intent); err != nil {
		return nil, err
	}

	switch intent.Kind {
	case domain.IntentNoise, domain.IntentTask, domain.IntentValue:
	default:
		intent.Kind = domain.IntentNoise
	}
	if intent.Urgency == "" {
		intent.Urgency = domain.UrgencyMedium
	}
	return &intent, nil
}
