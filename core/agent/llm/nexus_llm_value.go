package llm

import (
	"context"
	"fmt"

	"nexus_server/core/domain"
)

const valueSystemPrompt = `Eres la memoria de un asistente personal. El mensaje contiene información que vale la pena conservar. Destílala y responde SOLO con JSON:

{
  "resumen_guardar": "resumen de una o dos frases con lo esencial",
  "tipo_evento": "reunion|acuerdo|dato_cliente|personal|salud|otro",
  "aprendizajes_usuario": ["solo hechos ATEMPORALES sobre el usuario o sus contactos; vacío si no hay"],
  "tareas": [
    {
      "titulo": "título corto",
      "prioridad": "ALTA|MEDIA|BAJA",
      "descripcion": "qué hay que hacer y cuándo",
      "etiqueta": "BUSINESS|STUDY|PARTNER|HEALTH|FAMILY|PERSONAL|OTHERS"
    }
  ]
}

Reglas:
- aprendizajes_usuario NO lleva fechas ni eventos puntuales, solo hechos estables ("su socio se llama Marco", "es alérgico al maní").
- tareas solo cuando el texto implica una acción pendiente real; vacío en caso contrario.`

// ProcessValue distils a valuable utterance into a summary, learned
// facts and derived tasks.
func (c *Client) ProcessValue(ctx context.Context, text string, intent *domain.Intent) (*domain.ValueResult, error) {
	userPrompt := text
	if intent != nil && intent.Subtype != "" {
		userPrompt = fmt.Sprintf("Contexto del clasificador: %s (urgencia %s)\n\n%s", intent.Subtype, intent.Urgency, text)
	}

	resp, err := c.CompleteJSON(ctx, valueSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var result domain.ValueResult
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.TipoEvento == "" {
		result.TipoEvento = string(domain.ConversationOther)
	}
	return &result, nil
}
