package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"nexus_server/core/domain"
	"nexus_server/pkg/apperr"
)

const tasksSystemPrompt = `Eres el extractor de tareas de un asistente personal peruano. A partir del mensaje del usuario produce un ARRAY JSON de sub-acciones, sin texto adicional.

Cada sub-acción tiene EXACTAMENTE estos campos:
{
  "titulo": "título corto y accionable",
  "descripcion": "descripción con fecha y hora absolutas y detalle contextual",
  "tipo_accion": "poner_alarma|agendar_calendario|crear_meet|ver_ubicacion",
  "prioridad": "ALTA|MEDIA",
  "etiqueta": "BUSINESS|STUDY|PARTNER|HEALTH|FAMILY|PERSONAL|OTHERS",
  "fecha_iso": "YYYY-MM-DDTHH:MM:SS",
  "dato_extra": "link, dirección o teléfono si aplica, si no cadena vacía"
}

Reglas:
- fecha_iso es OBLIGATORIA en hora local de Lima. Resuelve expresiones relativas contra la fecha de referencia.
- Si el mensaje pide varias cosas, emite una sub-acción por cada una, en el orden del mensaje.
- Una videollamada o reunión virtual es crear_meet; una reunión presencial es agendar_calendario.
- Responde SOLO el array JSON, empezando por [ y terminando en ].`

// ExtractSubActions issues the strict-schema extraction call and
// returns the ordered sub-action list.
func (c *Client) ExtractSubActions(ctx context.Context, text, fechaReferencia string, envelope *domain.Envelope) ([]domain.SubAction, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fecha de referencia: %s\n", fechaReferencia)
	if envelope != nil {
		if envelope.FechaHora != nil {
			fmt.Fprintf(&sb, "Fecha detectada: %s\n", envelope.FechaHora.Timestamp)
		}
		if envelope.HasLocation() {
			fmt.Fprintf(&sb, "Ubicación detectada: %s\n", envelope.Ubicacion.Direccion)
		}
		for _, p := range envelope.Personas {
			fmt.Fprintf(&sb, "Persona detectada: %s %s %s\n", p.Nombre, p.Telefono, p.Email)
		}
	}
	fmt.Fprintf(&sb, "\nMensaje: %s", text)

	resp, err := c.Complete(ctx, tasksSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	actions, err := decodeSubActions(resp)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, apperr.LLMError("no sub-actions extracted", nil)
	}
	return actions, nil
}

// decodeSubActions accepts the bare array or a single-key object
// wrapper, which some completions emit despite the prompt.
func decodeSubActions(raw string) ([]domain.SubAction, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var actions []domain.SubAction
	if err := json.Unmarshal([]byte(raw), &actions); err == nil {
		return actions, nil
	}

	var wrapped map[string][]domain.SubAction
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, apperr.LLMError("unparseable sub-action response", err)
	}
	for _, actions := range wrapped {
		return actions, nil
	}
	return nil, apperr.LLMError("empty sub-action response", nil)
}
