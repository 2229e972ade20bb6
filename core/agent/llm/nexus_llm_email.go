package llm

import (
	"context"
	"fmt"
	"strings"

	"nexus_server/core/domain"
)

const emailClassifySystemPrompt = `Eres el clasificador rápido de correos de un asistente personal. Analiza el correo y responde SOLO con JSON:

{
  "requiere_accion": true|false,
  "categoria": "trabajo|personal|notificacion|spam",
  "urgencia": "alta|media|baja",
  "resumen_corto": "una frase"
}

requiere_accion es true solo cuando el usuario debe responder o hacer algo concreto.`

// ClassifyEmail is the Layer 2 cheap call. Body is truncated hard; the
// deep pass sees the full text later if it triggers.
func (c *Client) ClassifyEmail(ctx context.Context, email *domain.IncomingEmail) (*domain.EmailClassification, error) {
	userPrompt := fmt.Sprintf("De: %s <%s>\nAsunto: %s\n\nCuerpo:\n%s",
		email.SenderName, email.Sender, email.Subject, truncate(email.Body, 1500))

	resp, err := c.CompleteJSONMini(ctx, emailClassifySystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var result domain.EmailClassification
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.Category == "" {
		result.Category = domain.EmailCategoryNotification
	}
	if result.Urgency == "" {
		result.Urgency = "baja"
	}
	return &result, nil
}

const emailDeepSystemPrompt = `Eres el analista profundo de correos de un asistente personal. Este correo requiere atención; analízalo con el historial del remitente y responde SOLO con JSON:

{
  "respuesta_sugerida": "borrador de respuesta en el tono adecuado",
  "tono_detectado": "formal|cordial|urgente|molesto|neutro",
  "acciones_pendientes": ["acción concreta 1", "acción concreta 2"],
  "fecha_limite": "YYYY-MM-DD o cadena vacía",
  "prioridad_final": "alta|media|baja",
  "contexto_adicional": "lo que el usuario debería saber antes de responder",
  "cambio_tono": true|false
}

cambio_tono es true cuando el tono de este correo difiere notablemente del tono habitual del remitente.`

// AnalyzeEmailDeep is the Layer 3 call with sender history folded in.
func (c *Client) AnalyzeEmailDeep(ctx context.Context, email *domain.IncomingEmail, senderCtx *domain.SenderContext) (*domain.EmailDeepAnalysis, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "De: %s <%s>\nAsunto: %s\nFecha: %s\n",
		email.SenderName, email.Sender, email.Subject, email.Date.Format("2006-01-02 15:04"))

	if senderCtx != nil && !senderCtx.FirstContact {
		sb.WriteString("\nHistorial del remitente:\n")
		fmt.Fprintf(&sb, "- Correos previos: %d\n", senderCtx.TotalEmails)
		if senderCtx.LastContact != nil {
			fmt.Fprintf(&sb, "- Último contacto: %s\n", senderCtx.LastContact.Format("2006-01-02"))
		}
		if senderCtx.CommonTone != "" {
			fmt.Fprintf(&sb, "- Tono habitual: %s\n", senderCtx.CommonTone)
		}
		if senderCtx.CommonCategory != "" {
			fmt.Fprintf(&sb, "- Categoría habitual: %s\n", senderCtx.CommonCategory)
		}
		for _, subject := range senderCtx.RecentSubjects {
			fmt.Fprintf(&sb, "- Asunto previo: %s\n", subject)
		}
		for _, reply := range senderCtx.PriorReplies {
			fmt.Fprintf(&sb, "- Respuesta previa del usuario: %s\n", truncate(reply, 300))
		}
	} else {
		sb.WriteString("\nPrimer contacto con este remitente.\n")
	}

	fmt.Fprintf(&sb, "\nCuerpo:\n%s", truncate(email.Body, 4000))

	resp, err := c.CompleteJSON(ctx, emailDeepSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var result domain.EmailDeepAnalysis
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.PrioridadFinal == "" {
		result.PrioridadFinal = "media"
	}
	return &result, nil
}

const senderSummarySystemPrompt = `Eres el perfilador de remitentes de un asistente de correo. A partir de una muestra de asuntos y fragmentos de un mismo remitente responde SOLO con JSON:

{
  "tono": "formal|cordial|urgente|neutro",
  "tema": "tema principal en dos o tres palabras",
  "importancia": "alta|media|baja"
}`

// SummarizeSender profiles one historic top-sender from a small
// message sample. One cheap call per sender.
func (c *Client) SummarizeSender(ctx context.Context, sender string, samples []string) (tone, topic, importance string, err error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Remitente: %s\n\nMuestra:\n", sender)
	for _, sample := range samples {
		fmt.Fprintf(&sb, "- %s\n", truncate(sample, 200))
	}

	resp, err := c.CompleteJSONMini(ctx, senderSummarySystemPrompt, sb.String())
	if err != nil {
		return "", "", "", err
	}

	var result struct {
		Tono        string `json:"tono"`
		Tema        string `json:"tema"`
		Importancia string `json:"importancia"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return "", "", "", err
	}
	return result.Tono, result.Tema, result.Importancia, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
