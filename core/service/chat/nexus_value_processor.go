package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/in"
)

// handleValue distils a valuable utterance into memory: one
// Conversation, learned facts and derived task alerts.
func (s *Service) handleValue(ctx context.Context, userID uuid.UUID, email, text string, intent *domain.Intent, origin domain.ConversationOrigin) (*in.ChatResult, error) {
	result, err := s.llm.ProcessValue(ctx, text, intent)
	if err != nil {
		// Keep the raw text rather than lose the information.
		s.log.WithError(err).Warn("value processing fell back to raw summary")
		result = &domain.ValueResult{
			ResumenGuardar: truncateTitle(text),
			TipoEvento:     string(domain.ConversationOther),
		}
	}

	conv := &domain.Conversation{
		UserID:  userID,
		Summary: result.ResumenGuardar,
		Type:    parseConversationType(result.TipoEvento),
		Urgency: intent.Urgency,
		Origin:  origin,
	}
	s.memory.AttachEmbedding(ctx, conv)
	if err := s.createConversation(ctx, userID, email, conv); err != nil {
		return nil, err
	}

	for _, factText := range result.AprendizajesUsuario {
		fact := &domain.ProfileFact{
			UserID:    userID,
			FactText:  factText,
			Category:  domain.FactCategoryAuto,
			OriginRef: fmt.Sprintf("conv_%d", conv.ID),
		}
		if err := s.facts.UpsertFact(ctx, fact); err != nil {
			s.log.WithError(err).Warn("learned fact skipped")
		}
	}

	now := time.Now().In(s.extractor.Location())
	var createdTitles []string
	var createdAlerts []*domain.Alert
	for _, task := range result.Tareas {
		env := s.extractor.Extract(task.Titulo+". "+task.Descripcion, now)
		convID := conv.ID
		alert := &domain.Alert{
			UserID:         userID,
			ConversationID: &convID,
			Title:          task.Titulo,
			Description:    task.Descripcion,
			Priority:       parsePriority(task.Prioridad),
			Type:           domain.AlertTypeAutoDetected,
			State:          domain.AlertStatePending,
			Label:          parseLabel(task.Etiqueta),
			DueAt:          dueFromEnvelope(env, s.extractor.Location()),
			Metadata:       env,
		}
		if err := s.createAlert(ctx, userID, email, alert); err != nil {
			s.log.WithError(err).Warn("derived task skipped")
			continue
		}
		createdTitles = append(createdTitles, alert.Title)
		createdAlerts = append(createdAlerts, alert)
	}

	if s.shouldNotifyValue(text, createdAlerts) {
		s.notifyValueTasks(ctx, userID, createdAlerts)
	}

	return &in.ChatResult{
		Respuesta:          "💾 Guardado: " + result.ResumenGuardar,
		AlertasGeneradas:   createdTitles,
		NuevosAprendizajes: result.AprendizajesUsuario,
	}, nil
}

// shouldNotifyValue applies the value-path push policy: confirmation
// keyword in the utterance or any derived task at high priority.
func (s *Service) shouldNotifyValue(text string, alerts []*domain.Alert) bool {
	if len(alerts) == 0 {
		return false
	}
	if containsAny(strings.ToLower(text), confirmKeywords) {
		return true
	}
	for _, alert := range alerts {
		if alert.Priority == domain.PriorityHigh {
			return true
		}
	}
	return false
}

// notifyValueTasks sends one notification: full detail for a single
// task, a grouped summary otherwise.
func (s *Service) notifyValueTasks(ctx context.Context, userID uuid.UUID, alerts []*domain.Alert) {
	var notification *domain.PushNotification

	if len(alerts) == 1 {
		alert := alerts[0]
		notification = &domain.PushNotification{
			Title: "📌 " + alert.Title,
			Body:  alert.Description,
		}
		notification.Set(domain.PushKeyAlertaID, fmt.Sprintf("%d", alert.ID))
		if alert.Metadata != nil {
			notification.SetJSON(domain.PushKeyMetadata, alert.Metadata)
		}
	} else {
		titles := make([]string, 0, 3)
		for _, alert := range alerts {
			if len(titles) == 3 {
				break
			}
			titles = append(titles, alert.Title)
		}
		body := strings.Join(titles, ", ")
		if rest := len(alerts) - len(titles); rest > 0 {
			body = fmt.Sprintf("%s… y %d más", body, rest)
		}
		notification = &domain.PushNotification{
			Title: fmt.Sprintf("📌 %d tareas detectadas", len(alerts)),
			Body:  body,
		}
	}

	notification.Set(domain.PushKeyTipo, "tareas_detectadas")
	notification.Set(domain.PushKeyIrA, "agenda")
	s.sendPush(ctx, userID, notification)
}

func parseConversationType(raw string) domain.ConversationType {
	switch domain.ConversationType(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.ConversationMeeting, domain.ConversationAgreement,
		domain.ConversationClientData, domain.ConversationPersonal,
		domain.ConversationHealth:
		return domain.ConversationType(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return domain.ConversationOther
	}
}
