package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

const (
	deepConversationLimit  = 100
	deepAlertLimit         = 30
	quickConversationLimit = 15
)

// answerConsulta assembles the user's context and asks the model.
// Read-only: it never writes. Every lookup failure degrades to a
// smaller context rather than an error.
func (s *Service) answerConsulta(ctx context.Context, userID uuid.UUID, question string, deep bool) string {
	contextBlock := s.buildContext(ctx, userID, question, deep)

	answer, err := s.llm.AnswerConsulta(ctx, question, contextBlock)
	if err != nil {
		s.log.WithError(err).Warn("consulta fell back to stored context")
		if recall := s.memory.Recall(ctx, userID, question); recall != "" {
			return "No puedo consultar al asistente ahora mismo. Esto es lo que recuerdo:\n" + recall
		}
		return "No puedo responder en este momento. Intenta de nuevo en unos minutos."
	}
	return answer
}

func (s *Service) buildContext(ctx context.Context, userID uuid.UUID, question string, deep bool) string {
	var sb strings.Builder

	if facts, err := s.facts.ListFacts(ctx, userID); err == nil && len(facts) > 0 {
		sb.WriteString("Hechos del usuario:\n")
		for _, fact := range facts {
			fmt.Fprintf(&sb, "- %s\n", fact.FactText)
		}
	}

	if deep {
		s.appendConversations(ctx, &sb, userID, deepConversationLimit)
		s.appendAlerts(ctx, &sb, userID, nil, deepAlertLimit)
	} else {
		pending := domain.AlertStatePending
		s.appendAlerts(ctx, &sb, userID, &pending, 0)
		s.appendConversations(ctx, &sb, userID, quickConversationLimit)
	}

	if recall := s.memory.Recall(ctx, userID, question); recall != "" {
		sb.WriteString(recall)
	}

	if sb.Len() == 0 {
		return "Sin contexto previo del usuario."
	}
	return sb.String()
}

// appendConversations renders recent memories oldest-first so the
// model reads them chronologically.
func (s *Service) appendConversations(ctx context.Context, sb *strings.Builder, userID uuid.UUID, limit int) {
	convs, err := s.convs.ListRecentConversations(ctx, userID, limit)
	if err != nil || len(convs) == 0 {
		return
	}

	sb.WriteString("Conversaciones memorizadas:\n")
	for i := len(convs) - 1; i >= 0; i-- {
		fmt.Fprintf(sb, "- [%s] %s\n", convs[i].CreatedAt.Format("2006-01-02"), convs[i].Summary)
	}
}

func (s *Service) appendAlerts(ctx context.Context, sb *strings.Builder, userID uuid.UUID, state *domain.AlertState, limit int) {
	alerts, err := s.alerts.ListAlerts(ctx, &domain.AlertFilter{
		UserID: userID,
		State:  state,
		Limit:  limit,
	})
	if err != nil || len(alerts) == 0 {
		return
	}

	sb.WriteString("Alertas:\n")
	for i := len(alerts) - 1; i >= 0; i-- {
		alert := alerts[i]
		line := fmt.Sprintf("- [%s/%s] %s", alert.State, alert.Priority, alert.Title)
		if alert.DueAt != nil {
			line += " para el " + alert.DueAt.Format("2006-01-02 15:04")
		}
		sb.WriteString(line + "\n")
	}
}
