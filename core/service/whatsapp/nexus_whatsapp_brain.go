package whatsapp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

const (
	// brainDebounceKey scopes the duplicate-run window per user.
	brainDebounceKey = "cerebro:%s"
	// noiseMaxRunes: a chat whose whole unprocessed window is one
	// message under this length is dropped without an LLM call.
	noiseMaxRunes = 10
)

// RunBrain processes every unprocessed message for the user, one LLM
// call per chat. A failing chat is reported and skipped, never aborts
// the pass.
func (s *Service) RunBrain(ctx context.Context, userID uuid.UUID) ([]domain.ChatOperation, error) {
	if s.debounce != nil {
		key := fmt.Sprintf(brainDebounceKey, userID)
		if s.debounce.IsDuplicate(ctx, key) {
			s.log.WithUser(userID.String()).Info("brain pass debounced")
			return nil, nil
		}
		s.debounce.Mark(ctx, key)
	}

	messages, err := s.repo.ListUnprocessed(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].ChatName != messages[j].ChatName {
			return messages[i].ChatName < messages[j].ChatName
		}
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	var operations []domain.ChatOperation
	for start := 0; start < len(messages); {
		end := start
		for end < len(messages) && messages[end].ChatName == messages[start].ChatName {
			end++
		}
		operations = append(operations, s.processChat(ctx, userID, messages[start:end]))
		start = end
	}
	return operations, nil
}

// processChat runs one chat window through the brain and marks its
// messages processed.
func (s *Service) processChat(ctx context.Context, userID uuid.UUID, window []*domain.WhatsAppMessage) domain.ChatOperation {
	chatName := window[0].ChatName
	op := domain.ChatOperation{Chat: chatName, Mensajes: len(window)}
	log := s.log.WithUser(userID.String()).WithField("chat", chatName)

	ids := make([]string, 0, len(window))
	for _, msg := range window {
		ids = append(ids, msg.ID)
	}

	if isNoiseWindow(window) {
		if err := s.repo.MarkProcessed(ctx, userID, ids); err != nil {
			op.Error = err.Error()
		}
		return op
	}

	previous := domain.NoHistorySentinel
	if memory, err := s.repo.GetChatMemory(ctx, userID, chatName); err == nil && memory != nil && memory.CurrentSummary != "" {
		previous = memory.CurrentSummary
	}

	result, err := s.llm.RunBrain(ctx, chatName, previous, buildTranscript(window))
	if err != nil {
		log.WithError(err).Error("brain call failed, chat skipped")
		op.Error = err.Error()
		return op
	}

	if err := s.repo.UpsertChatMemory(ctx, &domain.ChatMemory{
		UserID:         userID,
		ChatName:       chatName,
		CurrentSummary: result.NuevoResumen,
		OpenTopics:     result.Intencion,
		LastUpdated:    time.Now(),
	}); err != nil {
		log.WithError(err).Error("chat memory not stored, chat skipped")
		op.Error = err.Error()
		return op
	}

	lastTS := window[len(window)-1].Timestamp
	for _, task := range result.Tareas {
		if err := s.createBrainAlert(ctx, userID, chatName, lastTS, task); err != nil {
			log.WithError(err).Warn("brain task skipped")
			continue
		}
		op.TareasCreadas++
	}

	if err := s.repo.MarkProcessed(ctx, userID, ids); err != nil {
		log.WithError(err).Error("messages not marked processed")
		op.Error = err.Error()
	}
	return op
}

func (s *Service) createBrainAlert(ctx context.Context, userID uuid.UUID, chatName string, lastTS time.Time, task domain.BrainTask) error {
	now := time.Now().In(s.extractor.Location())
	env := s.extractor.Extract(task.Titulo+". "+task.Descripcion, now)
	if env.Detalles == nil {
		env.Detalles = &domain.EnvelopeDetails{}
	}
	env.Detalles.Tema = chatName
	env.Detalles.Notas = fmt.Sprintf("origen: whatsapp_cerebro; ultimo_mensaje: %s", lastTS.Format(time.RFC3339))

	alert := &domain.Alert{
		UserID:      userID,
		Title:       "⚡ " + task.Titulo,
		Description: task.Descripcion,
		Priority:    parsePriority(task.Prioridad),
		Type:        domain.AlertTypeChatTask,
		State:       domain.AlertStatePending,
		Label:       domain.LabelOthers,
		DueAt:       dueFromEnvelope(env, s.extractor.Location()),
		Metadata:    env,
	}
	return s.alerts.CreateAlert(ctx, alert)
}

// isNoiseWindow drops a chat whose whole window is one short message.
func isNoiseWindow(window []*domain.WhatsAppMessage) bool {
	return len(window) == 1 && len([]rune(strings.TrimSpace(window[0].Content))) < noiseMaxRunes
}

// buildTranscript renders the window chronologically, attributing the
// user's own lines as YO.
func buildTranscript(window []*domain.WhatsAppMessage) string {
	var sb strings.Builder
	for _, msg := range window {
		who := msg.ChatName
		if msg.IsMine {
			who = "YO"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", msg.Timestamp.Format("2006-01-02 15:04"), who, msg.Content)
	}
	return sb.String()
}

func parsePriority(raw string) domain.AlertPriority {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(domain.PriorityHigh):
		return domain.PriorityHigh
	case string(domain.PriorityLow):
		return domain.PriorityLow
	default:
		return domain.PriorityMedium
	}
}

func dueFromEnvelope(env *domain.Envelope, loc *time.Location) *time.Time {
	if env == nil || env.FechaHora == nil {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", env.FechaHora.Fecha+"T"+env.FechaHora.Hora, loc)
	if err != nil {
		return nil
	}
	return &t
}
