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

// handleTask turns one TASK utterance into a single Alert row plus its
// notification.
func (s *Service) handleTask(ctx context.Context, userID uuid.UUID, email, text string) (*in.ChatResult, error) {
	now := time.Now().In(s.extractor.Location())
	env := s.extractor.Extract(text, now)

	fechaReferencia := now.Format("2006-01-02")
	if env.HasDate() {
		fechaReferencia = env.FechaHora.Fecha
	}

	if s.fragmenter.HasMultipleActions(text) {
		env.TipoAccion = domain.ActionMultiple
	}

	subActions, err := s.llm.ExtractSubActions(ctx, text, fechaReferencia, env)

	var alert *domain.Alert
	if err != nil || len(subActions) == 0 {
		if err != nil {
			s.log.WithError(err).Warn("task extraction fell back to raw alert")
		}
		alert = s.fallbackAlert(userID, text, env)
	} else {
		alert = s.aggregateAlert(userID, subActions, env)
	}

	if err := s.createAlert(ctx, userID, email, alert); err != nil {
		return nil, err
	}

	s.reloadMeetLink(ctx, alert)
	s.notifyTask(ctx, userID, alert)

	return &in.ChatResult{
		Respuesta:        s.taskReply(alert),
		Metadata:         alert.Metadata,
		AlertasGeneradas: []string{alert.Title},
	}, nil
}

// aggregateAlert folds the sub-action list into one Alert. The primary
// sub-action is the first agendar_calendario, else the first in order.
func (s *Service) aggregateAlert(userID uuid.UUID, subActions []domain.SubAction, env *domain.Envelope) *domain.Alert {
	primary := subActions[0]
	for _, sa := range subActions {
		if sa.TipoAccion == domain.SuggestAgendarCalendario {
			primary = sa
			break
		}
	}

	scheduled := make([]domain.ScheduledAction, 0, len(subActions))
	for _, sa := range subActions {
		action := domain.ScheduledAction{
			Tipo:                sa.TipoAccion,
			Titulo:              sa.Titulo,
			FechaHoraEspecifica: sa.FechaISO,
			DatoExtra:           sa.DatoExtra,
		}
		if sa.TipoAccion == domain.SuggestCrearMeet && action.DatoExtra == "" {
			action.DatoExtra = domain.MeetPlaceholder
			link := domain.MeetPlaceholder
			env.LinkMeet = &link
		}
		scheduled = append(scheduled, action)
	}
	env.AccionesProgramadas = scheduled
	if len(subActions) > 1 {
		env.TipoAccion = domain.ActionMultiple
	}

	return &domain.Alert{
		UserID:      userID,
		Title:       primary.Titulo,
		Description: primary.Descripcion,
		Priority:    parsePriority(primary.Prioridad),
		Type:        domain.AlertTypeManual,
		State:       domain.AlertStatePending,
		Label:       parseLabel(primary.Etiqueta),
		DueAt:       parseLocalISO(primary.FechaISO, s.extractor.Location()),
		Metadata:    env,
	}
}

// fallbackAlert is the deterministic path when the extraction call
// fails or parses empty.
func (s *Service) fallbackAlert(userID uuid.UUID, text string, env *domain.Envelope) *domain.Alert {
	return &domain.Alert{
		UserID:      userID,
		Title:       "Recordatorio Rápido",
		Description: text,
		Priority:    domain.PriorityMedium,
		Type:        domain.AlertTypeManual,
		State:       domain.AlertStatePending,
		Label:       domain.LabelOthers,
		Metadata:    env,
	}
}

// reloadMeetLink re-reads the stored metadata so a store-side trigger
// may have replaced the placeholder meet link, and mirrors the change
// into the in-memory action list.
func (s *Service) reloadMeetLink(ctx context.Context, alert *domain.Alert) {
	if alert.Metadata == nil || alert.Metadata.LinkMeet == nil {
		return
	}

	stored, err := s.alerts.ReloadMetadata(ctx, alert.ID)
	if err != nil || stored == nil || stored.LinkMeet == nil {
		return
	}
	if *stored.LinkMeet == *alert.Metadata.LinkMeet {
		return
	}

	alert.Metadata.LinkMeet = stored.LinkMeet
	for i := range alert.Metadata.AccionesProgramadas {
		if alert.Metadata.AccionesProgramadas[i].Tipo == domain.SuggestCrearMeet {
			alert.Metadata.AccionesProgramadas[i].DatoExtra = *stored.LinkMeet
		}
	}
}

// notifyTask pushes the stored task with its full action payload.
func (s *Service) notifyTask(ctx context.Context, userID uuid.UUID, alert *domain.Alert) {
	notification := &domain.PushNotification{
		Title: "✅ " + alert.Title,
		Body:  s.taskReply(alert),
	}
	notification.Set(domain.PushKeyTipo, "tarea")
	notification.Set(domain.PushKeyAlertaID, fmt.Sprintf("%d", alert.ID))
	notification.Set(domain.PushKeyAutoExec, "true")
	notification.Set(domain.PushKeyIrA, "agenda")
	notification.Set(domain.PushKeyClickAction, "OPEN_AGENDA")
	if alert.Metadata != nil {
		notification.SetJSON(domain.PushKeyMetadata, alert.Metadata)
		notification.SetJSON(domain.PushKeyAccionesJSON, alert.Metadata.AccionesProgramadas)
	}

	s.sendPush(ctx, userID, notification)
}

// taskReply summarises the stored actions for the chat response and
// the push body.
func (s *Service) taskReply(alert *domain.Alert) string {
	if alert.Metadata == nil || len(alert.Metadata.AccionesProgramadas) == 0 {
		if alert.DueAt != nil {
			return fmt.Sprintf("Agendado: %s para el %s", alert.Title, alert.DueAt.Format("02/01 15:04"))
		}
		return "Agendado: " + alert.Title
	}

	parts := make([]string, 0, len(alert.Metadata.AccionesProgramadas))
	for _, action := range alert.Metadata.AccionesProgramadas {
		when := action.FechaHoraEspecifica
		if t := parseLocalISO(when, s.extractor.Location()); t != nil {
			when = t.Format("02/01 15:04")
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", action.Titulo, when))
	}
	return fmt.Sprintf("Agendado: %s", strings.Join(parts, ", "))
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

func parseLabel(raw string) domain.AlertLabel {
	switch domain.AlertLabel(strings.ToUpper(strings.TrimSpace(raw))) {
	case domain.LabelBusiness, domain.LabelStudy, domain.LabelPartner,
		domain.LabelHealth, domain.LabelFamily, domain.LabelPersonal:
		return domain.AlertLabel(strings.ToUpper(strings.TrimSpace(raw)))
	default:
		return domain.LabelOthers
	}
}

// parseLocalISO parses YYYY-MM-DDTHH:MM:SS in the given zone, also
// tolerating an explicit offset or a missing time part.
func parseLocalISO(raw string, loc *time.Location) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t
		}
	}
	return nil
}
