package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/in"
	"nexus_server/core/port/out"
	"nexus_server/pkg/apperr"
)

// AlertService serves the agenda views and state transitions.
type AlertService struct {
	alerts out.AlertRepository
}

func NewAlertService(alerts out.AlertRepository) in.AlertService {
	return &AlertService{alerts: alerts}
}

// ListAlerts filters by state: "pendiente", "completada", "descartada"
// or "todas". Completed alerts older than the archive window only show
// up under "todas".
func (s *AlertService) ListAlerts(ctx context.Context, userID uuid.UUID, estado string) ([]*domain.Alert, error) {
	filter := &domain.AlertFilter{UserID: userID}

	switch strings.ToLower(strings.TrimSpace(estado)) {
	case "", "todas":
		filter.IncludeArchived = true
	case string(domain.AlertStatePending):
		state := domain.AlertStatePending
		filter.State = &state
	case string(domain.AlertStateCompleted):
		state := domain.AlertStateCompleted
		filter.State = &state
	case string(domain.AlertStateDiscarded):
		state := domain.AlertStateDiscarded
		filter.State = &state
	default:
		return nil, apperr.InvalidInput("estado", "must be pendiente, completada, descartada or todas")
	}

	return s.alerts.ListAlerts(ctx, filter)
}

func (s *AlertService) ListPriorityAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, int, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.alerts.ListPriorityAlerts(ctx, userID, limit)
}

// UpdateAlert patches state and/or label on one owned alert.
func (s *AlertService) UpdateAlert(ctx context.Context, userID uuid.UUID, id int64, estado, etiqueta *string) (*domain.Alert, error) {
	if estado == nil && etiqueta == nil {
		return nil, apperr.BadRequest("nothing to update")
	}

	var state *domain.AlertState
	if estado != nil {
		parsed := domain.AlertState(strings.ToLower(strings.TrimSpace(*estado)))
		switch parsed {
		case domain.AlertStatePending, domain.AlertStateCompleted, domain.AlertStateDiscarded:
			state = &parsed
		default:
			return nil, apperr.InvalidInput("estado", "must be pendiente, completada or descartada")
		}
	}

	var label *domain.AlertLabel
	if etiqueta != nil {
		parsed := parseLabel(*etiqueta)
		label = &parsed
	}

	return s.alerts.UpdateAlertState(ctx, userID, id, state, label)
}
