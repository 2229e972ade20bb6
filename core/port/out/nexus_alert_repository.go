package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// AlertRepository defines agenda-item persistence.
type AlertRepository interface {
	// CreateAlert inserts the row and fills in its id. An FK violation
	// against the user table is surfaced as apperr.CodeDataIntegrity so
	// the caller can auto-provision and retry once.
	CreateAlert(ctx context.Context, alert *domain.Alert) error
	GetAlert(ctx context.Context, userID uuid.UUID, id int64) (*domain.Alert, error)
	ListAlerts(ctx context.Context, filter *domain.AlertFilter) ([]*domain.Alert, error)
	ListPriorityAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, int, error)
	UpdateAlertState(ctx context.Context, userID uuid.UUID, id int64, state *domain.AlertState, label *domain.AlertLabel) (*domain.Alert, error)
	// ListPendingDueBefore feeds the briefing digests.
	ListPendingDueBefore(ctx context.Context, userID uuid.UUID, before time.Time) ([]*domain.Alert, error)
	// ReloadMetadata re-reads one alert's metadata envelope, allowing a
	// store-side trigger to have rewritten the meet link after insert.
	ReloadMetadata(ctx context.Context, id int64) (*domain.Envelope, error)
}
