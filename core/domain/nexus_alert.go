package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertPriority mirrors the values the extraction prompts emit.
type AlertPriority = Urgency

const (
	PriorityHigh   AlertPriority = UrgencyHigh
	PriorityMedium AlertPriority = UrgencyMedium
	PriorityLow    AlertPriority = UrgencyLow
)

// AlertType says how the alert came to exist.
type AlertType string

const (
	AlertTypeManual       AlertType = "manual"
	AlertTypeAutoDetected AlertType = "auto_detectada"
	AlertTypeChatTask     AlertType = "tarea_ia"
)

// AlertState is the lifecycle state of an agenda item.
type AlertState string

const (
	AlertStatePending   AlertState = "pendiente"
	AlertStateCompleted AlertState = "completada"
	AlertStateDiscarded AlertState = "descartada"
)

// AlertLabel is the closed label set used for briefing priority.
type AlertLabel string

const (
	LabelBusiness AlertLabel = "BUSINESS"
	LabelStudy    AlertLabel = "STUDY"
	LabelPartner  AlertLabel = "PARTNER"
	LabelHealth   AlertLabel = "HEALTH"
	LabelFamily   AlertLabel = "FAMILY"
	LabelPersonal AlertLabel = "PERSONAL"
	LabelOthers   AlertLabel = "OTHERS"
)

// CompletedArchiveDays is the age after which completed alerts drop out
// of the default listing.
const CompletedArchiveDays = 14

// Alert is a durable agenda item derived from a user utterance or
// ingested context.
type Alert struct {
	ID             int64          `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	ConversationID *int64         `json:"conversation_id,omitempty"`
	Title          string         `json:"titulo"`
	Description    string         `json:"descripcion"`
	Priority       AlertPriority  `json:"prioridad"`
	Type           AlertType      `json:"tipo"`
	State          AlertState     `json:"estado"`
	Label          AlertLabel     `json:"etiqueta"`
	DueAt          *time.Time     `json:"fecha_objetivo,omitempty"`
	Metadata       *Envelope      `json:"metadata,omitempty"`
	ArchivedAt     *time.Time     `json:"archived_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ImportanceScore orders alerts inside a briefing digest: protected
// labels first, then priority.
func (a *Alert) ImportanceScore() int {
	score := 0
	switch a.Label {
	case LabelHealth, LabelBusiness, LabelFamily:
		score += 10
	case LabelStudy:
		score += 5
	}
	switch a.Priority {
	case PriorityHigh:
		score += 5
	case PriorityMedium:
		score += 2
	}
	return score
}

// IsPending reports whether the alert still needs attention.
func (a *Alert) IsPending() bool {
	return a.State == AlertStatePending
}

// Complete flips the alert to completed.
func (a *Alert) Complete() {
	a.State = AlertStateCompleted
}

// Discard flips the alert to discarded.
func (a *Alert) Discard() {
	a.State = AlertStateDiscarded
}

// AlertFilter holds list options for alert queries.
type AlertFilter struct {
	UserID uuid.UUID
	State  *AlertState
	// IncludeArchived lifts the 14-day cutoff on completed alerts.
	IncludeArchived bool
	Limit           int
	Offset          int
}
