package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationType classifies what kind of episode was memorised.
type ConversationType string

const (
	ConversationMeeting    ConversationType = "reunion"
	ConversationAgreement  ConversationType = "acuerdo"
	ConversationClientData ConversationType = "dato_cliente"
	ConversationPersonal   ConversationType = "personal"
	ConversationHealth     ConversationType = "salud"
	ConversationOther      ConversationType = "otro"
)

// Urgency levels shared by conversations, alerts and email analysis.
type Urgency string

const (
	UrgencyHigh   Urgency = "ALTA"
	UrgencyMedium Urgency = "MEDIA"
	UrgencyLow    Urgency = "BAJA"
)

// ConversationOrigin says which ingestion path produced the row.
type ConversationOrigin string

const (
	OriginAppManual       ConversationOrigin = "app_manual"
	OriginAppFile         ConversationOrigin = "app_file"
	OriginWhatsAppWebhook ConversationOrigin = "whatsapp_webhook"
	OriginWhatsAppBrain   ConversationOrigin = "whatsapp_brain"
	OriginAppChat         ConversationOrigin = "app_chat"
	OriginEmailTriage     ConversationOrigin = "email_triage"
)

// Conversation is one unit of long-term episodic memory. Rows are
// immutable after insert.
type Conversation struct {
	ID        int64              `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	Summary   string             `json:"summary"`
	Type      ConversationType   `json:"type"`
	Urgency   Urgency            `json:"urgency"`
	Origin    ConversationOrigin `json:"origin"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	Embedding []float64          `json:"-"`
	CreatedAt time.Time          `json:"created_at"`
}

// HasEmbedding reports whether the row is indexed for semantic search.
func (c *Conversation) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ProfileFact is one atemporal statement about the user. Idempotent on
// (user_id, fact_text).
type ProfileFact struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	FactText  string    `json:"fact_text"`
	Category  string    `json:"category"`
	OriginRef string    `json:"origin_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FactCategoryAuto marks facts extracted automatically by the value
// processor rather than typed by the user.
const FactCategoryAuto = "AUTO_IA"
