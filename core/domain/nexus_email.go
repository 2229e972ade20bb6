package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailAccount links a user to one Gmail mailbox with server-side
// refreshable credentials.
type EmailAccount struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	EmailAddress string    `json:"email_address"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ClientID     string    `json:"-"`
	ClientSecret string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IncomingEmail is one message fetched from the provider, before
// triage.
type IncomingEmail struct {
	GmailMessageID string    `json:"gmail_message_id"`
	ThreadID       string    `json:"thread_id,omitempty"`
	Sender         string    `json:"sender"` // bare address, Name <addr> already stripped
	SenderName     string    `json:"sender_name,omitempty"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	HasImages      bool      `json:"has_images"`
	Date           time.Time `json:"date"`
}

// EmailCategory is the cheap-classification category set.
type EmailCategory string

const (
	EmailCategoryWork         EmailCategory = "trabajo"
	EmailCategoryPersonal     EmailCategory = "personal"
	EmailCategoryNotification EmailCategory = "notificacion"
	EmailCategorySpam         EmailCategory = "spam"
)

// EmailClassification is the Layer 2 cheap LLM result.
type EmailClassification struct {
	RequiresAction bool          `json:"requiere_accion"`
	Category       EmailCategory `json:"categoria"`
	Urgency        string        `json:"urgencia"` // alta|media|baja
	ShortSummary   string        `json:"resumen_corto"`
}

// EmailDeepAnalysis is the Layer 3 deep LLM result.
type EmailDeepAnalysis struct {
	RespuestaSugerida string   `json:"respuesta_sugerida"`
	TonoDetectado     string   `json:"tono_detectado"`
	AccionesPendientes []string `json:"acciones_pendientes"`
	FechaLimite       string   `json:"fecha_limite,omitempty"` // YYYY-MM-DD
	PrioridadFinal    string   `json:"prioridad_final"`
	ContextoAdicional string   `json:"contexto_adicional,omitempty"`
	CambioTono        bool     `json:"cambio_tono"`
}

// AnalyzedEmail is the per-email triage record.
type AnalyzedEmail struct {
	ID              int64          `json:"id"`
	UserID          uuid.UUID      `json:"user_id"`
	EmailAccountID  int64          `json:"email_account_id"`
	GmailMessageID  string         `json:"gmail_message_id"`
	Sender          string         `json:"remitente"`
	Subject         string         `json:"asunto"`
	Date            time.Time      `json:"fecha"`
	ImportanceScore int            `json:"puntuacion_importancia"` // 0..100
	Category        EmailCategory  `json:"categoria"`
	Urgency         string         `json:"urgencia"`
	RequiresAction  bool           `json:"requiere_accion"`
	SuggestedReply  string         `json:"respuesta_sugerida,omitempty"`
	DetectedTone    string         `json:"tono_detectado,omitempty"`
	PendingActions  []string       `json:"acciones_pendientes,omitempty"`
	DueDate         *time.Time     `json:"fecha_limite,omitempty"`
	Read            bool           `json:"leido"`
	Answered        bool           `json:"respondido"`
	AnsweredAt      *time.Time     `json:"fecha_respuesta,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// IsCritical reports whether the analysis should raise a push.
func (e *AnalyzedEmail) IsCritical() bool {
	return e.RequiresAction && (e.Urgency == "alta" || e.ImportanceScore > 70)
}

// SenderProfile aggregates the user's relationship with one email
// correspondent.
type SenderProfile struct {
	ID              int64     `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	EmailAccountID  int64     `json:"email_account_id"`
	Sender          string    `json:"sender"`
	TotalEmails     int       `json:"total_emails"`
	FirstContact    time.Time `json:"first_contact"`
	LastContact     time.Time `json:"last_contact"`
	FrequencyDays   float64   `json:"frequency_days"`
	TypicalHour     int       `json:"typical_hour"`
	AvgLength       int       `json:"avg_length"`
	TopKeywords     []string  `json:"top_keywords"`
	HabitualTone    string    `json:"habitual_tone,omitempty"`
	PrimaryTopic    string    `json:"primary_topic,omitempty"`
	ImportanceLevel string    `json:"importance_level,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SenderContext is the recent-history snapshot fed to deep analysis.
type SenderContext struct {
	TotalEmails    int      `json:"total_emails"`
	LastContact    *time.Time `json:"last_contact,omitempty"`
	CommonTone     string   `json:"common_tone,omitempty"`
	CommonCategory string   `json:"common_category,omitempty"`
	RecentSubjects []string `json:"recent_subjects,omitempty"`
	PriorReplies   []string `json:"prior_replies,omitempty"`
	FirstContact   bool     `json:"first_contact"`
}

// TriageStats summarises one sincronizar-correos run.
type TriageStats struct {
	Total        int `json:"total"`
	Layer1Drops  int `json:"descartados_capa1"`
	Layer2Drops  int `json:"descartados_capa2"`
	Analyzed     int `json:"analizados"`
	Duplicates   int `json:"duplicados"`
	LLMCalls     int `json:"llamadas_llm"`
	PushesSent   int `json:"notificaciones"`
}

// SavingsPct is the fraction of emails that never reached an LLM.
func (s *TriageStats) SavingsPct() float64 {
	if s.Total == 0 {
		return 0
	}
	return 1 - float64(s.LLMCalls)/float64(s.Total)
}
