package in

import (
	"context"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// ChatResult is the assistant's reply to one utterance.
type ChatResult struct {
	Respuesta          string           `json:"respuesta"`
	Metadata           *domain.Envelope `json:"metadata,omitempty"`
	AlertasGeneradas   []string         `json:"alertas_generadas,omitempty"`
	NuevosAprendizajes []string         `json:"nuevos_aprendizajes,omitempty"`
}

// FileAnalysisResult is the document-analysis endpoint output.
type FileAnalysisResult struct {
	Respuesta        string   `json:"respuesta"`
	AlertasGeneradas []string `json:"alertas_generadas,omitempty"`
	NivelRiesgo      string   `json:"nivel_riesgo,omitempty"`
}

// ChatService routes free-text input through the intent gate and the
// downstream processors.
type ChatService interface {
	// HandleChat classifies the utterance and, depending on intent,
	// extracts a task, memorises value, or answers a consulta.
	HandleChat(ctx context.Context, userID uuid.UUID, email, mensaje string, modoProfundo bool) (*ChatResult, error)
	// HandleWebhookMessage is the unauthenticated telco path; traffic
	// is attributed to the configured generic user.
	HandleWebhookMessage(ctx context.Context, body string) error
	// AnalyzeFiles runs one LLM analysis over concatenated uploads and
	// memorises the result.
	AnalyzeFiles(ctx context.Context, userID uuid.UUID, email string, contents []string) (*FileAnalysisResult, error)
}

// AlertService serves the agenda listing and state transitions.
type AlertService interface {
	ListAlerts(ctx context.Context, userID uuid.UUID, estado string) ([]*domain.Alert, error)
	ListPriorityAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, int, error)
	UpdateAlert(ctx context.Context, userID uuid.UUID, id int64, estado, etiqueta *string) (*domain.Alert, error)
}
