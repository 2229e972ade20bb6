package out

import (
	"context"

	"nexus_server/core/domain"
)

// FileAnalysis is the structured result of the multipart document
// analysis endpoint.
type FileAnalysis struct {
	ResumenRapido   string   `json:"resumen_rapido"`
	AlertasUrgentes []string `json:"alertas_urgentes"`
	NivelRiesgo     string   `json:"nivel_riesgo"` // alto|medio|bajo
}

// LLMClient is the process-wide language-model collaborator. Every
// method is a single call; callers own the fallback when it errors.
type LLMClient interface {
	ClassifyIntent(ctx context.Context, text string) (*domain.Intent, error)
	// ExtractSubActions demands a JSON array of dated sub-actions for
	// the task extractor.
	ExtractSubActions(ctx context.Context, text, fechaReferencia string, envelope *domain.Envelope) ([]domain.SubAction, error)
	ProcessValue(ctx context.Context, text string, intent *domain.Intent) (*domain.ValueResult, error)
	// AnswerConsulta answers over an assembled context block with the
	// web-search tool available.
	AnswerConsulta(ctx context.Context, question, contextBlock string) (string, error)
	ClassifyEmail(ctx context.Context, email *domain.IncomingEmail) (*domain.EmailClassification, error)
	AnalyzeEmailDeep(ctx context.Context, email *domain.IncomingEmail, senderCtx *domain.SenderContext) (*domain.EmailDeepAnalysis, error)
	// SummarizeSender produces tone/topic/importance for one historic
	// top-sender from a small message sample.
	SummarizeSender(ctx context.Context, sender string, samples []string) (tone, topic, importance string, err error)
	RunBrain(ctx context.Context, chatName, previousSummary, transcript string) (*domain.BrainResult, error)
	AnalyzeDocument(ctx context.Context, content string) (*FileAnalysis, error)
}

// EmbeddingClient turns text into a fixed-dimension vector. Optional
// everywhere; failures degrade to non-semantic behavior.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
