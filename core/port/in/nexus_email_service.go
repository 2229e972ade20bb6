package in

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// SyncEmailsRequest carries the mailbox credentials for one triage run.
type SyncEmailsRequest struct {
	GmailAccessToken string `json:"gmail_access_token"`
	EmailGmail       string `json:"email_gmail"`
	ServerAuthCode   string `json:"server_auth_code,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
}

// SyncEmailsResult summarises one triage run.
type SyncEmailsResult struct {
	Estadisticas      *domain.TriageStats     `json:"estadisticas"`
	CorreosImportantes []*domain.AnalyzedEmail `json:"correos_importantes"`
	TopCorreo         *domain.AnalyzedEmail   `json:"top_correo,omitempty"`
}

// HistoricResult summarises the one-shot mailbox pass.
type HistoricResult struct {
	TotalEmails    int     `json:"total_correos"`
	SendersProfiled int    `json:"remitentes_perfilados"`
	LLMCalls       int     `json:"llamadas_llm"`
	SavingsPct     float64 `json:"ahorro_pct"`
	AlreadyDone    bool    `json:"ya_procesado"`
}

// SendEmailRequest is the outbound mail payload.
type SendEmailRequest struct {
	GmailAccessToken string `json:"gmail_access_token"`
	Destinatario     string `json:"destinatario"`
	Asunto           string `json:"asunto"`
	Cuerpo           string `json:"cuerpo"`
	ThreadID         string `json:"thread_id,omitempty"`
}

// EmailService drives the triage cascade and the analyzed-email views.
type EmailService interface {
	SyncEmails(ctx context.Context, userID uuid.UUID, req *SyncEmailsRequest) (*SyncEmailsResult, error)
	AnalyzeHistory(ctx context.Context, userID uuid.UUID, req *SyncEmailsRequest) (*HistoricResult, error)
	SendEmail(ctx context.Context, userID uuid.UUID, req *SendEmailRequest) error

	ListEmails(ctx context.Context, userID uuid.UUID, onlyPending bool) ([]*domain.AnalyzedEmail, error)
	ListAnswered(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AnalyzedEmail, int, error)
	MarkRead(ctx context.Context, userID uuid.UUID, id int64) error
	MarkAnswered(ctx context.Context, userID uuid.UUID, id int64, answeredAt time.Time, sentReply string) error
	RevertAnswered(ctx context.Context, userID uuid.UUID, id int64) error
}
