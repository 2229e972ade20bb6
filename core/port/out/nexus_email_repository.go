package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// EmailRepository persists triage output and sender aggregates.
type EmailRepository interface {
	UpsertEmailAccount(ctx context.Context, account *domain.EmailAccount) error
	GetEmailAccount(ctx context.Context, userID uuid.UUID, address string) (*domain.EmailAccount, error)

	// ExistingGmailIDs returns which of the given ids are already
	// analyzed for this user; triage drops them before layering.
	ExistingGmailIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]bool, error)
	CreateAnalyzedEmail(ctx context.Context, email *domain.AnalyzedEmail) error
	ListAnalyzedEmails(ctx context.Context, userID uuid.UUID, onlyPending bool) ([]*domain.AnalyzedEmail, error)
	ListAnsweredEmails(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AnalyzedEmail, int, error)
	MarkEmailRead(ctx context.Context, userID uuid.UUID, id int64) error
	MarkEmailAnswered(ctx context.Context, userID uuid.UUID, id int64, answeredAt time.Time, sentReply string) error
	RevertEmailAnswered(ctx context.Context, userID uuid.UUID, id int64) error

	// GetSenderContext snapshots up to limit recent analyses from one
	// sender for the deep-analysis prompt.
	GetSenderContext(ctx context.Context, userID uuid.UUID, sender string, limit int) (*domain.SenderContext, error)
	UpsertSenderProfile(ctx context.Context, profile *domain.SenderProfile) error
	// HistoricPassDone reports whether the one-shot mailbox pass already
	// ran for this account, and MarkHistoricPassDone records it.
	HistoricPassDone(ctx context.Context, userID uuid.UUID, accountID int64) (bool, error)
	MarkHistoricPassDone(ctx context.Context, userID uuid.UUID, accountID int64) error
}

// EmailBodyArchive stores full raw bodies out of the relational row.
// All operations are best-effort; failures must not break triage.
type EmailBodyArchive interface {
	SaveBody(ctx context.Context, userID uuid.UUID, gmailMessageID, body string) error
	GetBody(ctx context.Context, userID uuid.UUID, gmailMessageID string) (string, error)
}
