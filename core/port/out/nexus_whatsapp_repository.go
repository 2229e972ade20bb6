package out

import (
	"context"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// WhatsAppRepository persists synced device messages and chat memory.
type WhatsAppRepository interface {
	// UpsertMessages bulk-upserts on message id and returns how many
	// rows were written. Re-uploads are no-ops.
	UpsertMessages(ctx context.Context, messages []*domain.WhatsAppMessage) (int, error)
	ListUnprocessed(ctx context.Context, userID uuid.UUID) ([]*domain.WhatsAppMessage, error)
	// MarkProcessed flips processed_by_ai in one statement.
	MarkProcessed(ctx context.Context, userID uuid.UUID, ids []string) error
	// ReplaceContent overwrites a message body (audio transcription) and
	// resets processed_by_ai so the next brain pass includes it.
	ReplaceContent(ctx context.Context, messageID, content string) error

	GetChatMemory(ctx context.Context, userID uuid.UUID, chatName string) (*domain.ChatMemory, error)
	UpsertChatMemory(ctx context.Context, memory *domain.ChatMemory) error

	GetStats(ctx context.Context, userID uuid.UUID) (*domain.WhatsAppStats, error)
}
