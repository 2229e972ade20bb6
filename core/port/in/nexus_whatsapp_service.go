package in

import (
	"context"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// WhatsAppService ingests device batches and runs the brain pass.
type WhatsAppService interface {
	// IngestBatch bulk-upserts one device batch and returns how many
	// rows were written. Never calls the LLM.
	IngestBatch(ctx context.Context, userID uuid.UUID, deviceID string, messages []*domain.WhatsAppMessage) (int, error)
	// RunBrain distils all unprocessed messages for the user into chat
	// memories and alerts. Per-chat failures isolate.
	RunBrain(ctx context.Context, userID uuid.UUID) ([]domain.ChatOperation, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*domain.WhatsAppStats, error)
	// TranscribeAudio schedules background transcription of one voice
	// note and returns immediately.
	TranscribeAudio(ctx context.Context, userID uuid.UUID, messageID, chatName, filePath string)
}

// BriefingService composes and dispatches the scheduled digests.
type BriefingService interface {
	RunMorningBriefing(ctx context.Context) error
	RunEveningBriefing(ctx context.Context) error
}
