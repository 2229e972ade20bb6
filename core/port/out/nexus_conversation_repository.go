package out

import (
	"context"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// MatchedConversation is one semantic search hit.
type MatchedConversation struct {
	ID         int64   `json:"id"`
	Summary    string  `json:"summary"`
	Similarity float64 `json:"similarity"`
}

// ConversationRepository defines episodic memory persistence.
// Conversations are immutable after insert.
type ConversationRepository interface {
	// CreateConversation inserts the row and fills in its id.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	ListRecentConversations(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Conversation, error)
	// MatchConversations runs the store-side similarity function over
	// per-user embeddings.
	MatchConversations(ctx context.Context, userID uuid.UUID, embedding []float64, threshold float64, topK int) ([]MatchedConversation, error)
}

// ProfileFactRepository persists atemporal user facts.
type ProfileFactRepository interface {
	// UpsertFact is idempotent on (user_id, fact_text); conflicts are
	// silently ignored.
	UpsertFact(ctx context.Context, fact *domain.ProfileFact) error
	ListFacts(ctx context.Context, userID uuid.UUID) ([]*domain.ProfileFact, error)
}
