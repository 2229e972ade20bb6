// Package memory is the semantic recall layer over stored
// conversations. Everything here is best-effort: a missing embedder or
// a failed store call degrades to empty results, never to an error.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/logger"
)

const (
	DefaultThreshold = 0.6
	DefaultTopK      = 3
)

type Service struct {
	embedder  out.EmbeddingClient
	convRepo  out.ConversationRepository
	threshold float64
	topK      int
	log       *logger.Logger
}

// NewService creates the recall layer. embedder may be nil; recall is
// then a no-op.
func NewService(embedder out.EmbeddingClient, convRepo out.ConversationRepository, threshold float64, topK int) *Service {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		embedder:  embedder,
		convRepo:  convRepo,
		threshold: threshold,
		topK:      topK,
		log:       logger.WithField("service", "memory"),
	}
}

// AttachEmbedding fills conv.Embedding from its summary. Failures are
// logged and swallowed; the row is stored without a vector.
func (s *Service) AttachEmbedding(ctx context.Context, conv *domain.Conversation) {
	if s.embedder == nil || conv.Summary == "" {
		return
	}

	vector, err := s.embedder.Embed(ctx, conv.Summary)
	if err != nil {
		s.log.WithError(err).Warn("embedding skipped")
		return
	}
	conv.Embedding = vector
}

// Recall returns a short text block of semantically related memories,
// or empty when nothing matches or anything fails.
func (s *Service) Recall(ctx context.Context, userID uuid.UUID, query string) string {
	if s.embedder == nil || strings.TrimSpace(query) == "" {
		return ""
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.WithError(err).Warn("recall embedding failed")
		return ""
	}

	matches, err := s.convRepo.MatchConversations(ctx, userID, vector, s.threshold, s.topK)
	if err != nil {
		s.log.WithError(err).Warn("recall lookup failed")
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Recuerdos relacionados:\n")
	for _, m := range matches {
		fmt.Fprintf(&sb, "- %s\n", m.Summary)
	}
	return sb.String()
}
