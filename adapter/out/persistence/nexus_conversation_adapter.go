package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
)

// ConversationRepository implements out.ConversationRepository over the
// conversaciones table plus the match_conversations SQL function that
// does the pgvector cosine search store-side.
type ConversationRepository struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) out.ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	metadata, _ := json.Marshal(conv.Metadata)

	query := `
		INSERT INTO conversaciones (
			user_id, resumen, tipo, urgencia, origen, metadata, embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		conv.UserID, conv.Summary, conv.Type, conv.Urgency, conv.Origin,
		metadata, vectorLiteral(conv.Embedding),
	).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return asDataIntegrity("create conversation", err)
	}
	return nil
}

func (r *ConversationRepository) ListRecentConversations(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	query := `
		SELECT id, user_id, resumen, tipo, urgencia, origen, metadata, created_at
		FROM conversaciones
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	convs := make([]*domain.Conversation, len(rows))
	for i := range rows {
		convs[i] = rows[i].toDomain()
	}
	return convs, nil
}

func (r *ConversationRepository) MatchConversations(ctx context.Context, userID uuid.UUID, embedding []float64, threshold float64, topK int) ([]out.MatchedConversation, error) {
	query := `
		SELECT id, resumen, similarity
		FROM match_conversations($1, $2::vector, $3, $4)`

	rows, err := r.db.QueryxContext(ctx, query, userID, vectorLiteral(embedding), threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("match conversations: %w", err)
	}
	defer rows.Close()

	var matches []out.MatchedConversation
	for rows.Next() {
		var m out.MatchedConversation
		if err := rows.Scan(&m.ID, &m.Summary, &m.Similarity); err != nil {
			return nil, fmt.Errorf("match conversations: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match conversations: %w", err)
	}
	return matches, nil
}

type conversationRow struct {
	ID        int64     `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Summary   string    `db:"resumen"`
	Type      string    `db:"tipo"`
	Urgency   string    `db:"urgencia"`
	Origin    string    `db:"origen"`
	Metadata  []byte    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *conversationRow) toDomain() *domain.Conversation {
	conv := &domain.Conversation{
		ID:        r.ID,
		UserID:    r.UserID,
		Summary:   r.Summary,
		Type:      domain.ConversationType(r.Type),
		Urgency:   domain.Urgency(r.Urgency),
		Origin:    domain.ConversationOrigin(r.Origin),
		CreatedAt: r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &conv.Metadata)
	}
	return conv
}

// vectorLiteral renders the embedding in pgvector's text format. An
// empty embedding becomes NULL so unindexed rows stay queryable.
func vectorLiteral(embedding []float64) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ProfileFactRepository implements out.ProfileFactRepository.
type ProfileFactRepository struct {
	db *sqlx.DB
}

func NewProfileFactRepository(db *sqlx.DB) out.ProfileFactRepository {
	return &ProfileFactRepository{db: db}
}

func (r *ProfileFactRepository) UpsertFact(ctx context.Context, fact *domain.ProfileFact) error {
	query := `
		INSERT INTO perfil_hechos (user_id, hecho, categoria, origen_ref, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, hecho) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, fact.UserID, fact.FactText, fact.Category, fact.OriginRef)
	if err != nil {
		return asDataIntegrity("upsert fact", err)
	}
	return nil
}

func (r *ProfileFactRepository) ListFacts(ctx context.Context, userID uuid.UUID) ([]*domain.ProfileFact, error) {
	query := `
		SELECT id, user_id, hecho, categoria, origen_ref, created_at
		FROM perfil_hechos
		WHERE user_id = $1
		ORDER BY created_at DESC`

	var rows []factRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}

	facts := make([]*domain.ProfileFact, len(rows))
	for i := range rows {
		facts[i] = rows[i].toDomain()
	}
	return facts, nil
}

type factRow struct {
	ID        int64     `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	FactText  string    `db:"hecho"`
	Category  string    `db:"categoria"`
	OriginRef string    `db:"origen_ref"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *factRow) toDomain() *domain.ProfileFact {
	return &domain.ProfileFact{
		ID:        r.ID,
		UserID:    r.UserID,
		FactText:  r.FactText,
		Category:  r.Category,
		OriginRef: r.OriginRef,
		CreatedAt: r.CreatedAt,
	}
}
