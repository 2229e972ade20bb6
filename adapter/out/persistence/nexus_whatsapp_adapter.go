package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/apperr"
)

// WhatsAppRepository implements out.WhatsAppRepository.
type WhatsAppRepository struct {
	db *sqlx.DB
}

func NewWhatsAppRepository(db *sqlx.DB) out.WhatsAppRepository {
	return &WhatsAppRepository{db: db}
}

// UpsertMessages bulk-inserts in one statement. The device id is the
// conflict target, so re-synced batches count zero written rows.
func (r *WhatsAppRepository) UpsertMessages(ctx context.Context, messages []*domain.WhatsAppMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	values := make([]string, 0, len(messages))
	args := make([]interface{}, 0, len(messages)*10)
	argIdx := 1
	for _, msg := range messages {
		metadata, _ := json.Marshal(msg.Metadata)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			argIdx, argIdx+1, argIdx+2, argIdx+3, argIdx+4, argIdx+5, argIdx+6, argIdx+7, argIdx+8, argIdx+9))
		args = append(args,
			msg.ID, msg.UserID, msg.ChatID, msg.ChatName, msg.Content,
			msg.Timestamp, msg.IsMine, msg.Kind, msg.DeviceID, metadata)
		argIdx += 10
	}

	query := fmt.Sprintf(`
		INSERT INTO mensajes_whatsapp (
			id, user_id, chat_id, chat_nombre, contenido,
			ts, es_mio, tipo, device_id, metadata
		) VALUES %s
		ON CONFLICT (id) DO NOTHING`, strings.Join(values, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, asDataIntegrity("upsert whatsapp messages", err)
	}
	written, _ := result.RowsAffected()
	return int(written), nil
}

func (r *WhatsAppRepository) ListUnprocessed(ctx context.Context, userID uuid.UUID) ([]*domain.WhatsAppMessage, error) {
	query := `
		SELECT id, user_id, chat_id, chat_nombre, contenido, ts, es_mio,
		       tipo, device_id, procesado_ia, metadata
		FROM mensajes_whatsapp
		WHERE user_id = $1 AND procesado_ia = FALSE
		ORDER BY chat_nombre, ts`

	var rows []whatsappRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list unprocessed messages: %w", err)
	}

	messages := make([]*domain.WhatsAppMessage, len(rows))
	for i := range rows {
		messages[i] = rows[i].toDomain()
	}
	return messages, nil
}

func (r *WhatsAppRepository) MarkProcessed(ctx context.Context, userID uuid.UUID, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE mensajes_whatsapp SET procesado_ia = TRUE
		WHERE user_id = $1 AND id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, userID, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark messages processed: %w", err)
	}
	return nil
}

func (r *WhatsAppRepository) ReplaceContent(ctx context.Context, messageID, content string) error {
	query := `
		UPDATE mensajes_whatsapp
		SET contenido = $2, procesado_ia = FALSE
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, messageID, content)
	if err != nil {
		return fmt.Errorf("replace message content: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("mensaje")
	}
	return nil
}

func (r *WhatsAppRepository) GetChatMemory(ctx context.Context, userID uuid.UUID, chatName string) (*domain.ChatMemory, error) {
	query := `
		SELECT id, user_id, chat_nombre, resumen_actual, temas_abiertos, last_updated
		FROM memoria_chats
		WHERE user_id = $1 AND chat_nombre = $2`

	var row chatMemoryRow
	if err := r.db.GetContext(ctx, &row, query, userID, chatName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("memoria de chat")
		}
		return nil, fmt.Errorf("get chat memory: %w", err)
	}
	return row.toDomain(), nil
}

func (r *WhatsAppRepository) UpsertChatMemory(ctx context.Context, memory *domain.ChatMemory) error {
	query := `
		INSERT INTO memoria_chats (user_id, chat_nombre, resumen_actual, temas_abiertos, last_updated)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, chat_nombre) DO UPDATE SET
			resumen_actual = EXCLUDED.resumen_actual,
			temas_abiertos = EXCLUDED.temas_abiertos,
			last_updated = NOW()
		RETURNING id, last_updated`

	err := r.db.QueryRowxContext(ctx, query,
		memory.UserID, memory.ChatName, memory.CurrentSummary, memory.OpenTopics,
	).Scan(&memory.ID, &memory.LastUpdated)
	if err != nil {
		return asDataIntegrity("upsert chat memory", err)
	}
	return nil
}

func (r *WhatsAppRepository) GetStats(ctx context.Context, userID uuid.UUID) (*domain.WhatsAppStats, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE procesado_ia = FALSE) AS sin_procesar,
		       COUNT(DISTINCT chat_nombre) AS chats
		FROM mensajes_whatsapp
		WHERE user_id = $1`

	var row struct {
		Total       int `db:"total"`
		Unprocessed int `db:"sin_procesar"`
		Chats       int `db:"chats"`
	}
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		return nil, fmt.Errorf("whatsapp stats: %w", err)
	}

	var alerts int
	if err := r.db.GetContext(ctx, &alerts,
		`SELECT COUNT(*) FROM alertas WHERE user_id = $1 AND tipo = $2`,
		userID, domain.AlertTypeChatTask); err != nil {
		return nil, fmt.Errorf("whatsapp stats: %w", err)
	}

	return &domain.WhatsAppStats{
		TotalMessages: row.Total,
		Unprocessed:   row.Unprocessed,
		Chats:         row.Chats,
		AlertsCreated: alerts,
	}, nil
}

type whatsappRow struct {
	ID        string         `db:"id"`
	UserID    uuid.UUID      `db:"user_id"`
	ChatID    string         `db:"chat_id"`
	ChatName  string         `db:"chat_nombre"`
	Content   string         `db:"contenido"`
	Timestamp time.Time      `db:"ts"`
	IsMine    bool           `db:"es_mio"`
	Kind      string         `db:"tipo"`
	DeviceID  sql.NullString `db:"device_id"`
	Processed bool           `db:"procesado_ia"`
	Metadata  []byte         `db:"metadata"`
}

func (r *whatsappRow) toDomain() *domain.WhatsAppMessage {
	msg := &domain.WhatsAppMessage{
		ID:            r.ID,
		UserID:        r.UserID,
		ChatID:        r.ChatID,
		ChatName:      r.ChatName,
		Content:       r.Content,
		Timestamp:     r.Timestamp,
		IsMine:        r.IsMine,
		Kind:          r.Kind,
		Synced:        true,
		ProcessedByAI: r.Processed,
	}
	if r.DeviceID.Valid {
		msg.DeviceID = r.DeviceID.String
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &msg.Metadata)
	}
	return msg
}

type chatMemoryRow struct {
	ID             int64          `db:"id"`
	UserID         uuid.UUID      `db:"user_id"`
	ChatName       string         `db:"chat_nombre"`
	CurrentSummary string         `db:"resumen_actual"`
	OpenTopics     sql.NullString `db:"temas_abiertos"`
	LastUpdated    time.Time      `db:"last_updated"`
}

func (r *chatMemoryRow) toDomain() *domain.ChatMemory {
	memory := &domain.ChatMemory{
		ID:             r.ID,
		UserID:         r.UserID,
		ChatName:       r.ChatName,
		CurrentSummary: r.CurrentSummary,
		LastUpdated:    r.LastUpdated,
	}
	if r.OpenTopics.Valid {
		memory.OpenTopics = r.OpenTopics.String
	}
	return memory
}
