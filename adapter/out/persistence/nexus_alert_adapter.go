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

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/apperr"
)

const alertColumns = `
	id, user_id, conversation_id, titulo, descripcion, prioridad,
	tipo, estado, etiqueta, fecha_objetivo, metadata, archived_at, created_at`

// AlertRepository implements out.AlertRepository.
type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) out.AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	metadata, _ := json.Marshal(alert.Metadata)

	query := `
		INSERT INTO alertas (
			user_id, conversation_id, titulo, descripcion, prioridad,
			tipo, estado, etiqueta, fecha_objetivo, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		alert.UserID, alert.ConversationID, alert.Title, alert.Description, alert.Priority,
		alert.Type, alert.State, alert.Label, alert.DueAt, metadata,
	).Scan(&alert.ID, &alert.CreatedAt)
	if err != nil {
		return asDataIntegrity("create alert", err)
	}
	return nil
}

func (r *AlertRepository) GetAlert(ctx context.Context, userID uuid.UUID, id int64) (*domain.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alertas WHERE id = $1 AND user_id = $2`, alertColumns)

	var row alertRow
	if err := r.db.GetContext(ctx, &row, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("alerta")
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return row.toDomain(), nil
}

func (r *AlertRepository) ListAlerts(ctx context.Context, filter *domain.AlertFilter) ([]*domain.Alert, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.State != nil {
		conditions = append(conditions, fmt.Sprintf("estado = $%d", argIdx))
		args = append(args, *filter.State)
		argIdx++
	}
	if !filter.IncludeArchived {
		// Completed alerts age out of the default listing.
		conditions = append(conditions, fmt.Sprintf(
			"(estado <> 'completada' OR created_at > NOW() - INTERVAL '%d days')",
			domain.CompletedArchiveDays))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM alertas
		WHERE %s
		ORDER BY created_at DESC`, alertColumns, strings.Join(conditions, " AND "))

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argIdx)
			args = append(args, filter.Offset)
		}
	}

	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return toAlerts(rows), nil
}

// ListPriorityAlerts returns pending alerts ordered urgency-first,
// nearest due date inside the same urgency, plus the total pending
// count.
func (r *AlertRepository) ListPriorityAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM alertas WHERE user_id = $1 AND estado = 'pendiente'`, userID); err != nil {
		return nil, 0, fmt.Errorf("count pending alerts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM alertas
		WHERE user_id = $1 AND estado = 'pendiente'
		ORDER BY CASE prioridad WHEN 'ALTA' THEN 0 WHEN 'MEDIA' THEN 1 ELSE 2 END,
		         fecha_objetivo ASC NULLS LAST,
		         created_at DESC
		LIMIT $2`, alertColumns)

	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, 0, fmt.Errorf("list priority alerts: %w", err)
	}
	return toAlerts(rows), total, nil
}

func (r *AlertRepository) UpdateAlertState(ctx context.Context, userID uuid.UUID, id int64, state *domain.AlertState, label *domain.AlertLabel) (*domain.Alert, error) {
	sets := []string{}
	args := []interface{}{id, userID}
	argIdx := 3

	if state != nil {
		sets = append(sets, fmt.Sprintf("estado = $%d", argIdx))
		args = append(args, *state)
		argIdx++
		if *state == domain.AlertStateCompleted {
			sets = append(sets, "archived_at = NOW()")
		}
	}
	if label != nil {
		sets = append(sets, fmt.Sprintf("etiqueta = $%d", argIdx))
		args = append(args, *label)
		argIdx++
	}
	if len(sets) == 0 {
		return r.GetAlert(ctx, userID, id)
	}

	query := fmt.Sprintf(`
		UPDATE alertas SET %s
		WHERE id = $1 AND user_id = $2
		RETURNING %s`, strings.Join(sets, ", "), alertColumns)

	var row alertRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var owner uuid.UUID
			lookupErr := r.db.GetContext(ctx, &owner,
				`SELECT user_id FROM alertas WHERE id = $1`, id)
			return nil, missingRowErr(owner, lookupErr, userID, "alerta")
		}
		return nil, fmt.Errorf("update alert: %w", err)
	}
	return row.toDomain(), nil
}

func (r *AlertRepository) ListPendingDueBefore(ctx context.Context, userID uuid.UUID, before time.Time) ([]*domain.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alertas
		WHERE user_id = $1 AND estado = 'pendiente'
		  AND fecha_objetivo IS NOT NULL AND fecha_objetivo <= $2
		ORDER BY fecha_objetivo`, alertColumns)

	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, before); err != nil {
		return nil, fmt.Errorf("list due alerts: %w", err)
	}
	return toAlerts(rows), nil
}

func (r *AlertRepository) ReloadMetadata(ctx context.Context, id int64) (*domain.Envelope, error) {
	var raw []byte
	if err := r.db.GetContext(ctx, &raw, `SELECT metadata FROM alertas WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("alerta")
		}
		return nil, fmt.Errorf("reload metadata: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("reload metadata: %w", err)
	}
	return &env, nil
}

type alertRow struct {
	ID             int64          `db:"id"`
	UserID         uuid.UUID      `db:"user_id"`
	ConversationID sql.NullInt64  `db:"conversation_id"`
	Title          string         `db:"titulo"`
	Description    string         `db:"descripcion"`
	Priority       string         `db:"prioridad"`
	Type           string         `db:"tipo"`
	State          string         `db:"estado"`
	Label          string         `db:"etiqueta"`
	DueAt          sql.NullTime   `db:"fecha_objetivo"`
	Metadata       []byte         `db:"metadata"`
	ArchivedAt     sql.NullTime   `db:"archived_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r *alertRow) toDomain() *domain.Alert {
	alert := &domain.Alert{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Priority:    domain.AlertPriority(r.Priority),
		Type:        domain.AlertType(r.Type),
		State:       domain.AlertState(r.State),
		Label:       domain.AlertLabel(r.Label),
		CreatedAt:   r.CreatedAt,
	}
	if r.ConversationID.Valid {
		alert.ConversationID = &r.ConversationID.Int64
	}
	if r.DueAt.Valid {
		alert.DueAt = &r.DueAt.Time
	}
	if r.ArchivedAt.Valid {
		alert.ArchivedAt = &r.ArchivedAt.Time
	}
	if len(r.Metadata) > 0 {
		var env domain.Envelope
		if err := json.Unmarshal(r.Metadata, &env); err == nil {
			alert.Metadata = &env
		}
	}
	return alert
}

func toAlerts(rows []alertRow) []*domain.Alert {
	alerts := make([]*domain.Alert, len(rows))
	for i := range rows {
		alerts[i] = rows[i].toDomain()
	}
	return alerts
}
