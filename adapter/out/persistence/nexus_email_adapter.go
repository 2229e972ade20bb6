package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/apperr"
)

const analyzedEmailColumns = `
	id, user_id, email_account_id, gmail_message_id, remitente, asunto, fecha,
	puntuacion_importancia, categoria, urgencia, requiere_accion,
	respuesta_sugerida, tono_detectado, acciones_pendientes, fecha_limite,
	leido, respondido, fecha_respuesta, metadata, created_at`

// EmailRepository implements out.EmailRepository.
type EmailRepository struct {
	db *sqlx.DB
}

func NewEmailRepository(db *sqlx.DB) out.EmailRepository {
	return &EmailRepository{db: db}
}

func (r *EmailRepository) UpsertEmailAccount(ctx context.Context, account *domain.EmailAccount) error {
	query := `
		INSERT INTO cuentas_email (
			user_id, email_address, access_token, refresh_token, activa, created_at, updated_at
		) VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (user_id, email_address) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE
				WHEN EXCLUDED.refresh_token <> '' THEN EXCLUDED.refresh_token
				ELSE cuentas_email.refresh_token
			END,
			activa = TRUE,
			updated_at = NOW()
		RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		account.UserID, account.EmailAddress, account.AccessToken, account.RefreshToken,
	).Scan(&account.ID)
	if err != nil {
		return asDataIntegrity("upsert email account", err)
	}
	return nil
}

func (r *EmailRepository) GetEmailAccount(ctx context.Context, userID uuid.UUID, address string) (*domain.EmailAccount, error) {
	query := `
		SELECT id, user_id, email_address, access_token, refresh_token, activa, created_at, updated_at
		FROM cuentas_email
		WHERE user_id = $1 AND email_address = $2`

	var row emailAccountRow
	if err := r.db.GetContext(ctx, &row, query, userID, address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("cuenta de correo")
		}
		return nil, fmt.Errorf("get email account: %w", err)
	}
	return row.toDomain(), nil
}

func (r *EmailRepository) ExistingGmailIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	query := `
		SELECT gmail_message_id FROM correos_analizados
		WHERE user_id = $1 AND gmail_message_id = ANY($2)`

	var existing []string
	if err := r.db.SelectContext(ctx, &existing, query, userID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("existing gmail ids: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	return seen, nil
}

func (r *EmailRepository) CreateAnalyzedEmail(ctx context.Context, email *domain.AnalyzedEmail) error {
	metadata, _ := json.Marshal(email.Metadata)

	query := `
		INSERT INTO correos_analizados (
			user_id, email_account_id, gmail_message_id, remitente, asunto, fecha,
			puntuacion_importancia, categoria, urgencia, requiere_accion,
			respuesta_sugerida, tono_detectado, acciones_pendientes, fecha_limite,
			leido, respondido, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, FALSE, $15, NOW())
		ON CONFLICT (user_id, gmail_message_id) DO NOTHING
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		email.UserID, email.EmailAccountID, email.GmailMessageID,
		email.Sender, email.Subject, email.Date,
		email.ImportanceScore, email.Category, email.Urgency, email.RequiresAction,
		email.SuggestedReply, email.DetectedTone, pq.Array(email.PendingActions), email.DueDate,
		metadata,
	).Scan(&email.ID, &email.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Row already existed; the conflict target swallowed the insert.
		return nil
	}
	if err != nil {
		return asDataIntegrity("create analyzed email", err)
	}
	return nil
}

func (r *EmailRepository) ListAnalyzedEmails(ctx context.Context, userID uuid.UUID, onlyPending bool) ([]*domain.AnalyzedEmail, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM correos_analizados
		WHERE user_id = $1 AND requiere_accion = TRUE AND respondido = FALSE`, analyzedEmailColumns)
	if onlyPending {
		query += ` AND leido = FALSE`
	}
	query += `
		ORDER BY puntuacion_importancia DESC, fecha DESC`

	var rows []analyzedEmailRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list analyzed emails: %w", err)
	}
	return toAnalyzedEmails(rows), nil
}

func (r *EmailRepository) ListAnsweredEmails(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AnalyzedEmail, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM correos_analizados WHERE user_id = $1 AND respondido = TRUE`, userID); err != nil {
		return nil, 0, fmt.Errorf("count answered emails: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM correos_analizados
		WHERE user_id = $1 AND respondido = TRUE
		ORDER BY fecha_respuesta DESC NULLS LAST
		LIMIT $2`, analyzedEmailColumns)

	var rows []analyzedEmailRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, 0, fmt.Errorf("list answered emails: %w", err)
	}
	return toAnalyzedEmails(rows), total, nil
}

func (r *EmailRepository) MarkEmailRead(ctx context.Context, userID uuid.UUID, id int64) error {
	return r.flagEmail(ctx, "mark email read",
		`UPDATE correos_analizados SET leido = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *EmailRepository) MarkEmailAnswered(ctx context.Context, userID uuid.UUID, id int64, answeredAt time.Time, sentReply string) error {
	query := `
		UPDATE correos_analizados
		SET respondido = TRUE, leido = TRUE, fecha_respuesta = $3,
		    metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('respuesta_enviada', $4::text)
		WHERE id = $1 AND user_id = $2`
	return r.flagEmail(ctx, "mark email answered", query, id, userID, answeredAt, sentReply)
}

func (r *EmailRepository) RevertEmailAnswered(ctx context.Context, userID uuid.UUID, id int64) error {
	query := `
		UPDATE correos_analizados
		SET respondido = FALSE, fecha_respuesta = NULL
		WHERE id = $1 AND user_id = $2`
	return r.flagEmail(ctx, "revert email answered", query, id, userID)
}

func (r *EmailRepository) flagEmail(ctx context.Context, op, query string, id int64, userID uuid.UUID, extra ...interface{}) error {
	args := append([]interface{}{id, userID}, extra...)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		var owner uuid.UUID
		lookupErr := r.db.GetContext(ctx, &owner,
			`SELECT user_id FROM correos_analizados WHERE id = $1`, id)
		return missingRowErr(owner, lookupErr, userID, "correo")
	}
	return nil
}

// GetSenderContext aggregates the last analyses from one sender: mode
// of tone and category, recent subjects, plus up to two replies the
// user actually sent back.
func (r *EmailRepository) GetSenderContext(ctx context.Context, userID uuid.UUID, sender string, limit int) (*domain.SenderContext, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM correos_analizados WHERE user_id = $1 AND remitente = $2`,
		userID, sender); err != nil {
		return nil, fmt.Errorf("sender context: %w", err)
	}
	if total == 0 {
		return &domain.SenderContext{FirstContact: true}, nil
	}

	query := `
		SELECT asunto, fecha, tono_detectado, categoria,
		       COALESCE(metadata->>'respuesta_enviada', '') AS respuesta_enviada
		FROM correos_analizados
		WHERE user_id = $1 AND remitente = $2
		ORDER BY fecha DESC
		LIMIT $3`

	var rows []senderContextRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, sender, limit); err != nil {
		return nil, fmt.Errorf("sender context: %w", err)
	}

	sc := &domain.SenderContext{TotalEmails: total}
	tones := map[string]int{}
	categories := map[string]int{}
	for i, row := range rows {
		if i == 0 {
			date := row.Date
			sc.LastContact = &date
		}
		sc.RecentSubjects = append(sc.RecentSubjects, row.Subject)
		if row.Tone.Valid && row.Tone.String != "" {
			tones[row.Tone.String]++
		}
		categories[row.Category]++
		if row.SentReply != "" && len(sc.PriorReplies) < 2 {
			sc.PriorReplies = append(sc.PriorReplies, row.SentReply)
		}
	}
	sc.CommonTone = modeOf(tones)
	sc.CommonCategory = modeOf(categories)
	return sc, nil
}

func (r *EmailRepository) UpsertSenderProfile(ctx context.Context, profile *domain.SenderProfile) error {
	query := `
		INSERT INTO perfiles_remitente (
			user_id, email_account_id, remitente, total_correos,
			primer_contacto, ultimo_contacto, frecuencia_dias, hora_tipica,
			longitud_promedio, palabras_clave, tono_habitual, tema_principal,
			nivel_importancia, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (user_id, remitente) DO UPDATE SET
			total_correos = EXCLUDED.total_correos,
			ultimo_contacto = EXCLUDED.ultimo_contacto,
			frecuencia_dias = EXCLUDED.frecuencia_dias,
			hora_tipica = EXCLUDED.hora_tipica,
			longitud_promedio = EXCLUDED.longitud_promedio,
			palabras_clave = EXCLUDED.palabras_clave,
			tono_habitual = EXCLUDED.tono_habitual,
			tema_principal = EXCLUDED.tema_principal,
			nivel_importancia = EXCLUDED.nivel_importancia,
			updated_at = NOW()
		RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		profile.UserID, profile.EmailAccountID, profile.Sender, profile.TotalEmails,
		profile.FirstContact, profile.LastContact, profile.FrequencyDays, profile.TypicalHour,
		profile.AvgLength, pq.Array(profile.TopKeywords), profile.HabitualTone,
		profile.PrimaryTopic, profile.ImportanceLevel,
	).Scan(&profile.ID)
	if err != nil {
		return asDataIntegrity("upsert sender profile", err)
	}
	return nil
}

func (r *EmailRepository) HistoricPassDone(ctx context.Context, userID uuid.UUID, accountID int64) (bool, error) {
	var done bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM pasadas_historicas
			WHERE user_id = $1 AND email_account_id = $2
		)`
	if err := r.db.GetContext(ctx, &done, query, userID, accountID); err != nil {
		return false, fmt.Errorf("historic pass done: %w", err)
	}
	return done, nil
}

func (r *EmailRepository) MarkHistoricPassDone(ctx context.Context, userID uuid.UUID, accountID int64) error {
	query := `
		INSERT INTO pasadas_historicas (user_id, email_account_id, done_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, email_account_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, accountID); err != nil {
		return fmt.Errorf("mark historic pass done: %w", err)
	}
	return nil
}

type emailAccountRow struct {
	ID           int64     `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	EmailAddress string    `db:"email_address"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	Active       bool      `db:"activa"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *emailAccountRow) toDomain() *domain.EmailAccount {
	return &domain.EmailAccount{
		ID:           r.ID,
		UserID:       r.UserID,
		EmailAddress: r.EmailAddress,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type analyzedEmailRow struct {
	ID              int64          `db:"id"`
	UserID          uuid.UUID      `db:"user_id"`
	EmailAccountID  int64          `db:"email_account_id"`
	GmailMessageID  string         `db:"gmail_message_id"`
	Sender          string         `db:"remitente"`
	Subject         string         `db:"asunto"`
	Date            time.Time      `db:"fecha"`
	ImportanceScore int            `db:"puntuacion_importancia"`
	Category        string         `db:"categoria"`
	Urgency         string         `db:"urgencia"`
	RequiresAction  bool           `db:"requiere_accion"`
	SuggestedReply  sql.NullString `db:"respuesta_sugerida"`
	DetectedTone    sql.NullString `db:"tono_detectado"`
	PendingActions  pq.StringArray `db:"acciones_pendientes"`
	DueDate         sql.NullTime   `db:"fecha_limite"`
	Read            bool           `db:"leido"`
	Answered        bool           `db:"respondido"`
	AnsweredAt      sql.NullTime   `db:"fecha_respuesta"`
	Metadata        []byte         `db:"metadata"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r *analyzedEmailRow) toDomain() *domain.AnalyzedEmail {
	email := &domain.AnalyzedEmail{
		ID:              r.ID,
		UserID:          r.UserID,
		EmailAccountID:  r.EmailAccountID,
		GmailMessageID:  r.GmailMessageID,
		Sender:          r.Sender,
		Subject:         r.Subject,
		Date:            r.Date,
		ImportanceScore: r.ImportanceScore,
		Category:        domain.EmailCategory(r.Category),
		Urgency:         r.Urgency,
		RequiresAction:  r.RequiresAction,
		PendingActions:  r.PendingActions,
		Read:            r.Read,
		Answered:        r.Answered,
		CreatedAt:       r.CreatedAt,
	}
	if r.SuggestedReply.Valid {
		email.SuggestedReply = r.SuggestedReply.String
	}
	if r.DetectedTone.Valid {
		email.DetectedTone = r.DetectedTone.String
	}
	if r.DueDate.Valid {
		email.DueDate = &r.DueDate.Time
	}
	if r.AnsweredAt.Valid {
		email.AnsweredAt = &r.AnsweredAt.Time
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &email.Metadata)
	}
	return email
}

func toAnalyzedEmails(rows []analyzedEmailRow) []*domain.AnalyzedEmail {
	emails := make([]*domain.AnalyzedEmail, len(rows))
	for i := range rows {
		emails[i] = rows[i].toDomain()
	}
	return emails
}

type senderContextRow struct {
	Subject   string         `db:"asunto"`
	Date      time.Time      `db:"fecha"`
	Tone      sql.NullString `db:"tono_detectado"`
	Category  string         `db:"categoria"`
	SentReply string         `db:"respuesta_enviada"`
}

func modeOf(counts map[string]int) string {
	best, bestN := "", 0
	for value, n := range counts {
		if n > bestN || (n == bestN && value < best) {
			best, bestN = value, n
		}
	}
	return best
}
