// Package email implements the three-layer triage cascade over Gmail
// batches and the analyzed-email views.
package email

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/in"
	"nexus_server/core/port/out"
	"nexus_server/pkg/apperr"
	"nexus_server/pkg/logger"
	"nexus_server/pkg/ratelimit"
)

const (
	// syncFetchLimit caps one sincronizar-correos run.
	syncFetchLimit = 20
	// senderContextLimit is how many prior analyses feed deep analysis.
	senderContextLimit = 5
)

type Service struct {
	repo     out.EmailRepository
	provider out.EmailProvider
	archive  out.EmailBodyArchive
	llm      out.LLMClient
	users    out.UserRepository
	push     out.PushSender
	pacer    *ratelimit.Pacer
	log      *logger.Logger
}

func NewService(
	repo out.EmailRepository,
	provider out.EmailProvider,
	archive out.EmailBodyArchive,
	llm out.LLMClient,
	users out.UserRepository,
	push out.PushSender,
	pacer *ratelimit.Pacer,
) in.EmailService {
	return &Service{
		repo:     repo,
		provider: provider,
		archive:  archive,
		llm:      llm,
		users:    users,
		push:     push,
		pacer:    pacer,
		log:      logger.WithField("service", "email"),
	}
}

// SyncEmails fetches the unread batch and runs the triage cascade over
// it. Each layer rejection skips all downstream work for that email.
func (s *Service) SyncEmails(ctx context.Context, userID uuid.UUID, req *in.SyncEmailsRequest) (*in.SyncEmailsResult, error) {
	creds, err := s.resolveCredentials(req)
	if err != nil {
		return nil, err
	}

	account, err := s.ensureAccount(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	emails, err := s.provider.FetchUnread(ctx, creds, syncFetchLimit)
	if err != nil {
		return nil, err
	}

	stats := &domain.TriageStats{Total: len(emails)}
	result := &in.SyncEmailsResult{Estadisticas: stats}
	if len(emails) == 0 {
		return result, nil
	}

	seen := s.dedupe(ctx, userID, emails, stats)

	var critical []*domain.AnalyzedEmail
	for _, incoming := range emails {
		if seen[incoming.GmailMessageID] {
			continue
		}

		analyzed := s.triageOne(ctx, userID, account.ID, incoming, stats)
		if analyzed == nil {
			continue
		}
		result.CorreosImportantes = append(result.CorreosImportantes, analyzed)
		if analyzed.IsCritical() {
			critical = append(critical, analyzed)
		}
	}

	if top := topCritical(critical); top != nil {
		result.TopCorreo = top
		s.notifyCritical(ctx, userID, top, len(critical))
		stats.PushesSent++
	}

	s.log.WithUser(userID.String()).Info("triage run done: total=%d analyzed=%d llm_calls=%d",
		stats.Total, stats.Analyzed, stats.LLMCalls)
	return result, nil
}

// dedupe returns the set of already-analyzed gmail ids in the batch.
// A lookup failure degrades to an empty set rather than blocking the run.
func (s *Service) dedupe(ctx context.Context, userID uuid.UUID, emails []*domain.IncomingEmail, stats *domain.TriageStats) map[string]bool {
	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		ids = append(ids, e.GmailMessageID)
	}

	seen, err := s.repo.ExistingGmailIDs(ctx, userID, ids)
	if err != nil {
		s.log.WithError(err).Warn("gmail id dedupe skipped")
		return map[string]bool{}
	}
	for _, id := range ids {
		if seen[id] {
			stats.Duplicates++
		}
	}
	return seen
}

func (s *Service) notifyCritical(ctx context.Context, userID uuid.UUID, top *domain.AnalyzedEmail, count int) {
	if s.push == nil {
		return
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil || user == nil || !user.HasPushToken() {
		return
	}

	summary, _ := top.Metadata["resumen_corto"].(string)
	body := top.Sender
	if summary != "" {
		body += ": " + summary
	}

	notification := &domain.PushNotification{
		Token: *user.PushToken,
		Title: "📧 " + top.Subject,
		Body:  body,
	}
	notification.Set(domain.PushKeyTipo, "correo_critico")
	notification.Set(domain.PushKeyIrA, "correos")
	if count > 1 {
		notification.Set("correos_criticos", strconv.Itoa(count))
	}

	if err := s.push.Send(ctx, notification); err != nil {
		s.log.WithError(err).WithUser(userID.String()).Warn("critical email push not delivered")
	}
}

// SendEmail sends one outbound message, threaded when thread_id is set.
func (s *Service) SendEmail(ctx context.Context, userID uuid.UUID, req *in.SendEmailRequest) error {
	if req.GmailAccessToken == "" {
		return apperr.MissingField("gmail_access_token")
	}
	if req.Destinatario == "" {
		return apperr.MissingField("destinatario")
	}

	creds := &out.GmailCredentials{AccessToken: req.GmailAccessToken}
	return s.provider.SendReply(ctx, creds, req.Destinatario, req.Asunto, req.Cuerpo, req.ThreadID)
}

func (s *Service) ListEmails(ctx context.Context, userID uuid.UUID, onlyPending bool) ([]*domain.AnalyzedEmail, error) {
	return s.repo.ListAnalyzedEmails(ctx, userID, onlyPending)
}

func (s *Service) ListAnswered(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AnalyzedEmail, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListAnsweredEmails(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, id int64) error {
	return s.repo.MarkEmailRead(ctx, userID, id)
}

func (s *Service) MarkAnswered(ctx context.Context, userID uuid.UUID, id int64, answeredAt time.Time, sentReply string) error {
	if answeredAt.IsZero() {
		answeredAt = time.Now()
	}
	return s.repo.MarkEmailAnswered(ctx, userID, id, answeredAt, sentReply)
}

func (s *Service) RevertAnswered(ctx context.Context, userID uuid.UUID, id int64) error {
	return s.repo.RevertEmailAnswered(ctx, userID, id)
}

func (s *Service) resolveCredentials(req *in.SyncEmailsRequest) (*out.GmailCredentials, error) {
	if req == nil || req.GmailAccessToken == "" {
		return nil, apperr.MissingField("gmail_access_token")
	}
	if req.EmailGmail == "" {
		return nil, apperr.MissingField("email_gmail")
	}
	return &out.GmailCredentials{
		AccessToken:    req.GmailAccessToken,
		RefreshToken:   req.RefreshToken,
		ServerAuthCode: req.ServerAuthCode,
		EmailAddress:   req.EmailGmail,
	}, nil
}

// ensureAccount upserts the mailbox row so triage output can reference
// its id and refreshed tokens survive the process.
func (s *Service) ensureAccount(ctx context.Context, userID uuid.UUID, req *in.SyncEmailsRequest) (*domain.EmailAccount, error) {
	account := &domain.EmailAccount{
		UserID:       userID,
		EmailAddress: strings.ToLower(strings.TrimSpace(req.EmailGmail)),
		AccessToken:  req.GmailAccessToken,
		RefreshToken: req.RefreshToken,
		Active:       true,
	}
	if err := s.repo.UpsertEmailAccount(ctx, account); err != nil {
		return nil, err
	}
	if account.ID == 0 {
		stored, err := s.repo.GetEmailAccount(ctx, userID, account.EmailAddress)
		if err == nil && stored != nil {
			return stored, nil
		}
	}
	return account, nil
}

func topCritical(critical []*domain.AnalyzedEmail) *domain.AnalyzedEmail {
	var top *domain.AnalyzedEmail
	for _, e := range critical {
		if top == nil || e.ImportanceScore > top.ImportanceScore {
			top = e
		}
	}
	return top
}
