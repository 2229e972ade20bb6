package email

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
)

// Layer 1 lexicons. Matching is substring over the lowercased field.
var (
	spamSenderParts = []string{
		"noreply", "no-reply", "newsletter", "marketing",
		"notifications", "promo", "deals", "offers",
	}
	spamSubjectWords = []string{
		"unsubscribe", "suscripción", "descuento", "oferta",
		"% off", "compra ahora", "click here", "gratis",
		"winner", "ganador", "premio", "sorteo",
	}
	corporateTLDs = []string{".edu", ".gob", ".com.pe"}

	// actionTriggers group the keywords that justify spending an LLM
	// call on the email. One group match is enough.
	actionTriggers = [][]string{
		{"urgente", "prioridad", "inmediato", "cuanto antes", "deadline"},
		{"entrevista", "oferta laboral", "vacante", "postulación", "proceso de selección", "segunda etapa"},
		{"tarea", "examen", "proyecto", "entrega", "plazo", "calificación"},
		{"contrato", "firma", "documento", "trámite", "constancia", "certificado"},
		{"factura", "pago", "vencimiento", "cobro", "transferencia", "deuda"},
	}

	mentionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`@\w+`),
		regexp.MustCompile(`\btu\b.*\b(debes|necesitas|solicito|requiero)`),
		regexp.MustCompile(`favor.*responder`),
		regexp.MustCompile(`necesito.*que`),
	}
)

const (
	minBodyLen     = 50
	maxBodyLinks   = 5
	minLayer1Score = 30
	deepScoreGate  = 70
)

// triageOne runs the full cascade over one email. It returns the stored
// analysis row, or nil when any layer dropped the email.
func (s *Service) triageOne(ctx context.Context, userID uuid.UUID, accountID int64, incoming *domain.IncomingEmail, stats *domain.TriageStats) *domain.AnalyzedEmail {
	// Layer 1: no LLM.
	if isObviousSpam(incoming) {
		stats.Layer1Drops++
		return nil
	}
	score := initialScore(incoming)
	if score < minLayer1Score {
		stats.Layer1Drops++
		return nil
	}

	// Layer 2: cheap classification.
	if err := s.pace(ctx); err != nil {
		return nil
	}
	stats.LLMCalls++
	classification, err := s.llm.ClassifyEmail(ctx, incoming)
	if err != nil {
		s.log.WithError(err).Warn("email classification failed, email skipped")
		stats.Layer2Drops++
		return nil
	}
	if classification.Category == domain.EmailCategorySpam || !classification.RequiresAction {
		stats.Layer2Drops++
		return nil
	}

	analyzed := &domain.AnalyzedEmail{
		UserID:          userID,
		EmailAccountID:  accountID,
		GmailMessageID:  incoming.GmailMessageID,
		Sender:          incoming.Sender,
		Subject:         incoming.Subject,
		Date:            incoming.Date,
		ImportanceScore: score,
		Category:        classification.Category,
		Urgency:         classification.Urgency,
		RequiresAction:  classification.RequiresAction,
		Metadata: map[string]any{
			"gmail_message_id": incoming.GmailMessageID,
			"resumen_corto":    classification.ShortSummary,
			"thread_id":        incoming.ThreadID,
		},
	}

	// Layer 3: deep analysis for urgent or high-scoring emails.
	if classification.Urgency == "alta" || score > deepScoreGate {
		s.deepAnalyze(ctx, userID, incoming, analyzed, stats)
	}

	s.archiveBody(ctx, userID, incoming)

	if err := s.repo.CreateAnalyzedEmail(ctx, analyzed); err != nil {
		s.log.WithError(err).Warn("analyzed email not stored")
		return nil
	}
	stats.Analyzed++
	return analyzed
}

// deepAnalyze enriches the row with the sender-aware deep pass. A
// failure leaves the layer-2 fields untouched.
func (s *Service) deepAnalyze(ctx context.Context, userID uuid.UUID, incoming *domain.IncomingEmail, analyzed *domain.AnalyzedEmail, stats *domain.TriageStats) {
	senderCtx, err := s.repo.GetSenderContext(ctx, userID, incoming.Sender, senderContextLimit)
	if err != nil {
		s.log.WithError(err).Warn("sender context unavailable, first-contact prompt used")
		senderCtx = &domain.SenderContext{FirstContact: true}
	}

	if err := s.pace(ctx); err != nil {
		return
	}
	stats.LLMCalls++
	deep, err := s.llm.AnalyzeEmailDeep(ctx, incoming, senderCtx)
	if err != nil {
		s.log.WithError(err).Warn("deep analysis failed, classification kept")
		return
	}

	analyzed.SuggestedReply = deep.RespuestaSugerida
	analyzed.DetectedTone = deep.TonoDetectado
	analyzed.PendingActions = deep.AccionesPendientes
	analyzed.DueDate = parseDueDate(deep.FechaLimite)
	if deep.PrioridadFinal != "" {
		analyzed.Urgency = normalizeUrgency(deep.PrioridadFinal, analyzed.Urgency)
	}
	analyzed.Metadata["contexto"] = deep.ContextoAdicional
	analyzed.Metadata["cambio_tono"] = deep.CambioTono
	analyzed.Metadata["historial_previo"] = senderCtx.TotalEmails
}

func (s *Service) archiveBody(ctx context.Context, userID uuid.UUID, incoming *domain.IncomingEmail) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveBody(ctx, userID, incoming.GmailMessageID, incoming.Body); err != nil {
		s.log.WithError(err).Warn("body archive skipped")
	}
}

func (s *Service) pace(ctx context.Context) error {
	if s.pacer == nil {
		return nil
	}
	return s.pacer.Wait(ctx)
}

// isObviousSpam is the pattern half of Layer 1.
func isObviousSpam(e *domain.IncomingEmail) bool {
	sender := strings.ToLower(e.Sender)
	subject := strings.ToLower(e.Subject)
	body := lowerPrefix(e.Body, 500)

	for _, part := range spamSenderParts {
		if strings.Contains(sender, part) {
			return true
		}
	}
	for _, word := range spamSubjectWords {
		if strings.Contains(subject, word) {
			return true
		}
	}
	if len(body) < minBodyLen {
		return true
	}
	if strings.Count(strings.ToLower(e.Body), "http") > maxBodyLinks {
		return true
	}
	return false
}

// initialScore is the 0..100 rule-based importance estimate.
func initialScore(e *domain.IncomingEmail) int {
	score := 0
	subject := strings.ToLower(e.Subject)
	body := strings.ToLower(e.Body)

	for _, group := range actionTriggers {
		matched := false
		for _, word := range group {
			if strings.Contains(subject, word) || strings.Contains(body, word) {
				matched = true
				break
			}
		}
		if matched {
			score += 30
			break
		}
	}

	if mentionsUser(body) {
		score += 20
	}

	sender := strings.ToLower(e.Sender)
	for _, tld := range corporateTLDs {
		if strings.Contains(sender, tld) {
			score += 15
			break
		}
	}

	if words := len(strings.Fields(e.Subject)); words > 5 && words < 10 {
		score += 10
	}

	if !strings.Contains(body, "<img") && len(body) < 2000 {
		score += 10
	}

	if strings.Contains(body, "unsubscribe") || strings.Contains(body, "darse de baja") {
		score -= 20
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func mentionsUser(lowerBody string) bool {
	for _, pattern := range mentionPatterns {
		if pattern.MatchString(lowerBody) {
			return true
		}
	}
	return false
}

func lowerPrefix(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return strings.ToLower(s)
}

func parseDueDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func normalizeUrgency(raw, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "alta", "media", "baja":
		return strings.ToLower(strings.TrimSpace(raw))
	default:
		return fallback
	}
}
