// Package chat routes free-text input through the intent gate and the
// downstream processors: task extraction, value memorisation and the
// consulta engine.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/in"
	"nexus_server/core/port/out"
	"nexus_server/core/service/extract"
	"nexus_server/core/service/memory"
	"nexus_server/pkg/apperr"
	"nexus_server/pkg/logger"
)

// UrgentPrefix marks high-urgency replies.
const UrgentPrefix = "🚨 [URGENTE] "

// urgentKeywords is the closed lexicon of the rule-based urgency
// detector.
var urgentKeywords = []string{
	"urgente", "ayuda", "emergencia", "error crítico", "error critico",
	"para ya", "plazo vence",
}

// complaintKeywords drive the gate's rule-based fallback.
var complaintKeywords = []string{
	"por qué", "por que", "qué pasó", "que paso", "error", "no pudiste",
}

// confirmKeywords gate push delivery on the value path.
var confirmKeywords = []string{
	"confirma", "avisa", "notifica", "recuérdame", "recuerdame",
}

type Service struct {
	llm        out.LLMClient
	users      out.UserRepository
	alerts     out.AlertRepository
	convs      out.ConversationRepository
	facts      out.ProfileFactRepository
	push       out.PushSender
	memory     *memory.Service
	extractor  *extract.Extractor
	fragmenter *extract.Fragmenter

	webhookUserID uuid.UUID
	log           *logger.Logger
}

func NewService(
	llm out.LLMClient,
	users out.UserRepository,
	alerts out.AlertRepository,
	convs out.ConversationRepository,
	facts out.ProfileFactRepository,
	push out.PushSender,
	mem *memory.Service,
	extractor *extract.Extractor,
	webhookUserID uuid.UUID,
) in.ChatService {
	return &Service{
		llm:           llm,
		users:         users,
		alerts:        alerts,
		convs:         convs,
		facts:         facts,
		push:          push,
		memory:        mem,
		extractor:     extractor,
		fragmenter:    extract.NewFragmenter(extractor),
		webhookUserID: webhookUserID,
		log:           logger.WithField("service", "chat"),
	}
}

func (s *Service) HandleChat(ctx context.Context, userID uuid.UUID, email, mensaje string, modoProfundo bool) (*in.ChatResult, error) {
	text := extract.CleanNoise(mensaje)
	if text == "" {
		return nil, apperr.MissingField("mensaje")
	}

	intent := s.classify(ctx, text)

	switch intent.Kind {
	case domain.IntentTask:
		return s.handleTask(ctx, userID, email, text)
	case domain.IntentValue:
		return s.handleValue(ctx, userID, email, text, intent, domain.OriginAppChat)
	default:
		respuesta := s.answerConsulta(ctx, userID, text, modoProfundo)
		if DetectUrgency(text) == domain.UrgencyHigh {
			respuesta = UrgentPrefix + respuesta
		}
		return &in.ChatResult{Respuesta: respuesta}, nil
	}
}

// HandleWebhookMessage processes one telco-webhook message under the
// generic webhook user. Failures are logged, never propagated: the
// caller must always answer the telco with an empty XML response.
func (s *Service) HandleWebhookMessage(ctx context.Context, body string) error {
	text := extract.CleanNoise(body)
	if text == "" {
		return nil
	}

	intent := s.classify(ctx, text)

	var err error
	switch intent.Kind {
	case domain.IntentTask:
		_, err = s.handleTask(ctx, s.webhookUserID, "webhook@nexus.local", text)
	case domain.IntentValue:
		_, err = s.handleValue(ctx, s.webhookUserID, "webhook@nexus.local", text, intent, domain.OriginWhatsAppWebhook)
	}
	if err != nil {
		s.log.WithError(err).Warn("webhook message dropped")
	}
	return nil
}

// AnalyzeFiles runs one structured analysis over the concatenated
// uploads and memorises the outcome.
func (s *Service) AnalyzeFiles(ctx context.Context, userID uuid.UUID, email string, contents []string) (*in.FileAnalysisResult, error) {
	combined := strings.TrimSpace(strings.Join(contents, "\n\n"))
	if combined == "" {
		return nil, apperr.MissingField("files")
	}

	analysis, err := s.llm.AnalyzeDocument(ctx, combined)
	if err != nil {
		return nil, err
	}

	urgency := riskToUrgency(analysis.NivelRiesgo)

	conv := &domain.Conversation{
		UserID:  userID,
		Summary: analysis.ResumenRapido,
		Type:    domain.ConversationOther,
		Urgency: urgency,
		Origin:  domain.OriginAppFile,
	}
	s.memory.AttachEmbedding(ctx, conv)
	if err := s.createConversation(ctx, userID, email, conv); err != nil {
		s.log.WithError(err).WithUser(userID.String()).Warn("file analysis not memorised")
	}

	now := time.Now().In(s.extractor.Location())
	var created []string
	for _, alertText := range analysis.AlertasUrgentes {
		env := s.extractor.Extract(alertText, now)
		alert := &domain.Alert{
			UserID:      userID,
			Title:       truncateTitle(alertText),
			Description: alertText,
			Priority:    urgency,
			Type:        domain.AlertTypeAutoDetected,
			State:       domain.AlertStatePending,
			Label:       domain.LabelOthers,
			DueAt:       dueFromEnvelope(env, s.extractor.Location()),
			Metadata:    env,
		}
		if conv.ID != 0 {
			id := conv.ID
			alert.ConversationID = &id
		}
		if err := s.createAlert(ctx, userID, email, alert); err != nil {
			s.log.WithError(err).Warn("document alert skipped")
			continue
		}
		created = append(created, alert.Title)
	}

	return &in.FileAnalysisResult{
		Respuesta:        analysis.ResumenRapido,
		AlertasGeneradas: created,
		NivelRiesgo:      analysis.NivelRiesgo,
	}, nil
}

// classify runs the intent gate with its deterministic fallback.
func (s *Service) classify(ctx context.Context, text string) *domain.Intent {
	intent, err := s.llm.ClassifyIntent(ctx, text)
	if err == nil {
		return intent
	}
	s.log.WithError(err).Warn("intent gate fell back to rules")

	lower := strings.ToLower(text)
	if len([]rune(text)) > 20 || containsAny(lower, complaintKeywords) {
		return &domain.Intent{Kind: domain.IntentValue, Urgency: domain.UrgencyMedium, Fallback: true}
	}
	return &domain.Intent{Kind: domain.IntentNoise, Urgency: domain.UrgencyLow, Fallback: true}
}

// DetectUrgency is the rule-based urgency check used for reply
// prefixing.
func DetectUrgency(text string) domain.Urgency {
	if len([]rune(text)) < 3 {
		return domain.UrgencyLow
	}
	if containsAny(strings.ToLower(text), urgentKeywords) {
		return domain.UrgencyHigh
	}
	return domain.UrgencyLow
}

// createAlert inserts with the one-shot auto-provision retry on FK
// violation.
func (s *Service) createAlert(ctx context.Context, userID uuid.UUID, email string, alert *domain.Alert) error {
	err := s.alerts.CreateAlert(ctx, alert)
	if !apperr.IsDataIntegrity(err) {
		return err
	}

	if provErr := s.users.CreateUser(ctx, &domain.User{ID: userID, Email: email}); provErr != nil {
		s.log.WithError(provErr).WithUser(userID.String()).Error("auto-provision failed")
		return err
	}
	return s.alerts.CreateAlert(ctx, alert)
}

// createConversation mirrors createAlert's provision-and-retry.
func (s *Service) createConversation(ctx context.Context, userID uuid.UUID, email string, conv *domain.Conversation) error {
	err := s.convs.CreateConversation(ctx, conv)
	if !apperr.IsDataIntegrity(err) {
		return err
	}

	if provErr := s.users.CreateUser(ctx, &domain.User{ID: userID, Email: email}); provErr != nil {
		return err
	}
	return s.convs.CreateConversation(ctx, conv)
}

// sendPush delivers one notification to the user's device, silently
// skipping users without a token.
func (s *Service) sendPush(ctx context.Context, userID uuid.UUID, notification *domain.PushNotification) {
	if s.push == nil {
		return
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil || user == nil || !user.HasPushToken() {
		return
	}
	notification.Token = *user.PushToken

	if err := s.push.Send(ctx, notification); err != nil {
		s.log.WithError(err).WithUser(userID.String()).Warn("push not delivered")
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func riskToUrgency(risk string) domain.Urgency {
	switch strings.ToLower(risk) {
	case "alto", "alta":
		return domain.UrgencyHigh
	case "medio", "media":
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= 80 {
		return s
	}
	return string(runes[:80])
}

func dueFromEnvelope(env *domain.Envelope, loc *time.Location) *time.Time {
	if env == nil || env.FechaHora == nil {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", env.FechaHora.Fecha+"T"+env.FechaHora.Hora, loc)
	if err != nil {
		return nil
	}
	return &t
}
