package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/logger"
)

type triageLLM struct {
	classification *domain.EmailClassification
	classifyErr    error
	deep           *domain.EmailDeepAnalysis
	deepErr        error
	classifyCalls  int
	deepCalls      int
}

func (f *triageLLM) ClassifyEmail(ctx context.Context, email *domain.IncomingEmail) (*domain.EmailClassification, error) {
	f.classifyCalls++
	return f.classification, f.classifyErr
}

func (f *triageLLM) AnalyzeEmailDeep(ctx context.Context, email *domain.IncomingEmail, senderCtx *domain.SenderContext) (*domain.EmailDeepAnalysis, error) {
	f.deepCalls++
	return f.deep, f.deepErr
}

func (f *triageLLM) ClassifyIntent(ctx context.Context, text string) (*domain.Intent, error) {
	return nil, nil
}

func (f *triageLLM) ExtractSubActions(ctx context.Context, text, fechaReferencia string, envelope *domain.Envelope) ([]domain.SubAction, error) {
	return nil, nil
}

func (f *triageLLM) ProcessValue(ctx context.Context, text string, intent *domain.Intent) (*domain.ValueResult, error) {
	return nil, nil
}

func (f *triageLLM) AnswerConsulta(ctx context.Context, question, contextBlock string) (string, error) {
	return "", nil
}

func (f *triageLLM) SummarizeSender(ctx context.Context, sender string, samples []string) (string, string, string, error) {
	return "", "", "", nil
}

func (f *triageLLM) RunBrain(ctx context.Context, chatName, previousSummary, transcript string) (*domain.BrainResult, error) {
	return nil, nil
}

func (f *triageLLM) AnalyzeDocument(ctx context.Context, content string) (*out.FileAnalysis, error) {
	return nil, nil
}

type triageRepo struct {
	stored    []*domain.AnalyzedEmail
	senderCtx *domain.SenderContext
}

func (f *triageRepo) UpsertEmailAccount(ctx context.Context, account *domain.EmailAccount) error {
	account.ID = 1
	return nil
}

func (f *triageRepo) GetEmailAccount(ctx context.Context, userID uuid.UUID, address string) (*domain.EmailAccount, error) {
	return nil, nil
}

func (f *triageRepo) ExistingGmailIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (f *triageRepo) CreateAnalyzedEmail(ctx context.Context, email *domain.AnalyzedEmail) error {
	email.ID = int64(len(f.stored) + 1)
	f.stored = append(f.stored, email)
	return nil
}

func (f *triageRepo) ListAnalyzedEmails(ctx context.Context, userID uuid.UUID, onlyPending bool) ([]*domain.AnalyzedEmail, error) {
	return f.stored, nil
}

func (f *triageRepo) ListAnsweredEmails(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AnalyzedEmail, int, error) {
	return nil, 0, nil
}

func (f *triageRepo) MarkEmailRead(ctx context.Context, userID uuid.UUID, id int64) error {
	return nil
}

func (f *triageRepo) MarkEmailAnswered(ctx context.Context, userID uuid.UUID, id int64, answeredAt time.Time, sentReply string) error {
	return nil
}

func (f *triageRepo) RevertEmailAnswered(ctx context.Context, userID uuid.UUID, id int64) error {
	return nil
}

func (f *triageRepo) GetSenderContext(ctx context.Context, userID uuid.UUID, sender string, limit int) (*domain.SenderContext, error) {
	if f.senderCtx != nil {
		return f.senderCtx, nil
	}
	return &domain.SenderContext{FirstContact: true}, nil
}

func (f *triageRepo) UpsertSenderProfile(ctx context.Context, profile *domain.SenderProfile) error {
	return nil
}

func (f *triageRepo) HistoricPassDone(ctx context.Context, userID uuid.UUID, accountID int64) (bool, error) {
	return false, nil
}

func (f *triageRepo) MarkHistoricPassDone(ctx context.Context, userID uuid.UUID, accountID int64) error {
	return nil
}

func newTriageService(llm *triageLLM, repo *triageRepo) *Service {
	return &Service{
		repo: repo,
		llm:  llm,
		log:  logger.WithField("service", "email_test"),
	}
}

func TestIsObviousSpam(t *testing.T) {
	longBody := strings.Repeat("contenido relevante ", 10)
	tests := []struct {
		name  string
		email *domain.IncomingEmail
		want  bool
	}{
		{
			name:  "newsletter sender",
			email: &domain.IncomingEmail{Sender: "newsletter@deals.example", Subject: "Novedades", Body: longBody},
			want:  true,
		},
		{
			name:  "spam subject",
			email: &domain.IncomingEmail{Sender: "juan@empresa.com", Subject: "50% off en todo", Body: longBody},
			want:  true,
		},
		{
			name:  "short automated body",
			email: &domain.IncomingEmail{Sender: "juan@empresa.com", Subject: "Aviso", Body: "Ok"},
			want:  true,
		},
		{
			name: "link farm",
			email: &domain.IncomingEmail{
				Sender:  "juan@empresa.com",
				Subject: "Mira esto",
				Body:    longBody + strings.Repeat(" http://x.example/a", 6),
			},
			want: true,
		},
		{
			name:  "clean personal email",
			email: &domain.IncomingEmail{Sender: "juan@empresa.com", Subject: "Reunión de avance", Body: longBody},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isObviousSpam(tt.email); got != tt.want {
				t.Errorf("isObviousSpam() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitialScore(t *testing.T) {
	tests := []struct {
		name  string
		email *domain.IncomingEmail
		want  int
	}{
		{
			// contrato(+30), "necesito que"(+20), .com.pe(+15), short clean body(+10)
			name: "corporate action email",
			email: &domain.IncomingEmail{
				Sender:  "gerente@empresa.com.pe",
				Subject: "Entrega del contrato pendiente",
				Body:    "Hola, necesito que revises el contrato y lo firmes cuanto antes.",
			},
			want: 75,
		},
		{
			// pago(+30), short clean body(+10)
			name: "personal payment email",
			email: &domain.IncomingEmail{
				Sender:  "amigo@gmail.com",
				Subject: "Pago de la cena",
				Body:    "Te escribo por el pago de la cena del sábado, avísame cuando puedas.",
			},
			want: 40,
		},
		{
			// factura(+30), short clean body(+10), unsubscribe(-20)
			name: "newsletter with invoice wording",
			email: &domain.IncomingEmail{
				Sender:  "billing@shop.example",
				Subject: "Factura",
				Body:    "Su factura del mes está lista. Para dejar de recibir esto haga unsubscribe.",
			},
			want: 20,
		},
		{
			name: "empty marketing blob",
			email: &domain.IncomingEmail{
				Sender:  "hola@blog.example",
				Subject: "Hola",
				Body:    "<img src='banner'>" + strings.Repeat("x", 2100),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := initialScore(tt.email); got != tt.want {
				t.Errorf("initialScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTriageLayer1DropsWithoutLLM(t *testing.T) {
	llm := &triageLLM{}
	repo := &triageRepo{}
	svc := newTriageService(llm, repo)
	stats := &domain.TriageStats{}

	spam := &domain.IncomingEmail{
		GmailMessageID: "m1",
		Sender:         "newsletter@deals.example",
		Subject:        "50% off",
		Body:           strings.Repeat("promo http://a.example ", 10),
	}
	if got := svc.triageOne(context.Background(), uuid.New(), 1, spam, stats); got != nil {
		t.Fatal("spam email produced a row")
	}
	if stats.Layer1Drops != 1 || stats.LLMCalls != 0 || llm.classifyCalls != 0 {
		t.Errorf("stats = %+v, classify calls = %d", stats, llm.classifyCalls)
	}
	if len(repo.stored) != 0 {
		t.Error("spam email was stored")
	}
}

func TestTriageLayer2Drop(t *testing.T) {
	llm := &triageLLM{
		classification: &domain.EmailClassification{
			RequiresAction: false,
			Category:       domain.EmailCategoryNotification,
			Urgency:        "baja",
		},
	}
	repo := &triageRepo{}
	svc := newTriageService(llm, repo)
	stats := &domain.TriageStats{}

	email := &domain.IncomingEmail{
		GmailMessageID: "m2",
		Sender:         "amigo@gmail.com",
		Subject:        "Pago de la cena",
		Body:           "Te escribo por el pago de la cena del sábado, avísame cuando puedas.",
	}
	if got := svc.triageOne(context.Background(), uuid.New(), 1, email, stats); got != nil {
		t.Fatal("no-action email produced a row")
	}
	if stats.Layer2Drops != 1 || stats.LLMCalls != 1 || llm.deepCalls != 0 {
		t.Errorf("stats = %+v, deep calls = %d", stats, llm.deepCalls)
	}
}

func TestTriageStopsAtLayer2ForMediumUrgency(t *testing.T) {
	llm := &triageLLM{
		classification: &domain.EmailClassification{
			RequiresAction: true,
			Category:       domain.EmailCategoryPersonal,
			Urgency:        "media",
			ShortSummary:   "Pago pendiente de la cena",
		},
	}
	repo := &triageRepo{}
	svc := newTriageService(llm, repo)
	stats := &domain.TriageStats{}

	// Score 40: passes Layer 1, below the deep gate.
	email := &domain.IncomingEmail{
		GmailMessageID: "m3",
		Sender:         "amigo@gmail.com",
		Subject:        "Pago de la cena",
		Body:           "Te escribo por el pago de la cena del sábado, avísame cuando puedas.",
	}
	analyzed := svc.triageOne(context.Background(), uuid.New(), 1, email, stats)
	if analyzed == nil {
		t.Fatal("actionable email was dropped")
	}
	if llm.deepCalls != 0 {
		t.Error("deep analysis ran for a medium email below the score gate")
	}
	if analyzed.SuggestedReply != "" {
		t.Error("layer-2 row must not carry deep fields")
	}
	if analyzed.ImportanceScore != 40 {
		t.Errorf("score = %d, want 40", analyzed.ImportanceScore)
	}
	if stats.Analyzed != 1 || stats.LLMCalls != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTriageDeepAnalysis(t *testing.T) {
	llm := &triageLLM{
		classification: &domain.EmailClassification{
			RequiresAction: true,
			Category:       domain.EmailCategoryWork,
			Urgency:        "alta",
			ShortSummary:   "Contrato por firmar",
		},
		deep: &domain.EmailDeepAnalysis{
			RespuestaSugerida:  "Estimado, confirmo la revisión del contrato.",
			TonoDetectado:      "formal",
			AccionesPendientes: []string{"Firmar contrato", "Responder hoy"},
			FechaLimite:        "2026-08-25",
			PrioridadFinal:     "alta",
			CambioTono:         false,
		},
	}
	repo := &triageRepo{senderCtx: &domain.SenderContext{TotalEmails: 4, CommonTone: "formal"}}
	svc := newTriageService(llm, repo)
	stats := &domain.TriageStats{}

	email := &domain.IncomingEmail{
		GmailMessageID: "m4",
		Sender:         "gerente@empresa.com.pe",
		Subject:        "Entrega del contrato pendiente",
		Body:           "Hola, necesito que revises el contrato y lo firmes cuanto antes.",
	}
	analyzed := svc.triageOne(context.Background(), uuid.New(), 1, email, stats)
	if analyzed == nil {
		t.Fatal("urgent email was dropped")
	}

	if llm.deepCalls != 1 || stats.LLMCalls != 2 {
		t.Errorf("deep calls = %d, llm calls = %d", llm.deepCalls, stats.LLMCalls)
	}
	if analyzed.SuggestedReply == "" || analyzed.DetectedTone != "formal" {
		t.Errorf("deep fields missing: %+v", analyzed)
	}
	if len(analyzed.PendingActions) != 2 {
		t.Errorf("pending actions = %v", analyzed.PendingActions)
	}
	if analyzed.DueDate == nil || analyzed.DueDate.Format("2006-01-02") != "2026-08-25" {
		t.Errorf("due date = %v", analyzed.DueDate)
	}
	if analyzed.Metadata["historial_previo"] != 4 {
		t.Errorf("metadata historial_previo = %v", analyzed.Metadata["historial_previo"])
	}
	if !analyzed.IsCritical() {
		t.Error("urgent actionable email must be critical")
	}
	if len(repo.stored) != 1 {
		t.Errorf("stored rows = %d", len(repo.stored))
	}
}

func TestTriageDeepFailureKeepsClassification(t *testing.T) {
	llm := &triageLLM{
		classification: &domain.EmailClassification{
			RequiresAction: true,
			Category:       domain.EmailCategoryWork,
			Urgency:        "alta",
		},
		deepErr: context.DeadlineExceeded,
	}
	repo := &triageRepo{}
	svc := newTriageService(llm, repo)
	stats := &domain.TriageStats{}

	email := &domain.IncomingEmail{
		GmailMessageID: "m5",
		Sender:         "gerente@empresa.com.pe",
		Subject:        "Entrega del contrato pendiente",
		Body:           "Hola, necesito que revises el contrato y lo firmes cuanto antes.",
	}
	analyzed := svc.triageOne(context.Background(), uuid.New(), 1, email, stats)
	if analyzed == nil {
		t.Fatal("deep failure must not drop the email")
	}
	if analyzed.Urgency != "alta" || analyzed.SuggestedReply != "" {
		t.Errorf("row after deep failure = %+v", analyzed)
	}
	if len(repo.stored) != 1 {
		t.Error("layer-2 row not stored after deep failure")
	}
}

func TestParseDueDate(t *testing.T) {
	if got := parseDueDate("2026-08-25"); got == nil || got.Day() != 25 {
		t.Errorf("parseDueDate valid = %v", got)
	}
	for _, raw := range []string{"", "null", "pronto", "25/08/2026"} {
		if got := parseDueDate(raw); got != nil {
			t.Errorf("parseDueDate(%q) = %v, want nil", raw, got)
		}
	}
}

func TestTopSenders(t *testing.T) {
	mk := func(sender string, n int) []*domain.IncomingEmail {
		emails := make([]*domain.IncomingEmail, n)
		for i := range emails {
			emails[i] = &domain.IncomingEmail{Sender: sender}
		}
		return emails
	}
	groups := map[string][]*domain.IncomingEmail{
		"a@x.com": mk("a@x.com", 2),
		"b@x.com": mk("b@x.com", 5),
		"c@x.com": mk("c@x.com", 3),
	}

	got := topSenders(groups, 2)
	if len(got) != 2 || got[0] != "b@x.com" || got[1] != "c@x.com" {
		t.Errorf("topSenders = %v", got)
	}
}

func TestTopKeywords(t *testing.T) {
	emails := []*domain.IncomingEmail{
		{Subject: "Proyecto final", Body: "El proyecto necesita revisión del proyecto base."},
		{Subject: "Revisión", Body: "La revisión es corta."},
	}
	got := topKeywords(emails, 2)
	if len(got) != 2 || got[0] != "proyecto" || got[1] != "revisión" {
		t.Errorf("topKeywords = %v", got)
	}
}

func TestSenderProfileStats(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	emails := []*domain.IncomingEmail{
		{Sender: "a@x.com", Date: base, Body: strings.Repeat("a", 100)},
		{Sender: "a@x.com", Date: base.AddDate(0, 0, 4).Add(time.Hour), Body: strings.Repeat("a", 300)},
		{Sender: "a@x.com", Date: base.AddDate(0, 0, 8), Body: strings.Repeat("a", 200)},
	}

	profile := buildSenderProfile(uuid.New(), 1, "a@x.com", emails)
	if profile.TotalEmails != 3 {
		t.Errorf("total = %d", profile.TotalEmails)
	}
	if profile.FirstContact != base {
		t.Errorf("first contact = %v", profile.FirstContact)
	}
	// span just over 8 days across 2 gaps
	if profile.FrequencyDays < 4 || profile.FrequencyDays > 4.1 {
		t.Errorf("frequency = %f", profile.FrequencyDays)
	}
	if profile.TypicalHour != 9 {
		t.Errorf("typical hour = %d", profile.TypicalHour)
	}
	if profile.AvgLength != 200 {
		t.Errorf("avg length = %d", profile.AvgLength)
	}
}
