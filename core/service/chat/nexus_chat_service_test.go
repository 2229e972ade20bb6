package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/core/service/extract"
	"nexus_server/core/service/memory"
	"nexus_server/pkg/apperr"
)

// ---------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------

type fakeLLM struct {
	intent     *domain.Intent
	intentErr  error
	subActions []domain.SubAction
	subErr     error
	value      *domain.ValueResult
	valueErr   error
	answer     string
	answerErr  error
}

func (f *fakeLLM) ClassifyIntent(ctx context.Context, text string) (*domain.Intent, error) {
	return f.intent, f.intentErr
}

func (f *fakeLLM) ExtractSubActions(ctx context.Context, text, fechaReferencia string, envelope *domain.Envelope) ([]domain.SubAction, error) {
	return f.subActions, f.subErr
}

func (f *fakeLLM) ProcessValue(ctx context.Context, text string, intent *domain.Intent) (*domain.ValueResult, error) {
	return f.value, f.valueErr
}

func (f *fakeLLM) AnswerConsulta(ctx context.Context, question, contextBlock string) (string, error) {
	return f.answer, f.answerErr
}

func (f *fakeLLM) ClassifyEmail(ctx context.Context, email *domain.IncomingEmail) (*domain.EmailClassification, error) {
	return nil, nil
}

func (f *fakeLLM) AnalyzeEmailDeep(ctx context.Context, email *domain.IncomingEmail, senderCtx *domain.SenderContext) (*domain.EmailDeepAnalysis, error) {
	return nil, nil
}

func (f *fakeLLM) SummarizeSender(ctx context.Context, sender string, samples []string) (string, string, string, error) {
	return "", "", "", nil
}

func (f *fakeLLM) RunBrain(ctx context.Context, chatName, previousSummary, transcript string) (*domain.BrainResult, error) {
	return nil, nil
}

func (f *fakeLLM) AnalyzeDocument(ctx context.Context, content string) (*out.FileAnalysis, error) {
	return nil, nil
}

type fakeAlertRepo struct {
	alerts      []*domain.Alert
	nextID      int64
	failCreates int // DataIntegrity errors before succeeding
	reload      *domain.Envelope
}

func (f *fakeAlertRepo) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	if f.failCreates > 0 {
		f.failCreates--
		return apperr.DataIntegrity("insert alert", nil)
	}
	f.nextID++
	alert.ID = f.nextID
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAlertRepo) GetAlert(ctx context.Context, userID uuid.UUID, id int64) (*domain.Alert, error) {
	for _, a := range f.alerts {
		if a.ID == id && a.UserID == userID {
			return a, nil
		}
	}
	return nil, apperr.NotFound("alert")
}

func (f *fakeAlertRepo) ListAlerts(ctx context.Context, filter *domain.AlertFilter) ([]*domain.Alert, error) {
	var outAlerts []*domain.Alert
	for _, a := range f.alerts {
		if a.UserID != filter.UserID {
			continue
		}
		if filter.State != nil && a.State != *filter.State {
			continue
		}
		outAlerts = append(outAlerts, a)
	}
	return outAlerts, nil
}

func (f *fakeAlertRepo) ListPriorityAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, int, error) {
	alerts, _ := f.ListAlerts(ctx, &domain.AlertFilter{UserID: userID})
	return alerts, len(alerts), nil
}

func (f *fakeAlertRepo) UpdateAlertState(ctx context.Context, userID uuid.UUID, id int64, state *domain.AlertState, label *domain.AlertLabel) (*domain.Alert, error) {
	alert, err := f.GetAlert(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if state != nil {
		alert.State = *state
	}
	if label != nil {
		alert.Label = *label
	}
	return alert, nil
}

func (f *fakeAlertRepo) ListPendingDueBefore(ctx context.Context, userID uuid.UUID, before time.Time) ([]*domain.Alert, error) {
	return nil, nil
}

func (f *fakeAlertRepo) ReloadMetadata(ctx context.Context, id int64) (*domain.Envelope, error) {
	if f.reload != nil {
		return f.reload, nil
	}
	for _, a := range f.alerts {
		if a.ID == id {
			return a.Metadata, nil
		}
	}
	return nil, apperr.NotFound("alert")
}

type fakeConvRepo struct {
	convs  []*domain.Conversation
	nextID int64
}

func (f *fakeConvRepo) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	f.nextID++
	conv.ID = f.nextID
	f.convs = append(f.convs, conv)
	return nil
}

func (f *fakeConvRepo) ListRecentConversations(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	return f.convs, nil
}

func (f *fakeConvRepo) MatchConversations(ctx context.Context, userID uuid.UUID, embedding []float64, threshold float64, topK int) ([]out.MatchedConversation, error) {
	return nil, nil
}

type fakeFactRepo struct {
	facts []*domain.ProfileFact
}

func (f *fakeFactRepo) UpsertFact(ctx context.Context, fact *domain.ProfileFact) error {
	f.facts = append(f.facts, fact)
	return nil
}

func (f *fakeFactRepo) ListFacts(ctx context.Context, userID uuid.UUID) ([]*domain.ProfileFact, error) {
	return f.facts, nil
}

type fakeUserRepo struct {
	pushToken string
	created   int
}

func (f *fakeUserRepo) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user := &domain.User{ID: id, Email: "test@example.com"}
	if f.pushToken != "" {
		token := f.pushToken
		user.PushToken = &token
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *domain.User) error {
	f.created++
	return nil
}

func (f *fakeUserRepo) UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error {
	return nil
}

func (f *fakeUserRepo) ListUsersWithPushToken(ctx context.Context) ([]*domain.User, error) {
	return nil, nil
}

type fakePush struct {
	sent []*domain.PushNotification
}

func (f *fakePush) Send(ctx context.Context, n *domain.PushNotification) error {
	f.sent = append(f.sent, n)
	return nil
}

type chatFixture struct {
	llm    *fakeLLM
	alerts *fakeAlertRepo
	convs  *fakeConvRepo
	facts  *fakeFactRepo
	users  *fakeUserRepo
	push   *fakePush
	svc    *Service
	userID uuid.UUID
}

func newFixture(llm *fakeLLM) *chatFixture {
	f := &chatFixture{
		llm:    llm,
		alerts: &fakeAlertRepo{},
		convs:  &fakeConvRepo{},
		facts:  &fakeFactRepo{},
		users:  &fakeUserRepo{pushToken: "token-1"},
		push:   &fakePush{},
		userID: uuid.New(),
	}
	mem := memory.NewService(nil, f.convs, 0.6, 3)
	svc := NewService(llm, f.users, f.alerts, f.convs, f.facts, f.push, mem,
		extract.New(), uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	f.svc = svc.(*Service)
	return f
}

// ---------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------

func TestHandleChatTaskBundle(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentTask, Urgency: domain.UrgencyMedium},
		subActions: []domain.SubAction{
			{Titulo: "Alarma", Descripcion: "Alarma a las 2pm", TipoAccion: "poner_alarma",
				Prioridad: "ALTA", Etiqueta: "PERSONAL", FechaISO: "2026-02-05T14:00:00"},
			{Titulo: "Reunión por Meet con Carlos", Descripcion: "Meet a las 5pm", TipoAccion: "crear_meet",
				Prioridad: "ALTA", Etiqueta: "BUSINESS", FechaISO: "2026-02-05T17:00:00"},
		},
	}
	f := newFixture(llm)

	result, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"Mañana a las 2pm ponme una alarma y a las 5pm reunión por Meet con Carlos", false)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.alerts.alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(f.alerts.alerts))
	}
	alert := f.alerts.alerts[0]

	acts := alert.Metadata.AccionesProgramadas
	if len(acts) != 2 {
		t.Fatalf("got %d scheduled actions, want 2", len(acts))
	}
	if acts[0].Tipo != "poner_alarma" || acts[0].FechaHoraEspecifica != "2026-02-05T14:00:00" {
		t.Errorf("action 0 = %+v", acts[0])
	}
	if acts[1].Tipo != "crear_meet" || acts[1].FechaHoraEspecifica != "2026-02-05T17:00:00" {
		t.Errorf("action 1 = %+v", acts[1])
	}
	if acts[1].DatoExtra != domain.MeetPlaceholder {
		t.Errorf("meet dato_extra = %q, want placeholder", acts[1].DatoExtra)
	}
	if alert.Metadata.LinkMeet == nil || *alert.Metadata.LinkMeet != domain.MeetPlaceholder {
		t.Error("link_meet not recorded")
	}
	if alert.Metadata.TipoAccion != domain.ActionMultiple {
		t.Errorf("tipo_accion = %s, want multiple", alert.Metadata.TipoAccion)
	}

	// No agendar_calendario present: primary is the first sub-action.
	if alert.Title != "Alarma" {
		t.Errorf("alert title = %q", alert.Title)
	}
	if alert.DueAt == nil || alert.DueAt.Format("2006-01-02T15:04:05") != "2026-02-05T14:00:00" {
		t.Errorf("due_at = %v", alert.DueAt)
	}

	if len(f.push.sent) != 1 {
		t.Fatalf("got %d pushes, want 1", len(f.push.sent))
	}
	push := f.push.sent[0]
	if push.Data[domain.PushKeyAutoExec] != "true" {
		t.Error("push missing ejecutar_automatico")
	}
	if push.Data[domain.PushKeyAlertaID] != "1" {
		t.Errorf("push alerta_id = %q", push.Data[domain.PushKeyAlertaID])
	}
	if push.Data[domain.PushKeyAccionesJSON] == "" {
		t.Error("push missing acciones_json")
	}

	if len(result.AlertasGeneradas) != 1 || result.AlertasGeneradas[0] != "Alarma" {
		t.Errorf("alertas_generadas = %v", result.AlertasGeneradas)
	}
}

func TestHandleChatTaskPrimaryIsCalendar(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentTask, Urgency: domain.UrgencyMedium},
		subActions: []domain.SubAction{
			{Titulo: "Alarma", TipoAccion: "poner_alarma", Prioridad: "MEDIA", FechaISO: "2026-02-05T08:00:00"},
			{Titulo: "Entrevista", Descripcion: "Entrevista en la oficina", TipoAccion: "agendar_calendario",
				Prioridad: "ALTA", Etiqueta: "BUSINESS", FechaISO: "2026-02-05T17:00:00"},
		},
	}
	f := newFixture(llm)

	if _, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"entrevista mañana", false); err != nil {
		t.Fatal(err)
	}

	alert := f.alerts.alerts[0]
	if alert.Title != "Entrevista" {
		t.Errorf("primary should be agendar_calendario, got %q", alert.Title)
	}
	if alert.Priority != domain.PriorityHigh || alert.Label != domain.LabelBusiness {
		t.Errorf("priority/label = %s/%s", alert.Priority, alert.Label)
	}
}

func TestHandleChatTaskFallback(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentTask, Urgency: domain.UrgencyMedium},
		subErr: apperr.LLMError("model down", nil),
	}
	f := newFixture(llm)

	result, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"Recuérdame pasar por la farmacia", false)
	if err != nil {
		t.Fatal(err)
	}

	alert := f.alerts.alerts[0]
	if alert.Title != "Recordatorio Rápido" {
		t.Errorf("fallback title = %q", alert.Title)
	}
	if alert.Description != "Recuérdame pasar por la farmacia" {
		t.Errorf("fallback description = %q", alert.Description)
	}
	if alert.Priority != domain.PriorityMedium || alert.Label != domain.LabelOthers {
		t.Errorf("fallback priority/label = %s/%s", alert.Priority, alert.Label)
	}
	if alert.DueAt != nil {
		t.Error("fallback alert must not carry due_at")
	}
	if result.Metadata == nil {
		t.Error("fallback keeps the deterministic envelope")
	}
}

func TestHandleChatTaskAutoProvisionRetry(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentTask, Urgency: domain.UrgencyMedium},
		subActions: []domain.SubAction{
			{Titulo: "Cita", TipoAccion: "agendar_calendario", Prioridad: "MEDIA", FechaISO: "2026-02-05T10:00:00"},
		},
	}
	f := newFixture(llm)
	f.alerts.failCreates = 1

	if _, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com", "cita mañana", false); err != nil {
		t.Fatal(err)
	}
	if f.users.created != 1 {
		t.Errorf("auto-provision ran %d times, want 1", f.users.created)
	}
	if len(f.alerts.alerts) != 1 {
		t.Errorf("alert not stored after retry")
	}
}

func TestHandleChatTaskProvisionExhausted(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentTask, Urgency: domain.UrgencyMedium},
		subActions: []domain.SubAction{
			{Titulo: "Cita", TipoAccion: "agendar_calendario", Prioridad: "MEDIA", FechaISO: "2026-02-05T10:00:00"},
		},
	}
	f := newFixture(llm)
	f.alerts.failCreates = 2 // retry also fails

	_, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com", "cita mañana", false)
	if !apperr.IsDataIntegrity(err) {
		t.Fatalf("want data integrity error, got %v", err)
	}
}

func TestHandleChatValue(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentValue, Subtype: "salud", Urgency: domain.UrgencyMedium},
		value: &domain.ValueResult{
			ResumenGuardar:      "El usuario es alérgico a las nueces",
			TipoEvento:          "personal",
			AprendizajesUsuario: []string{"Es alérgico a las nueces"},
		},
	}
	f := newFixture(llm)

	result, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"Soy alérgico a las nueces", false)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.convs.convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(f.convs.convs))
	}
	conv := f.convs.convs[0]
	if conv.Type != domain.ConversationPersonal || conv.Origin != domain.OriginAppChat {
		t.Errorf("conversation type/origin = %s/%s", conv.Type, conv.Origin)
	}

	if len(f.facts.facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(f.facts.facts))
	}
	fact := f.facts.facts[0]
	if fact.Category != domain.FactCategoryAuto {
		t.Errorf("fact category = %q", fact.Category)
	}
	if fact.OriginRef != "conv_1" {
		t.Errorf("fact origin_ref = %q", fact.OriginRef)
	}

	if len(f.alerts.alerts) != 0 {
		t.Errorf("value without tasks created %d alerts", len(f.alerts.alerts))
	}
	if len(f.push.sent) != 0 {
		t.Error("value without tasks must not push")
	}
	if len(result.NuevosAprendizajes) != 1 {
		t.Errorf("aprendizajes = %v", result.NuevosAprendizajes)
	}
}

func TestHandleChatValuePushPolicy(t *testing.T) {
	value := &domain.ValueResult{
		ResumenGuardar: "Acordó entregar el informe",
		TipoEvento:     "acuerdo",
		Tareas: []domain.DerivedTask{
			{Titulo: "Entregar informe", Prioridad: "MEDIA", Descripcion: "Enviar informe al cliente", Etiqueta: "BUSINESS"},
		},
	}

	// Medium priority, no confirmation keyword: no push.
	llm := &fakeLLM{intent: &domain.Intent{Kind: domain.IntentValue, Urgency: domain.UrgencyMedium}, value: value}
	f := newFixture(llm)
	if _, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"Quedé en entregar el informe la próxima semana", false); err != nil {
		t.Fatal(err)
	}
	if len(f.push.sent) != 0 {
		t.Error("push fired without keyword or high priority")
	}

	// Confirmation keyword forces the push.
	f = newFixture(llm)
	if _, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"Avisa cuando quede registrado que entregaré el informe", false); err != nil {
		t.Fatal(err)
	}
	if len(f.push.sent) != 1 {
		t.Error("confirmation keyword did not fire push")
	}

	// High-priority derived task forces the push.
	high := *value
	high.Tareas = []domain.DerivedTask{{Titulo: "Pagar impuestos", Prioridad: "ALTA", Etiqueta: "BUSINESS"}}
	f = newFixture(&fakeLLM{intent: llm.intent, value: &high})
	if _, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"Quedé en pagar los impuestos este mes sin falta", false); err != nil {
		t.Fatal(err)
	}
	if len(f.push.sent) != 1 {
		t.Error("high-priority task did not fire push")
	}
}

func TestHandleChatNoise(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentNoise, Urgency: domain.UrgencyLow},
		answer: "¡Hola! ¿En qué te ayudo?",
	}
	f := newFixture(llm)

	result, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com", "Hola", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Respuesta != "¡Hola! ¿En qué te ayudo?" {
		t.Errorf("respuesta = %q", result.Respuesta)
	}
	if len(f.convs.convs) != 0 || len(f.alerts.alerts) != 0 || len(f.facts.facts) != 0 {
		t.Error("noise must not write anything")
	}
}

func TestHandleChatUrgentPrefix(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentNoise, Urgency: domain.UrgencyLow},
		answer: "Llamando a emergencias.",
	}
	f := newFixture(llm)

	result, err := f.svc.HandleChat(context.Background(), f.userID, "test@example.com",
		"ayuda", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(result.Respuesta, UrgentPrefix) {
		t.Errorf("urgent reply missing prefix: %q", result.Respuesta)
	}
}

func TestClassifyFallbackRule(t *testing.T) {
	llm := &fakeLLM{intentErr: apperr.LLMError("model down", nil)}
	f := newFixture(llm)

	long := f.svc.classify(context.Background(), "Este mensaje es bastante más largo que veinte caracteres")
	if long.Kind != domain.IntentValue || !long.Fallback {
		t.Errorf("long text fallback = %+v", long)
	}

	complaint := f.svc.classify(context.Background(), "qué pasó ayer?")
	if complaint.Kind != domain.IntentValue {
		t.Errorf("complaint fallback = %+v", complaint)
	}

	short := f.svc.classify(context.Background(), "ok")
	if short.Kind != domain.IntentNoise || !short.Fallback {
		t.Errorf("short text fallback = %+v", short)
	}
}

func TestHandleWebhookMessageNeverErrors(t *testing.T) {
	llm := &fakeLLM{
		intent: &domain.Intent{Kind: domain.IntentTask, Urgency: domain.UrgencyMedium},
		subErr: apperr.LLMError("model down", nil),
	}
	f := newFixture(llm)
	f.alerts.failCreates = 2 // insert path fully broken

	if err := f.svc.HandleWebhookMessage(context.Background(), "recuérdame pagar la luz"); err != nil {
		t.Errorf("webhook path must swallow errors, got %v", err)
	}

	if err := f.svc.HandleWebhookMessage(context.Background(), "   "); err != nil {
		t.Errorf("empty webhook body must be a no-op, got %v", err)
	}
}

func TestDetectUrgency(t *testing.T) {
	tests := []struct {
		text string
		want domain.Urgency
	}{
		{"es una emergencia", domain.UrgencyHigh},
		{"URGENTE revisar esto", domain.UrgencyHigh},
		{"el plazo vence hoy", domain.UrgencyHigh},
		{"hola", domain.UrgencyLow},
		{"ok", domain.UrgencyLow},
	}
	for _, tt := range tests {
		if got := DetectUrgency(tt.text); got != tt.want {
			t.Errorf("DetectUrgency(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}
