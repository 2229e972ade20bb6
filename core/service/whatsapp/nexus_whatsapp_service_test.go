package whatsapp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/core/service/extract"
	"nexus_server/pkg/logger"
	"nexus_server/pkg/ratelimit"
)

type brainLLM struct {
	results     map[string]*domain.BrainResult
	errs        map[string]error
	calls       int
	transcripts map[string]string
	previous    map[string]string
}

func (f *brainLLM) RunBrain(ctx context.Context, chatName, previousSummary, transcript string) (*domain.BrainResult, error) {
	f.calls++
	if f.transcripts == nil {
		f.transcripts = map[string]string{}
		f.previous = map[string]string{}
	}
	f.transcripts[chatName] = transcript
	f.previous[chatName] = previousSummary
	if err := f.errs[chatName]; err != nil {
		return nil, err
	}
	return f.results[chatName], nil
}

func (f *brainLLM) ClassifyIntent(ctx context.Context, text string) (*domain.Intent, error) {
	return nil, nil
}

func (f *brainLLM) ExtractSubActions(ctx context.Context, text, fechaReferencia string, envelope *domain.Envelope) ([]domain.SubAction, error) {
	return nil, nil
}

func (f *brainLLM) ProcessValue(ctx context.Context, text string, intent *domain.Intent) (*domain.ValueResult, error) {
	return nil, nil
}

func (f *brainLLM) AnswerConsulta(ctx context.Context, question, contextBlock string) (string, error) {
	return "", nil
}

func (f *brainLLM) ClassifyEmail(ctx context.Context, email *domain.IncomingEmail) (*domain.EmailClassification, error) {
	return nil, nil
}

func (f *brainLLM) AnalyzeEmailDeep(ctx context.Context, email *domain.IncomingEmail, senderCtx *domain.SenderContext) (*domain.EmailDeepAnalysis, error) {
	return nil, nil
}

func (f *brainLLM) SummarizeSender(ctx context.Context, sender string, samples []string) (string, string, string, error) {
	return "", "", "", nil
}

func (f *brainLLM) AnalyzeDocument(ctx context.Context, content string) (*out.FileAnalysis, error) {
	return nil, nil
}

type brainRepo struct {
	messages  []*domain.WhatsAppMessage
	memories  map[string]*domain.ChatMemory
	processed [][]string
	upserted  int
}

func (f *brainRepo) UpsertMessages(ctx context.Context, messages []*domain.WhatsAppMessage) (int, error) {
	f.upserted += len(messages)
	return len(messages), nil
}

func (f *brainRepo) ListUnprocessed(ctx context.Context, userID uuid.UUID) ([]*domain.WhatsAppMessage, error) {
	return f.messages, nil
}

func (f *brainRepo) MarkProcessed(ctx context.Context, userID uuid.UUID, ids []string) error {
	f.processed = append(f.processed, ids)
	return nil
}

func (f *brainRepo) ReplaceContent(ctx context.Context, messageID, content string) error {
	return nil
}

func (f *brainRepo) GetChatMemory(ctx context.Context, userID uuid.UUID, chatName string) (*domain.ChatMemory, error) {
	if m, ok := f.memories[chatName]; ok {
		return m, nil
	}
	return nil, nil
}

func (f *brainRepo) UpsertChatMemory(ctx context.Context, memory *domain.ChatMemory) error {
	if f.memories == nil {
		f.memories = map[string]*domain.ChatMemory{}
	}
	f.memories[memory.ChatName] = memory
	return nil
}

func (f *brainRepo) GetStats(ctx context.Context, userID uuid.UUID) (*domain.WhatsAppStats, error) {
	return &domain.WhatsAppStats{TotalMessages: len(f.messages)}, nil
}

type brainAlerts struct {
	alerts []*domain.Alert
}

func (f *brainAlerts) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	alert.ID = int64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *brainAlerts) GetAlert(ctx context.Context, userID uuid.UUID, id int64) (*domain.Alert, error) {
	return nil, nil
}

func (f *brainAlerts) ListAlerts(ctx context.Context, filter *domain.AlertFilter) ([]*domain.Alert, error) {
	return nil, nil
}

func (f *brainAlerts) ListPriorityAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, int, error) {
	return nil, 0, nil
}

func (f *brainAlerts) UpdateAlertState(ctx context.Context, userID uuid.UUID, id int64, state *domain.AlertState, label *domain.AlertLabel) (*domain.Alert, error) {
	return nil, nil
}

func (f *brainAlerts) ListPendingDueBefore(ctx context.Context, userID uuid.UUID, before time.Time) ([]*domain.Alert, error) {
	return nil, nil
}

func (f *brainAlerts) ReloadMetadata(ctx context.Context, id int64) (*domain.Envelope, error) {
	return nil, nil
}

func newBrainService(repo *brainRepo, alerts *brainAlerts, llm *brainLLM, debounce *ratelimit.Debouncer) *Service {
	return &Service{
		repo:      repo,
		alerts:    alerts,
		llm:       llm,
		extractor: extract.New(),
		debounce:  debounce,
		log:       logger.WithField("service", "whatsapp_test"),
	}
}

func msg(id, chat, content string, ts time.Time, mine bool) *domain.WhatsAppMessage {
	return &domain.WhatsAppMessage{
		ID: id, ChatID: chat, ChatName: chat, Content: content, Timestamp: ts, IsMine: mine,
	}
}

func TestIngestBatch(t *testing.T) {
	repo := &brainRepo{}
	svc := newBrainService(repo, &brainAlerts{}, &brainLLM{}, nil)
	userID := uuid.New()

	batch := []*domain.WhatsAppMessage{
		msg("w1", "Mamá", "Hola hijo", time.Now(), false),
		msg("w2", "Mamá", "Ok", time.Now(), true),
	}
	written, err := svc.IngestBatch(context.Background(), userID, "device-7", batch)
	if err != nil {
		t.Fatal(err)
	}
	if written != 2 {
		t.Errorf("written = %d", written)
	}
	for _, m := range batch {
		if m.UserID != userID || m.DeviceID != "device-7" || !m.Synced || m.ProcessedByAI {
			t.Errorf("message not normalised: %+v", m)
		}
		if m.Kind != "text" {
			t.Errorf("kind default = %q", m.Kind)
		}
	}

	if n, err := svc.IngestBatch(context.Background(), userID, "device-7", nil); err != nil || n != 0 {
		t.Errorf("empty batch = (%d, %v)", n, err)
	}

	if _, err := svc.IngestBatch(context.Background(), userID, "device-7",
		[]*domain.WhatsAppMessage{{ChatName: "X", Content: "sin id"}}); err == nil {
		t.Error("missing message id accepted")
	}
}

func TestRunBrainGroupsAndIsolates(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	repo := &brainRepo{
		messages: []*domain.WhatsAppMessage{
			// deliberately unsorted
			msg("b2", "Trabajo", "Te mando el informe mañana", base.Add(2*time.Minute), true),
			msg("a1", "Carlos", "Nos vemos el viernes para revisar el contrato", base, false),
			msg("b1", "Trabajo", "¿Cuándo envías el informe?", base.Add(time.Minute), false),
		},
		memories: map[string]*domain.ChatMemory{
			"Trabajo": {ChatName: "Trabajo", CurrentSummary: "Proyecto en curso"},
		},
	}
	llm := &brainLLM{
		results: map[string]*domain.BrainResult{
			"Trabajo": {
				NuevoResumen: "Informe comprometido para mañana",
				Tareas:       []domain.BrainTask{{Titulo: "Enviar informe", Descripcion: "Enviar el informe del proyecto", Prioridad: "ALTA"}},
				Intencion:    "compromiso",
			},
		},
		errs: map[string]error{"Carlos": errors.New("model down")},
	}
	alerts := &brainAlerts{}
	svc := newBrainService(repo, alerts, llm, nil)

	ops, err := svc.RunBrain(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("got %d operations, want 2", len(ops))
	}

	// Chats are processed in name order.
	if ops[0].Chat != "Carlos" || ops[0].Error == "" {
		t.Errorf("failing chat op = %+v", ops[0])
	}
	if ops[1].Chat != "Trabajo" || ops[1].Error != "" || ops[1].TareasCreadas != 1 {
		t.Errorf("successful chat op = %+v", ops[1])
	}

	// Failing chat leaves its messages unprocessed.
	if len(repo.processed) != 1 || len(repo.processed[0]) != 2 {
		t.Errorf("processed batches = %v", repo.processed)
	}

	// Transcript is chronological with YO attribution.
	transcript := llm.transcripts["Trabajo"]
	if !strings.Contains(transcript, "Trabajo: ¿Cuándo envías el informe?") ||
		!strings.Contains(transcript, "YO: Te mando el informe mañana") {
		t.Errorf("transcript = %q", transcript)
	}
	if strings.Index(transcript, "¿Cuándo") > strings.Index(transcript, "Te mando") {
		t.Error("transcript out of order")
	}
	if llm.previous["Trabajo"] != "Proyecto en curso" {
		t.Errorf("previous summary = %q", llm.previous["Trabajo"])
	}
	if llm.previous["Carlos"] != domain.NoHistorySentinel {
		t.Errorf("first-contact summary = %q", llm.previous["Carlos"])
	}

	memory := repo.memories["Trabajo"]
	if memory.CurrentSummary != "Informe comprometido para mañana" || memory.OpenTopics != "compromiso" {
		t.Errorf("chat memory = %+v", memory)
	}

	if len(alerts.alerts) != 1 {
		t.Fatalf("alerts = %d", len(alerts.alerts))
	}
	alert := alerts.alerts[0]
	if alert.Title != "⚡ Enviar informe" || alert.Type != domain.AlertTypeChatTask {
		t.Errorf("alert = %+v", alert)
	}
	if alert.Priority != domain.PriorityHigh {
		t.Errorf("alert priority = %s", alert.Priority)
	}
	if alert.Metadata == nil || alert.Metadata.Detalles == nil ||
		alert.Metadata.Detalles.Tema != "Trabajo" ||
		!strings.Contains(alert.Metadata.Detalles.Notas, "whatsapp_cerebro") {
		t.Errorf("alert metadata = %+v", alert.Metadata)
	}
}

func TestRunBrainNoiseWindow(t *testing.T) {
	repo := &brainRepo{
		messages: []*domain.WhatsAppMessage{
			msg("n1", "Spam", "ok", time.Now(), false),
		},
	}
	llm := &brainLLM{}
	svc := newBrainService(repo, &brainAlerts{}, llm, nil)

	ops, err := svc.RunBrain(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 0 {
		t.Error("noise window reached the LLM")
	}
	if len(ops) != 1 || ops[0].TareasCreadas != 0 || ops[0].Error != "" {
		t.Errorf("ops = %+v", ops)
	}
	// Noise is still marked processed.
	if len(repo.processed) != 1 || repo.processed[0][0] != "n1" {
		t.Errorf("processed = %v", repo.processed)
	}
}

func TestRunBrainDebounced(t *testing.T) {
	repo := &brainRepo{
		messages: []*domain.WhatsAppMessage{
			msg("d1", "Chat", "Mensaje con contenido suficiente", time.Now(), false),
		},
	}
	llm := &brainLLM{results: map[string]*domain.BrainResult{
		"Chat": {NuevoResumen: "resumen"},
	}}
	debounce := ratelimit.NewDebouncer(nil, time.Minute)
	svc := newBrainService(repo, &brainAlerts{}, llm, debounce)
	userID := uuid.New()

	if _, err := svc.RunBrain(context.Background(), userID); err != nil {
		t.Fatal(err)
	}
	ops, err := svc.RunBrain(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if ops != nil {
		t.Errorf("second run inside the window ran anyway: %+v", ops)
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, want 1", llm.calls)
	}
}

func TestIsNoiseWindow(t *testing.T) {
	short := []*domain.WhatsAppMessage{msg("1", "c", "hola", time.Now(), false)}
	long := []*domain.WhatsAppMessage{msg("1", "c", "este mensaje es largo", time.Now(), false)}
	two := []*domain.WhatsAppMessage{
		msg("1", "c", "ok", time.Now(), false),
		msg("2", "c", "va", time.Now(), false),
	}

	if !isNoiseWindow(short) {
		t.Error("single short message should be noise")
	}
	if isNoiseWindow(long) {
		t.Error("long message is not noise")
	}
	if isNoiseWindow(two) {
		t.Error("two messages are never noise")
	}
}
