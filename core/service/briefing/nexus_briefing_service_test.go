package briefing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/service/extract"
	"nexus_server/pkg/logger"
)

type digestUsers struct {
	users []*domain.User
}

func (f *digestUsers) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, nil
}

func (f *digestUsers) CreateUser(ctx context.Context, user *domain.User) error { return nil }

func (f *digestUsers) UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error {
	return nil
}

func (f *digestUsers) ListUsersWithPushToken(ctx context.Context) ([]*domain.User, error) {
	return f.users, nil
}

type digestAlerts struct {
	due        []*domain.Alert
	lastCutoff time.Time
}

func (f *digestAlerts) CreateAlert(ctx context.Context, alert *domain.Alert) error { return nil }

func (f *digestAlerts) GetAlert(ctx context.Context, userID uuid.UUID, id int64) (*domain.Alert, error) {
	return nil, nil
}

func (f *digestAlerts) ListAlerts(ctx context.Context, filter *domain.AlertFilter) ([]*domain.Alert, error) {
	return nil, nil
}

func (f *digestAlerts) ListPriorityAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Alert, int, error) {
	return nil, 0, nil
}

func (f *digestAlerts) UpdateAlertState(ctx context.Context, userID uuid.UUID, id int64, state *domain.AlertState, label *domain.AlertLabel) (*domain.Alert, error) {
	return nil, nil
}

func (f *digestAlerts) ListPendingDueBefore(ctx context.Context, userID uuid.UUID, before time.Time) ([]*domain.Alert, error) {
	f.lastCutoff = before
	return f.due, nil
}

func (f *digestAlerts) ReloadMetadata(ctx context.Context, id int64) (*domain.Envelope, error) {
	return nil, nil
}

type digestPush struct {
	sent []*domain.PushNotification
}

func (f *digestPush) Send(ctx context.Context, n *domain.PushNotification) error {
	f.sent = append(f.sent, n)
	return nil
}

func newDigestService(users *digestUsers, alerts *digestAlerts, push *digestPush, now time.Time) *Service {
	return &Service{
		users:  users,
		alerts: alerts,
		push:   push,
		loc:    extract.Lima(),
		log:    logger.WithField("service", "briefing_test"),
		now:    func() time.Time { return now },
	}
}

func pushableUser() *domain.User {
	token := "tok"
	return &domain.User{ID: uuid.New(), PushToken: &token}
}

func alertWith(title string, label domain.AlertLabel, priority domain.AlertPriority) *domain.Alert {
	return &domain.Alert{Title: title, Label: label, Priority: priority, State: domain.AlertStatePending}
}

func TestDigestOrdering(t *testing.T) {
	alerts := &digestAlerts{due: []*domain.Alert{
		alertWith("otros", domain.LabelOthers, domain.PriorityHigh),      // 5
		alertWith("estudio", domain.LabelStudy, domain.PriorityHigh),     // 10
		alertWith("salud", domain.LabelHealth, domain.PriorityHigh),      // 15
		alertWith("negocio", domain.LabelBusiness, domain.PriorityMedium), // 12
	}}
	push := &digestPush{}
	svc := newDigestService(&digestUsers{users: []*domain.User{pushableUser()}}, alerts, push,
		time.Date(2026, 8, 24, 6, 0, 0, 0, extract.Lima()))

	if err := svc.RunMorningBriefing(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(push.sent) != 1 {
		t.Fatalf("sent = %d", len(push.sent))
	}

	body := push.sent[0].Body
	order := []string{"salud", "negocio", "estudio", "otros"}
	last := -1
	for _, title := range order {
		idx := strings.Index(body, title)
		if idx < 0 {
			t.Fatalf("digest missing %q: %q", title, body)
		}
		if idx < last {
			t.Fatalf("digest out of order: %q", body)
		}
		last = idx
	}
}

func TestDigestTruncation(t *testing.T) {
	var due []*domain.Alert
	for i := 0; i < 7; i++ {
		due = append(due, alertWith("tarea", domain.LabelOthers, domain.PriorityMedium))
	}
	alerts := &digestAlerts{due: due}
	push := &digestPush{}
	svc := newDigestService(&digestUsers{users: []*domain.User{pushableUser()}}, alerts, push,
		time.Date(2026, 8, 24, 6, 0, 0, 0, extract.Lima()))

	if err := svc.RunMorningBriefing(context.Background()); err != nil {
		t.Fatal(err)
	}
	body := push.sent[0].Body
	if got := strings.Count(body, "• "); got != 5 {
		t.Errorf("bullets = %d, want 5", got)
	}
	if !strings.Contains(body, "y 2 más") {
		t.Errorf("missing remainder note: %q", body)
	}
}

func TestMorningEmptySendsAllClear(t *testing.T) {
	push := &digestPush{}
	svc := newDigestService(&digestUsers{users: []*domain.User{pushableUser()}}, &digestAlerts{}, push,
		time.Date(2026, 8, 24, 6, 0, 0, 0, extract.Lima()))

	if err := svc.RunMorningBriefing(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(push.sent) != 1 {
		t.Fatalf("sent = %d", len(push.sent))
	}
	if !strings.Contains(push.sent[0].Body, "No tienes pendientes") {
		t.Errorf("all-clear body = %q", push.sent[0].Body)
	}
}

func TestEveningEmptySendsNothing(t *testing.T) {
	push := &digestPush{}
	svc := newDigestService(&digestUsers{users: []*domain.User{pushableUser()}}, &digestAlerts{}, push,
		time.Date(2026, 8, 24, 18, 0, 0, 0, extract.Lima()))

	if err := svc.RunEveningBriefing(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(push.sent) != 0 {
		t.Errorf("evening empty agenda still pushed: %+v", push.sent)
	}
}

func TestCutoffWindows(t *testing.T) {
	now := time.Date(2026, 8, 24, 6, 0, 0, 0, extract.Lima())
	alerts := &digestAlerts{}
	push := &digestPush{}
	svc := newDigestService(&digestUsers{users: []*domain.User{pushableUser()}}, alerts, push, now)

	if err := svc.RunMorningBriefing(context.Background()); err != nil {
		t.Fatal(err)
	}
	if alerts.lastCutoff.Day() != 24 || alerts.lastCutoff.Hour() != 23 {
		t.Errorf("morning cutoff = %v", alerts.lastCutoff)
	}

	if err := svc.RunEveningBriefing(context.Background()); err != nil {
		t.Fatal(err)
	}
	if alerts.lastCutoff.Day() != 25 {
		t.Errorf("evening cutoff = %v", alerts.lastCutoff)
	}
}
