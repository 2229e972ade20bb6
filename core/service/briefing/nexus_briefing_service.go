// Package briefing composes the twice-daily agenda digests.
package briefing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"nexus_server/core/domain"
	"nexus_server/core/port/in"
	"nexus_server/core/port/out"
	"nexus_server/core/service/extract"
	"nexus_server/pkg/logger"
)

// maxBullets is how many alerts one digest lists before grouping the
// rest into a count.
const maxBullets = 5

type Service struct {
	users  out.UserRepository
	alerts out.AlertRepository
	push   out.PushSender
	loc    *time.Location
	log    *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewService(users out.UserRepository, alerts out.AlertRepository, push out.PushSender) in.BriefingService {
	return &Service{
		users:  users,
		alerts: alerts,
		push:   push,
		loc:    extract.Lima(),
		log:    logger.WithField("service", "briefing"),
		now:    time.Now,
	}
}

// RunMorningBriefing digests every pushable user's agenda due today.
// Users with an empty agenda still get a short all-clear message.
func (s *Service) RunMorningBriefing(ctx context.Context) error {
	return s.run(ctx, false)
}

// RunEveningBriefing previews tomorrow. Users with nothing due are
// left alone.
func (s *Service) RunEveningBriefing(ctx context.Context) error {
	return s.run(ctx, true)
}

func (s *Service) run(ctx context.Context, evening bool) error {
	users, err := s.users.ListUsersWithPushToken(ctx)
	if err != nil {
		return err
	}

	cutoff := s.cutoff(evening)
	sent := 0
	for _, user := range users {
		if !user.HasPushToken() {
			continue
		}

		alerts, err := s.alerts.ListPendingDueBefore(ctx, user.ID, cutoff)
		if err != nil {
			s.log.WithError(err).WithUser(user.ID.String()).Warn("briefing lookup failed, user skipped")
			continue
		}

		notification := composeDigest(alerts, evening)
		if notification == nil {
			continue
		}
		notification.Token = *user.PushToken

		if err := s.push.Send(ctx, notification); err != nil {
			s.log.WithError(err).WithUser(user.ID.String()).Warn("briefing not delivered")
			continue
		}
		sent++
	}

	s.log.Info("briefing run done: evening=%v users=%d sent=%d", evening, len(users), sent)
	return nil
}

// cutoff is end of today for the morning run, end of tomorrow for the
// evening run, in Lima wall-clock time.
func (s *Service) cutoff(evening bool) time.Time {
	now := s.now().In(s.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, s.loc)
	if evening {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// composeDigest renders one push for the user's due agenda, nil when
// nothing should be sent.
func composeDigest(alerts []*domain.Alert, evening bool) *domain.PushNotification {
	if len(alerts) == 0 {
		if evening {
			return nil
		}
		notification := &domain.PushNotification{
			Title: "☀️ Buenos días",
			Body:  "No tienes pendientes urgentes para hoy.",
		}
		notification.Set(domain.PushKeyTipo, "briefing_matutino")
		return notification
	}

	ordered := make([]*domain.Alert, len(alerts))
	copy(ordered, alerts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ImportanceScore() > ordered[j].ImportanceScore()
	})

	bullets := make([]string, 0, maxBullets)
	for _, alert := range ordered {
		if len(bullets) == maxBullets {
			break
		}
		bullets = append(bullets, "• "+bulletLine(alert))
	}
	body := strings.Join(bullets, "\n")
	if rest := len(ordered) - len(bullets); rest > 0 {
		body += fmt.Sprintf("\n… y %d más", rest)
	}

	var notification *domain.PushNotification
	if evening {
		notification = &domain.PushNotification{
			Title: fmt.Sprintf("🌙 Plan de mañana (%d)", len(ordered)),
			Body:  body,
		}
		notification.Set(domain.PushKeyTipo, "briefing_nocturno")
	} else {
		notification = &domain.PushNotification{
			Title: fmt.Sprintf("☀️ Agenda de hoy (%d)", len(ordered)),
			Body:  body,
		}
		notification.Set(domain.PushKeyTipo, "briefing_matutino")
	}
	notification.Set(domain.PushKeyIrA, "agenda")
	return notification
}

func bulletLine(alert *domain.Alert) string {
	line := alert.Title
	if alert.DueAt != nil {
		line += " (" + alert.DueAt.Format("15:04") + ")"
	}
	return line
}
