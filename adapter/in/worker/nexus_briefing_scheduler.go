// Package worker hosts the background schedulers.
package worker

import (
	"context"
	"time"

	in "nexus_server/core/port/in"
	"nexus_server/core/service/extract"
	"nexus_server/pkg/logger"
)

const briefingRunTimeout = 5 * time.Minute

// BriefingScheduler fires the morning and evening digests at fixed
// Lima wall-clock hours. DST does not exist in Peru, but the next-run
// computation goes through the location anyway.
type BriefingScheduler struct {
	briefings   in.BriefingService
	morningHour int
	eveningHour int
	loc         *time.Location
	ctx         context.Context
	cancel      context.CancelFunc
	log         *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewBriefingScheduler(briefings in.BriefingService, morningHour, eveningHour int) *BriefingScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &BriefingScheduler{
		briefings:   briefings,
		morningHour: morningHour,
		eveningHour: eveningHour,
		loc:         extract.Lima(),
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.WithField("scheduler", "briefing"),
		now:         time.Now,
	}
}

func (s *BriefingScheduler) Start() {
	s.log.Info("briefing scheduler started: %02d:00 and %02d:00 Lima", s.morningHour, s.eveningHour)
	go s.run()
}

func (s *BriefingScheduler) Stop() {
	s.cancel()
}

func (s *BriefingScheduler) run() {
	for {
		at, evening := s.nextRun(s.now())
		wait := time.Until(at)
		s.log.Info("next briefing scheduled at %s (evening=%v)", at.Format(time.RFC3339), evening)

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.log.Info("briefing scheduler stopped")
			return
		case <-timer.C:
			s.fire(evening)
		}
	}
}

// nextRun returns the soonest upcoming trigger after now, and whether
// it is the evening one.
func (s *BriefingScheduler) nextRun(now time.Time) (time.Time, bool) {
	local := now.In(s.loc)
	morning := time.Date(local.Year(), local.Month(), local.Day(), s.morningHour, 0, 0, 0, s.loc)
	evening := time.Date(local.Year(), local.Month(), local.Day(), s.eveningHour, 0, 0, 0, s.loc)

	switch {
	case local.Before(morning):
		return morning, false
	case local.Before(evening):
		return evening, true
	default:
		return morning.AddDate(0, 0, 1), false
	}
}

func (s *BriefingScheduler) fire(evening bool) {
	ctx, cancel := context.WithTimeout(s.ctx, briefingRunTimeout)
	defer cancel()

	var err error
	if evening {
		err = s.briefings.RunEveningBriefing(ctx)
	} else {
		err = s.briefings.RunMorningBriefing(ctx)
	}
	if err != nil {
		s.log.WithError(err).Error("briefing run failed (evening=%v)", evening)
	}
}
