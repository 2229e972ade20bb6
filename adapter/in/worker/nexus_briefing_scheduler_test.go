package worker

import (
	"testing"
	"time"

	"nexus_server/core/service/extract"
)

func TestNextRun(t *testing.T) {
	s := &BriefingScheduler{morningHour: 6, eveningHour: 18, loc: extract.Lima()}

	cases := []struct {
		name     string
		now      time.Time
		wantHour int
		wantDay  int
		evening  bool
	}{
		{"before morning", time.Date(2026, 8, 24, 3, 0, 0, 0, extract.Lima()), 6, 24, false},
		{"midday", time.Date(2026, 8, 24, 12, 0, 0, 0, extract.Lima()), 18, 24, true},
		{"after evening", time.Date(2026, 8, 24, 22, 0, 0, 0, extract.Lima()), 6, 25, false},
		{"exactly morning", time.Date(2026, 8, 24, 6, 0, 0, 0, extract.Lima()), 18, 24, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			at, evening := s.nextRun(tc.now)
			if at.Hour() != tc.wantHour || at.Day() != tc.wantDay {
				t.Errorf("nextRun = %v, want day %d hour %d", at, tc.wantDay, tc.wantHour)
			}
			if evening != tc.evening {
				t.Errorf("evening = %v, want %v", evening, tc.evening)
			}
			if !at.After(tc.now) {
				t.Errorf("next run %v not after now %v", at, tc.now)
			}
		})
	}
}
