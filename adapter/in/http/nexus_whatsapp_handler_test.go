package http

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/infra/middleware"
)

type fakeWhatsAppService struct {
	stats     *domain.WhatsAppStats
	statsUser uuid.UUID
}

func (f *fakeWhatsAppService) IngestBatch(ctx context.Context, userID uuid.UUID, deviceID string, messages []*domain.WhatsAppMessage) (int, error) {
	return len(messages), nil
}

func (f *fakeWhatsAppService) RunBrain(ctx context.Context, userID uuid.UUID) ([]domain.ChatOperation, error) {
	return nil, nil
}

func (f *fakeWhatsAppService) GetStats(ctx context.Context, userID uuid.UUID) (*domain.WhatsAppStats, error) {
	f.statsUser = userID
	return f.stats, nil
}

func (f *fakeWhatsAppService) TranscribeAudio(ctx context.Context, userID uuid.UUID, messageID, chatName, filePath string) {
}

func newStatsApp(svc *fakeWhatsAppService, caller uuid.UUID) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", caller)
		return c.Next()
	})
	NewWhatsAppHandler(svc, 100).RegisterDevice(app)
	return app
}

func TestStatsOwnership(t *testing.T) {
	caller := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	other := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	svc := &fakeWhatsAppService{stats: &domain.WhatsAppStats{}}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"own counters", "/nexus/estadisticas/" + caller.String(), fiber.StatusOK},
		{"another user's counters", "/nexus/estadisticas/" + other.String(), fiber.StatusForbidden},
		{"malformed user id", "/nexus/estadisticas/not-a-uuid", fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newStatsApp(svc, caller)
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}

	if svc.statsUser != caller {
		t.Errorf("stats fetched for %s, want %s", svc.statsUser, caller)
	}
}
