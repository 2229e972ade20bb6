// Package whatsapp ingests synced device messages and distils them
// into chat memories and alerts through the brain pass.
package whatsapp

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/in"
	"nexus_server/core/port/out"
	"nexus_server/core/service/extract"
	"nexus_server/pkg/apperr"
	"nexus_server/pkg/logger"
	"nexus_server/pkg/ratelimit"
)

const transcribeTimeout = 2 * time.Minute

type Service struct {
	repo      out.WhatsAppRepository
	alerts    out.AlertRepository
	llm       out.LLMClient
	stt       out.Transcriber
	extractor *extract.Extractor
	debounce  *ratelimit.Debouncer
	log       *logger.Logger
}

func NewService(
	repo out.WhatsAppRepository,
	alerts out.AlertRepository,
	llm out.LLMClient,
	stt out.Transcriber,
	extractor *extract.Extractor,
	debounce *ratelimit.Debouncer,
) in.WhatsAppService {
	return &Service{
		repo:      repo,
		alerts:    alerts,
		llm:       llm,
		stt:       stt,
		extractor: extractor,
		debounce:  debounce,
		log:       logger.WithField("service", "whatsapp"),
	}
}

// IngestBatch bulk-upserts one device batch. It never touches the LLM;
// the endpoint must return as fast as the store permits.
func (s *Service) IngestBatch(ctx context.Context, userID uuid.UUID, deviceID string, messages []*domain.WhatsAppMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	for _, msg := range messages {
		if msg.ID == "" {
			return 0, apperr.MissingField("id")
		}
		msg.UserID = userID
		msg.DeviceID = deviceID
		msg.Synced = true
		msg.ProcessedByAI = false
		if msg.Kind == "" {
			msg.Kind = "text"
		}
	}

	written, err := s.repo.UpsertMessages(ctx, messages)
	if err != nil {
		return 0, err
	}
	s.log.WithUser(userID.String()).Info("batch ingested: device=%s received=%d written=%d", deviceID, len(messages), written)
	return written, nil
}

func (s *Service) GetStats(ctx context.Context, userID uuid.UUID) (*domain.WhatsAppStats, error) {
	return s.repo.GetStats(ctx, userID)
}

// TranscribeAudio schedules one background transcription and returns
// immediately. The temp file is removed on every exit path.
func (s *Service) TranscribeAudio(ctx context.Context, userID uuid.UUID, messageID, chatName, filePath string) {
	go func() {
		defer os.Remove(filePath)

		bg, cancel := context.WithTimeout(context.Background(), transcribeTimeout)
		defer cancel()

		log := s.log.WithUser(userID.String()).WithField("chat", chatName)

		if s.stt == nil {
			log.Warn("transcription skipped, no stt configured")
			return
		}

		text, err := s.stt.Transcribe(bg, filePath)
		if err != nil {
			log.WithError(err).Error("audio transcription failed")
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			log.Warn("empty transcription discarded")
			return
		}

		if err := s.repo.ReplaceContent(bg, messageID, domain.TranscribedPrefix+text); err != nil {
			log.WithError(err).Error("transcription not stored")
			return
		}
		log.Info("voice note transcribed: %s", messageID)
	}()
}
