// Package stt transcribes audio through the Whisper API.
package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"nexus_server/core/port/out"
	"nexus_server/pkg/logger"
)

// WhisperTranscriber implements out.Transcriber. The OpenAI client is
// built on first use so startup never blocks on it.
type WhisperTranscriber struct {
	apiKey string
	once   sync.Once
	client *openai.Client
	log    *logger.Logger
}

func NewWhisperTranscriber(apiKey string) out.Transcriber {
	return &WhisperTranscriber{
		apiKey: apiKey,
		log:    logger.WithField("adapter", "whisper"),
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, filePath string) (string, error) {
	t.once.Do(func() {
		t.client = openai.NewClient(t.apiKey)
	})

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filePath,
		Language: "es",
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	t.log.Debug("audio transcribed: %d chars", len(text))
	return text, nil
}
