// Package push delivers notifications through FCM.
package push

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"
	"google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/logger"
	"nexus_server/pkg/resilience"
)

// FCMSender implements out.PushSender over the FCM HTTP v1 API.
type FCMSender struct {
	service *fcm.Service
	parent  string
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (out.PushSender, error) {
	service, err := fcm.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}
	return &FCMSender{
		service: service,
		parent:  "projects/" + projectID,
		breaker: resilience.NewBreaker("fcm"),
		log:     logger.WithField("adapter", "fcm"),
	}, nil
}

func (s *FCMSender) Send(ctx context.Context, notification *domain.PushNotification) error {
	if notification.Token == "" {
		return fmt.Errorf("send push: empty device token")
	}

	message := &fcm.Message{
		Token: notification.Token,
		Notification: &fcm.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
		Android: &fcm.AndroidConfig{
			Priority: "high",
		},
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.service.Projects.Messages.Send(s.parent, &fcm.SendMessageRequest{
			Message: message,
		}).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}

	s.log.Debug("push delivered: %s", notification.Title)
	return nil
}

// NoopSender swallows pushes when FCM is not configured, so the rest
// of the pipeline keeps working in development.
type NoopSender struct {
	log *logger.Logger
}

func NewNoopSender() out.PushSender {
	return &NoopSender{log: logger.WithField("adapter", "push_noop")}
}

func (s *NoopSender) Send(ctx context.Context, notification *domain.PushNotification) error {
	s.log.Info("push skipped (no fcm configured): %s", notification.Title)
	return nil
}
