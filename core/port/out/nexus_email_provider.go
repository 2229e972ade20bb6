package out

import (
	"context"

	"nexus_server/core/domain"
)

// GmailCredentials carries the per-request mailbox tokens. The
// refresh token plus client pair enables server-side refresh.
type GmailCredentials struct {
	AccessToken    string
	RefreshToken   string
	ServerAuthCode string
	EmailAddress   string
}

// EmailProvider reads and writes one Gmail mailbox.
type EmailProvider interface {
	FetchUnread(ctx context.Context, creds *GmailCredentials, max int) ([]*domain.IncomingEmail, error)
	// FetchRecent pulls up to max most recent messages for the historic
	// one-shot pass, read or not.
	FetchRecent(ctx context.Context, creds *GmailCredentials, max int) ([]*domain.IncomingEmail, error)
	// SendReply sends threaded when threadID is set.
	SendReply(ctx context.Context, creds *GmailCredentials, to, subject, body, threadID string) error
	MarkAsRead(ctx context.Context, creds *GmailCredentials, gmailMessageID string) error
}

// PushSender delivers one notification to a device token.
type PushSender interface {
	Send(ctx context.Context, notification *domain.PushNotification) error
}

// Transcriber converts an audio file into text. Lazily initialised on
// first use.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (string, error)
}
