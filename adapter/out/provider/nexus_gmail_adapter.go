// Package provider implements the Gmail mailbox adapter.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"nexus_server/core/domain"
	"nexus_server/core/port/out"
	"nexus_server/pkg/resilience"
)

// GmailProvider implements out.EmailProvider. Credentials travel with
// every call, so one instance serves every mailbox.
type GmailProvider struct {
	oauthConfig *oauth2.Config
	breaker     *gobreaker.CircuitBreaker
}

func NewGmailProvider(clientID, clientSecret, redirectURL string) out.EmailProvider {
	return &GmailProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				gmail.GmailReadonlyScope,
				gmail.GmailSendScope,
				gmail.GmailModifyScope,
			},
		},
		breaker: resilience.NewBreaker("gmail"),
	}
}

// service builds a Gmail client for the given credentials. When a
// refresh token is present the token source refreshes expired access
// tokens transparently.
func (p *GmailProvider) service(ctx context.Context, creds *out.GmailCredentials) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.RefreshToken != "" {
		// Force the source to consider refreshing on first use.
		token.Expiry = time.Now().Add(-time.Minute)
	}

	client := p.oauthConfig.Client(ctx, token)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return service, nil
}

func (p *GmailProvider) FetchUnread(ctx context.Context, creds *out.GmailCredentials, max int) ([]*domain.IncomingEmail, error) {
	return p.fetch(ctx, creds, "is:unread in:inbox", max)
}

func (p *GmailProvider) FetchRecent(ctx context.Context, creds *out.GmailCredentials, max int) ([]*domain.IncomingEmail, error) {
	return p.fetch(ctx, creds, "in:inbox", max)
}

func (p *GmailProvider) fetch(ctx context.Context, creds *out.GmailCredentials, query string, max int) ([]*domain.IncomingEmail, error) {
	service, err := p.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return service.Users.Messages.List("me").Q(query).MaxResults(int64(max)).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	listed := result.(*gmail.ListMessagesResponse)

	emails := make([]*domain.IncomingEmail, 0, len(listed.Messages))
	for _, ref := range listed.Messages {
		msg, err := service.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			// One bad message must not sink the sync.
			continue
		}
		emails = append(emails, toIncoming(msg))
	}
	return emails, nil
}

func (p *GmailProvider) SendReply(ctx context.Context, creds *out.GmailCredentials, to, subject, body, threadID string) error {
	service, err := p.service(ctx, creds)
	if err != nil {
		return err
	}

	raw := buildRawMessage(to, subject, body)
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}
	if threadID != "" {
		msg.ThreadId = threadID
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return service.Users.Messages.Send("me", msg).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (p *GmailProvider) MarkAsRead(ctx context.Context, creds *out.GmailCredentials, gmailMessageID string) error {
	service, err := p.service(ctx, creds)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return service.Users.Messages.Modify("me", gmailMessageID, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

func buildRawMessage(to, subject, body string) string {
	var sb strings.Builder
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return sb.String()
}

func toIncoming(msg *gmail.Message) *domain.IncomingEmail {
	email := &domain.IncomingEmail{
		GmailMessageID: msg.Id,
		ThreadID:       msg.ThreadId,
		Date:           time.Unix(msg.InternalDate/1000, 0),
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				email.SenderName, email.Sender = splitAddress(header.Value)
			case "Subject":
				email.Subject = header.Value
			}
		}
		email.Body = extractBody(msg.Payload)
		email.HasImages = hasImages(msg.Payload)
	}

	if email.Body == "" {
		email.Body = msg.Snippet
	}
	return email
}

// splitAddress separates "Name <addr>" into its parts. A bare address
// comes back with an empty name.
func splitAddress(value string) (name, address string) {
	value = strings.TrimSpace(value)
	open := strings.LastIndex(value, "<")
	end := strings.LastIndex(value, ">")
	if open >= 0 && end > open {
		name = strings.Trim(strings.TrimSpace(value[:open]), `"`)
		address = strings.ToLower(strings.TrimSpace(value[open+1 : end]))
		return name, address
	}
	return "", strings.ToLower(value)
}

// extractBody prefers text/plain, falls back to text/html, walking
// nested multipart trees.
func extractBody(payload *gmail.MessagePart) string {
	plain := findPart(payload, "text/plain")
	if plain != "" {
		return plain
	}
	return findPart(payload, "text/html")
}

func findPart(payload *gmail.MessagePart, mimeType string) string {
	if payload == nil {
		return ""
	}
	if payload.MimeType == mimeType && payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data)
		}
	}
	for _, part := range payload.Parts {
		if found := findPart(part, mimeType); found != "" {
			return found
		}
	}
	return ""
}

func hasImages(payload *gmail.MessagePart) bool {
	if payload == nil {
		return false
	}
	if strings.HasPrefix(payload.MimeType, "image/") {
		return true
	}
	for _, part := range payload.Parts {
		if hasImages(part) {
			return true
		}
	}
	return false
}
