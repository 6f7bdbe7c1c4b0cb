// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/logger"
)

const providerName = "gmail"

// Concurrent message hydrations per page.
const hydrateConcurrency = 10

// GmailAdapter implements out.MailProviderPort for Gmail.
type GmailAdapter struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
	log    *logger.Logger
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg GmailConfig, log *logger.Logger) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
			gmail.GmailComposeScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithField("breaker", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("circuit breaker state changed")
		},
	}

	return &GmailAdapter{
		config: config,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		log:    log,
	}
}

// GetAuthURL returns the OAuth authorization URL.
func (a *GmailAdapter) GetAuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeToken exchanges an authorization code for a token.
func (a *GmailAdapter) ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, a.wrapError(err, "failed to exchange token")
	}
	return token, nil
}

// RefreshToken refreshes the access token.
func (a *GmailAdapter) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	newToken, err := a.config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, out.NewProviderError(providerName, out.ProviderErrTokenExpired, "failed to refresh token", err, false)
	}
	return newToken, nil
}

func (a *GmailAdapter) getService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(a.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, a.wrapError(err, "failed to create gmail service")
	}
	return svc, nil
}

// ListMessages returns one page of inbox messages, hydrated with metadata.
func (a *GmailAdapter) ListMessages(ctx context.Context, token *oauth2.Token, pageToken string, pageSize int) (*out.MessagePage, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	req := svc.Users.Messages.List("me").
		LabelIds("INBOX").
		MaxResults(int64(pageSize))
	if pageToken != "" {
		req = req.PageToken(pageToken)
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		return req.Context(ctx).Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list messages")
	}
	resp := result.(*gmail.ListMessagesResponse)

	messages := a.hydrateMessages(ctx, svc, resp.Messages)
	return &out.MessagePage{
		Messages:      messages,
		NextPageToken: resp.NextPageToken,
	}, nil
}

// hydrateMessages fetches message metadata with bounded concurrency. A
// failed hydration drops that message from the page, logged.
func (a *GmailAdapter) hydrateMessages(ctx context.Context, svc *gmail.Service, refs []*gmail.Message) []*domain.Message {
	if len(refs) == 0 {
		return nil
	}

	results := make([]*domain.Message, len(refs))
	sem := make(chan struct{}, hydrateConcurrency)
	var wg sync.WaitGroup

	for i, ref := range refs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()

			msg, err := a.fetchMessage(ctx, svc, id, "metadata")
			if err != nil {
				a.log.WithError(err).WithField("message_id", id).Warn("message hydration failed")
				return
			}
			results[i] = msg
		}(i, ref.Id)
	}
	wg.Wait()

	messages := make([]*domain.Message, 0, len(refs))
	for _, m := range results {
		if m != nil {
			messages = append(messages, m)
		}
	}
	return messages
}

// GetMessage fetches one message with its full body.
func (a *GmailAdapter) GetMessage(ctx context.Context, token *oauth2.Token, messageID string) (*domain.Message, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.fetchMessage(ctx, svc, messageID, "full")
}

func (a *GmailAdapter) fetchMessage(ctx context.Context, svc *gmail.Service, id, format string) (*domain.Message, error) {
	result, err := a.cb.Execute(func() (interface{}, error) {
		req := svc.Users.Messages.Get("me", id).Format(format)
		if format == "metadata" {
			req = req.MetadataHeaders("From", "To", "Subject", "Date")
		}
		return req.Context(ctx).Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get message")
	}

	return a.toDomain(result.(*gmail.Message)), nil
}

func (a *GmailAdapter) toDomain(m *gmail.Message) *domain.Message {
	msg := &domain.Message{
		ID:         m.Id,
		ThreadID:   m.ThreadId,
		Snippet:    m.Snippet,
		LabelIDs:   m.LabelIds,
		ReceivedAt: time.UnixMilli(m.InternalDate).UTC(),
	}

	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "From":
				msg.From = h.Value
			case "To":
				msg.To = h.Value
			case "Subject":
				msg.Subject = h.Value
			}
		}
		msg.Body = extractBody(m.Payload)
	}

	return msg
}

// extractBody walks the MIME tree preferring text/plain parts.
func extractBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" && strings.HasPrefix(payload.MimeType, "text/") {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data)
		}
	}

	var htmlFallback string
	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(data)
			}
		}
		if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" && htmlFallback == "" {
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				htmlFallback = string(data)
			}
		}
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}
	return htmlFallback
}

// ListLabels returns the mailbox's labels.
func (a *GmailAdapter) ListLabels(ctx context.Context, token *oauth2.Token) ([]domain.Label, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Users.Labels.List("me").Context(ctx).Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list labels")
	}
	resp := result.(*gmail.ListLabelsResponse)

	labels := make([]domain.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		label := domain.Label{ID: l.Id, Name: l.Name}
		if l.Color != nil {
			label.TextColor = l.Color.TextColor
			label.BackgroundColor = l.Color.BackgroundColor
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// CreateLabel creates a user label with the given colors.
func (a *GmailAdapter) CreateLabel(ctx context.Context, token *oauth2.Token, name string, color domain.LabelColor) (*domain.Label, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Users.Labels.Create("me", &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
			Color: &gmail.LabelColor{
				TextColor:       color.Text,
				BackgroundColor: color.Background,
			},
		}).Context(ctx).Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to create label")
	}

	created := result.(*gmail.Label)
	return &domain.Label{
		ID:              created.Id,
		Name:            created.Name,
		TextColor:       color.Text,
		BackgroundColor: color.Background,
	}, nil
}

// AddLabel applies a label to a message.
func (a *GmailAdapter) AddLabel(ctx context.Context, token *oauth2.Token, messageID, labelID string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	_, err = a.cb.Execute(func() (interface{}, error) {
		return svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
			AddLabelIds: []string{labelID},
		}).Context(ctx).Do()
	})
	if err != nil {
		return a.wrapError(err, "failed to add label")
	}
	return nil
}

// CreateDraft creates a threaded reply draft.
func (a *GmailAdapter) CreateDraft(ctx context.Context, token *oauth2.Token, draft *out.OutgoingDraft) (string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return "", err
	}

	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		draft.To, draft.Subject, draft.Body)

	result, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Users.Drafts.Create("me", &gmail.Draft{
			Message: &gmail.Message{
				Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
				ThreadId: draft.ThreadID,
			},
		}).Context(ctx).Do()
	})
	if err != nil {
		return "", a.wrapError(err, "failed to create draft")
	}

	return result.(*gmail.Draft).Id, nil
}

// ListSentMessages returns recent sent mail with bodies, for tone analysis.
func (a *GmailAdapter) ListSentMessages(ctx context.Context, token *oauth2.Token, limit int) ([]*domain.Message, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Users.Messages.List("me").
			LabelIds("SENT").
			MaxResults(int64(limit)).
			Context(ctx).Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list sent messages")
	}
	resp := result.(*gmail.ListMessagesResponse)

	messages := make([]*domain.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := a.fetchMessage(ctx, svc, ref.Id, "full")
		if err != nil {
			a.log.WithError(err).WithField("message_id", ref.Id).Warn("sent message fetch failed")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// wrapError maps Gmail API failures onto provider error codes.
func (a *GmailAdapter) wrapError(err error, message string) *out.ProviderError {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return out.NewProviderError(providerName, out.ProviderErrRateLimit, "circuit breaker open", err, true)
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch {
		case apiErr.Code == 401:
			return out.NewProviderError(providerName, out.ProviderErrAuth, message, err, false)
		case apiErr.Code == 403 || apiErr.Code == 429:
			return out.NewProviderError(providerName, out.ProviderErrRateLimit, message, err, true)
		case apiErr.Code == 404:
			return out.NewProviderError(providerName, out.ProviderErrNotFound, message, err, false)
		case apiErr.Code >= 500:
			return out.NewProviderError(providerName, out.ProviderErrServer, message, err, true)
		}
	}

	return out.NewProviderError(providerName, out.ProviderErrNetwork, message, err, true)
}
