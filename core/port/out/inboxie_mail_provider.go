// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
)

// MailProviderPort is the outbound port for the user's mailbox provider.
// All calls operate on behalf of one user whose token the adapter carries.
type MailProviderPort interface {
	// Auth
	GetAuthURL(state string) string
	ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error)
	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)

	// Messages
	ListMessages(ctx context.Context, token *oauth2.Token, pageToken string, pageSize int) (*MessagePage, error)
	GetMessage(ctx context.Context, token *oauth2.Token, messageID string) (*domain.Message, error)

	// Labels
	ListLabels(ctx context.Context, token *oauth2.Token) ([]domain.Label, error)
	CreateLabel(ctx context.Context, token *oauth2.Token, name string, color domain.LabelColor) (*domain.Label, error)
	AddLabel(ctx context.Context, token *oauth2.Token, messageID, labelID string) error

	// Drafts
	CreateDraft(ctx context.Context, token *oauth2.Token, draft *OutgoingDraft) (string, error)

	// Sent mail samples for tone analysis
	ListSentMessages(ctx context.Context, token *oauth2.Token, limit int) ([]*domain.Message, error)
}

// MessagePage is one page of a mailbox listing. A page shorter than the
// requested size signals the end of the mailbox.
type MessagePage struct {
	Messages      []*domain.Message
	NextPageToken string
}

// OutgoingDraft is a reply draft to create on the provider side.
type OutgoingDraft struct {
	To       string
	Subject  string
	Body     string
	ThreadID string
}

// ProviderErrorCode classifies provider failures. auth_error and
// token_expired are fatal to a pipeline run; the rest are per-item.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error class should halt an entire run rather
// than skip one message.
func (e *ProviderError) Fatal() bool {
	return e.Code == ProviderErrAuth || e.Code == ProviderErrTokenExpired
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
