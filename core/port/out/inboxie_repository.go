package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inboxie_server/core/domain"
)

// UserRepository manages users and their processing quotas.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetOrCreate(ctx context.Context, email, name string) (*domain.User, error)

	// GetQuota returns the current-period quota row, creating it on first use.
	GetQuota(ctx context.Context, userID uuid.UUID) (*domain.UserQuota, error)

	// IncrementProcessed adds count to the period counter. Called once per
	// batch with the persisted record count.
	IncrementProcessed(ctx context.Context, userID uuid.UUID, count int) error
}

// ProcessedEmailRepository persists pipeline outcomes.
type ProcessedEmailRepository interface {
	// ProcessedIDs returns which of messageIDs already have a record for the
	// user, for idempotent skip during fetch.
	ProcessedIDs(ctx context.Context, userID uuid.UUID, messageIDs []string) (map[string]bool, error)

	// SaveBatch inserts records, ignoring duplicates by (user, message).
	// Returns the number actually inserted.
	SaveBatch(ctx context.Context, records []*domain.ProcessingRecord) (int, error)

	GetByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (*domain.ProcessingRecord, error)

	// CategoryStats returns per-category record counts for the user.
	CategoryStats(ctx context.Context, userID uuid.UUID) (map[domain.Category]int, error)

	// NeedsReplyCount returns how many records are flagged as needing a reply.
	NeedsReplyCount(ctx context.Context, userID uuid.UUID) (int, error)
}

// TokenRepository stores provider OAuth tokens, encrypted at rest.
type TokenRepository interface {
	Save(ctx context.Context, token *domain.OAuthToken) error
	Get(ctx context.Context, userID uuid.UUID, provider string) (*domain.OAuthToken, error)
	Delete(ctx context.Context, userID uuid.UUID, provider string) error
}

// ToneProfileStore persists user writing-style profiles.
type ToneProfileStore interface {
	Save(ctx context.Context, profile *domain.ToneProfile) error
	Get(ctx context.Context, userID uuid.UUID) (*domain.ToneProfile, error)
}

// MessageBodyRepository caches full message bodies outside the relational
// store, keyed by (user, message).
type MessageBodyRepository interface {
	Save(ctx context.Context, userID uuid.UUID, messageID, body string) error
	Get(ctx context.Context, userID uuid.UUID, messageID string) (string, error)
}

// VectorStore indexes processed message embeddings for semantic search.
type VectorStore interface {
	Upsert(ctx context.Context, doc *VectorDocument) error
	Search(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]*VectorMatch, error)
}

// VectorDocument is an embedded message in the vector index.
type VectorDocument struct {
	UserID    uuid.UUID
	MessageID string
	Subject   string
	Snippet   string
	Embedding []float32
	IndexedAt time.Time
}

// VectorMatch is one semantic search hit.
type VectorMatch struct {
	MessageID string  `json:"message_id"`
	Subject   string  `json:"subject"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

// ProgressPublisher pushes pipeline progress events to live subscribers.
type ProgressPublisher interface {
	Publish(userID uuid.UUID, event ProgressEvent)
	Subscribe(userID uuid.UUID) (<-chan ProgressEvent, func())
}

// ProgressEvent is one progress update from a running pipeline.
type ProgressEvent struct {
	Phase     domain.RunPhase `json:"phase"`
	Batch     int             `json:"batch"`
	Processed int             `json:"processed"`
	Message   string          `json:"message,omitempty"`
	At        time.Time       `json:"at"`
}
