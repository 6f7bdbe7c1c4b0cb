// Package search offers semantic search over processed mail.
package search

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/apperr"
	"inboxie_server/pkg/logger"
)

const defaultLimit = 10
const maxLimit = 50

type Service struct {
	llm    out.LLMPort
	vector out.VectorStore
	log    *logger.Logger
}

func NewService(llm out.LLMPort, vector out.VectorStore, log *logger.Logger) *Service {
	return &Service{llm: llm, vector: vector, log: log}
}

// Index embeds a processed message and upserts it into the vector store.
// Failures are logged, not fatal: search lags behind rather than blocking
// the pipeline.
func (s *Service) Index(ctx context.Context, userID uuid.UUID, msg *domain.Message) {
	text := msg.Subject + "\n" + msg.Snippet
	embedding, err := s.llm.Embed(ctx, text)
	if err != nil || len(embedding) == 0 {
		s.log.WithError(err).WithField("message_id", msg.ID).Warn("embedding failed, message not indexed")
		return
	}

	err = s.vector.Upsert(ctx, &out.VectorDocument{
		UserID:    userID,
		MessageID: msg.ID,
		Subject:   msg.Subject,
		Snippet:   msg.Snippet,
		Embedding: embedding,
		IndexedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).WithField("message_id", msg.ID).Warn("vector upsert failed")
	}
}

// Search embeds the query and returns the closest processed messages.
func (s *Service) Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]*out.VectorMatch, error) {
	if query == "" {
		return nil, apperr.MissingField("query")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	embedding, err := s.llm.Embed(ctx, query)
	if err != nil {
		return nil, apperr.LLMError("embed query", err)
	}

	matches, err := s.vector.Search(ctx, userID, embedding, limit)
	if err != nil {
		return nil, err
	}
	return matches, nil
}
