// Package pipeline implements the batch email processing run:
// fetch, classify, reconcile labels, apply and persist.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/logger"
)

// FetcherConfig tunes mailbox paging.
type FetcherConfig struct {
	PageSize     int // provider page size
	FetchCeiling int // hard cap on total messages examined per call
}

// Fetcher accumulates unprocessed messages from the mailbox.
type Fetcher struct {
	provider out.MailProviderPort
	records  out.ProcessedEmailRepository
	cfg      FetcherConfig
	log      *logger.Logger
}

func NewFetcher(provider out.MailProviderPort, records out.ProcessedEmailRepository, cfg FetcherConfig, log *logger.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.FetchCeiling <= 0 {
		cfg.FetchCeiling = 500
	}
	return &Fetcher{provider: provider, records: records, cfg: cfg, log: log}
}

// FetchNew returns up to target messages that have no ProcessingRecord yet.
// It stops on: target reached, a short page (end of mailbox), or the fetch
// ceiling. A failed page is treated as empty and logged; auth-class provider
// errors abort the whole run.
func (f *Fetcher) FetchNew(ctx context.Context, token *oauth2.Token, userID uuid.UUID, target int) ([]*domain.Message, error) {
	if target <= 0 {
		return nil, nil
	}

	var (
		collected []*domain.Message
		pageToken string
		examined  int
	)

	for {
		page, err := f.provider.ListMessages(ctx, token, pageToken, f.cfg.PageSize)
		if err != nil {
			var provErr *out.ProviderError
			if errors.As(err, &provErr) && !provErr.Fatal() {
				// Treat the failed page as empty; partial results are fine.
				f.log.WithError(err).WithField("user_id", userID.String()).
					Warn("page fetch failed, stopping with partial results")
				return collected, nil
			}
			return collected, err
		}

		examined += len(page.Messages)

		fresh, err := f.filterProcessed(ctx, userID, page.Messages)
		if err != nil {
			return collected, err
		}

		for _, msg := range fresh {
			collected = append(collected, msg)
			if len(collected) >= target {
				return collected, nil
			}
		}

		// Short page means the mailbox is exhausted.
		if len(page.Messages) < f.cfg.PageSize || page.NextPageToken == "" {
			return collected, nil
		}
		if examined >= f.cfg.FetchCeiling {
			f.log.WithField("user_id", userID.String()).
				WithField("examined", examined).
				Warn("fetch ceiling reached")
			return collected, nil
		}

		pageToken = page.NextPageToken
	}
}

func (f *Fetcher) filterProcessed(ctx context.Context, userID uuid.UUID, msgs []*domain.Message) ([]*domain.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	seen, err := f.records.ProcessedIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	fresh := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if !seen[m.ID] {
			fresh = append(fresh, m)
		}
	}
	return fresh, nil
}
