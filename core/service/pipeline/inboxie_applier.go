package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/logger"
	"inboxie_server/pkg/ratelimit"
)

// ApplierConfig tunes label application and record persistence.
type ApplierConfig struct {
	PersistChunk int // records persisted per parallel chunk
}

// Indexer feeds processed messages into the semantic search index.
type Indexer interface {
	Index(ctx context.Context, userID uuid.UUID, msg *domain.Message)
}

// Applier applies labels to the mailbox and persists processing records.
// Label application is the single serialization point in the pipeline; it
// runs strictly sequentially behind the token bucket.
type Applier struct {
	provider out.MailProviderPort
	records  out.ProcessedEmailRepository
	users    out.UserRepository
	limiter  *ratelimit.TokenBucket
	bodies   out.MessageBodyRepository
	indexer  Indexer
	cfg      ApplierConfig
	log      *logger.Logger
}

// SetBodyCache enables caching of message bodies for later reply drafting.
func (a *Applier) SetBodyCache(bodies out.MessageBodyRepository) {
	a.bodies = bodies
}

// SetIndexer enables semantic indexing of persisted messages.
func (a *Applier) SetIndexer(indexer Indexer) {
	a.indexer = indexer
}

func NewApplier(
	provider out.MailProviderPort,
	records out.ProcessedEmailRepository,
	users out.UserRepository,
	limiter *ratelimit.TokenBucket,
	cfg ApplierConfig,
	log *logger.Logger,
) *Applier {
	if cfg.PersistChunk <= 0 {
		cfg.PersistChunk = 20
	}
	return &Applier{
		provider: provider,
		records:  records,
		users:    users,
		limiter:  limiter,
		cfg:      cfg,
		log:      log,
	}
}

// opResult tags the outcome of one isolated per-message operation.
type opResult struct {
	messageID string
	err       error
}

func (r opResult) failed() bool { return r.err != nil }

// isolate runs one per-message operation, logging and recording the failure
// instead of letting it escape. Fatal provider errors are re-raised through
// the returned result's err for the caller to inspect.
func (a *Applier) isolate(op, messageID string, fn func() error) opResult {
	err := fn()
	if err != nil {
		a.log.WithError(err).
			WithField("op", op).
			WithField("message_id", messageID).
			Warn("operation failed, isolated")
	}
	return opResult{messageID: messageID, err: err}
}

// Apply labels the batch and persists its records, then bumps the user's
// quota once by the persisted count. Per-message failures are isolated;
// auth-class provider errors abort the run.
func (a *Applier) Apply(
	ctx context.Context,
	token *oauth2.Token,
	userID uuid.UUID,
	batch []*domain.ClassifiedMessage,
	labels domain.LabelMap,
) (domain.BatchResult, error) {
	result := domain.BatchResult{
		Fetched:    len(batch),
		Classified: len(batch),
	}

	// Label application: sequential, throttled.
	applied := make(map[string]string, len(batch)) // messageID -> labelID
	for _, cm := range batch {
		labelID, ok := labels.IDFor(cm.Category)
		if !ok {
			continue // category unmapped this run, message goes unlabeled
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return result, err
		}

		r := a.isolate("add_label", cm.Message.ID, func() error {
			return a.provider.AddLabel(ctx, token, cm.Message.ID, labelID)
		})
		if r.failed() {
			var provErr *out.ProviderError
			if errors.As(r.err, &provErr) && provErr.Fatal() {
				return result, r.err
			}
			result.Failed++
			continue
		}

		applied[cm.Message.ID] = labelID
		result.Labeled++
	}

	// Records are written for every classified message, labeled or not, so
	// unlabeled messages are not refetched forever.
	now := time.Now().UTC()
	records := make([]*domain.ProcessingRecord, 0, len(batch))
	for _, cm := range batch {
		records = append(records, &domain.ProcessingRecord{
			UserID:      userID,
			MessageID:   cm.Message.ID,
			ThreadID:    cm.Message.ThreadID,
			Subject:     cm.Message.Subject,
			From:        cm.Message.From,
			Category:    cm.Category,
			NeedsReply:  cm.Assessment.NeedsReply,
			Reason:      cm.Assessment.Reason,
			Urgency:     cm.Assessment.Urgency,
			LabelID:     applied[cm.Message.ID],
			ProcessedAt: now,
		})
	}

	result.Persisted = a.persistChunks(ctx, records)
	result.Failed += len(records) - result.Persisted

	// Quota moves once per batch by the persisted count, never more.
	if result.Persisted > 0 {
		if err := a.users.IncrementProcessed(ctx, userID, result.Persisted); err != nil {
			a.log.WithError(err).WithField("user_id", userID.String()).
				Error("quota increment failed")
		}
	}

	a.cacheAndIndex(ctx, userID, batch)

	return result, nil
}

// cacheAndIndex runs the best-effort side channels: body caching for reply
// drafting and embedding for semantic search. Failures never affect the
// batch result.
func (a *Applier) cacheAndIndex(ctx context.Context, userID uuid.UUID, batch []*domain.ClassifiedMessage) {
	if a.bodies == nil && a.indexer == nil {
		return
	}

	for _, cm := range batch {
		if ctx.Err() != nil {
			return
		}
		if a.bodies != nil && cm.Message.Body != "" {
			if err := a.bodies.Save(ctx, userID, cm.Message.ID, cm.Message.Body); err != nil {
				a.log.WithError(err).WithField("message_id", cm.Message.ID).
					Warn("body cache write failed")
			}
		}
		if a.indexer != nil {
			a.indexer.Index(ctx, userID, cm.Message)
		}
	}
}

// persistChunks writes records in parallel chunks and returns how many were
// actually inserted. A failed chunk is logged and its records counted failed.
func (a *Applier) persistChunks(ctx context.Context, records []*domain.ProcessingRecord) int {
	if len(records) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		persisted int
	)

	for start := 0; start < len(records); start += a.cfg.PersistChunk {
		end := start + a.cfg.PersistChunk
		if end > len(records) {
			end = len(records)
		}

		wg.Add(1)
		go func(chunk []*domain.ProcessingRecord) {
			defer wg.Done()
			n, err := a.records.SaveBatch(ctx, chunk)
			if err != nil {
				a.log.WithError(err).WithField("chunk_size", len(chunk)).
					Error("record chunk persist failed")
				return
			}
			mu.Lock()
			persisted += n
			mu.Unlock()
		}(records[start:end])
	}

	wg.Wait()
	return persisted
}
