package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/apperr"
	"inboxie_server/pkg/logger"
	"inboxie_server/pkg/ratelimit"
)

// OrchestratorConfig tunes the run loop.
type OrchestratorConfig struct {
	BatchSize  int           // messages per batch
	MaxBatches int           // batch-count ceiling per run
	BatchDelay time.Duration // pause between batches
}

// RunOptions are per-request overrides.
type RunOptions struct {
	BatchSize  int // 0 = configured default
	EmailLimit int // cap on messages persisted this run, 0 = unlimited
}

// Orchestrator drives repeated batches until no unprocessed mail remains,
// the batch ceiling is hit, or the quota runs out. One iterative loop; each
// iteration walks FETCHING, CLASSIFYING, LABELING, PERSISTING.
type Orchestrator struct {
	fetcher    *Fetcher
	classifier *Classifier
	reconciler *Reconciler
	applier    *Applier
	users      out.UserRepository
	guard      *ratelimit.RunGuard
	progress   out.ProgressPublisher
	cfg        OrchestratorConfig
	log        *logger.Logger
}

func NewOrchestrator(
	fetcher *Fetcher,
	classifier *Classifier,
	reconciler *Reconciler,
	applier *Applier,
	users out.UserRepository,
	guard *ratelimit.RunGuard,
	progress out.ProgressPublisher,
	cfg OrchestratorConfig,
	log *logger.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = 10
	}
	return &Orchestrator{
		fetcher:    fetcher,
		classifier: classifier,
		reconciler: reconciler,
		applier:    applier,
		users:      users,
		guard:      guard,
		progress:   progress,
		cfg:        cfg,
		log:        log,
	}
}

// Run executes one pipeline run for the user. Partial totals come back even
// when the run halts on a fatal error.
func (o *Orchestrator) Run(ctx context.Context, userID uuid.UUID, token *oauth2.Token, opts RunOptions) (*domain.RunReport, error) {
	acquired, err := o.guard.TryAcquire(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperr.RunInProgress(userID.String())
	}
	defer o.guard.Release(context.WithoutCancel(ctx), userID.String())

	report := domain.NewRunReport(userID)
	log := o.log.WithField("user_id", userID.String())

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = o.cfg.BatchSize
	}

	// Quota is checked before any work starts; an already-exhausted quota is
	// a clean rejection, not a half-run.
	quota, err := o.users.GetQuota(ctx, userID)
	if err != nil {
		return report, err
	}
	if quota.Exhausted() {
		return report, apperr.QuotaExceeded(quota.EmailsProcessed, quota.Limit)
	}

	for batch := 1; batch <= o.cfg.MaxBatches; batch++ {
		// Cancellation is honored between batches only; in-flight calls
		// within a batch run to completion.
		if err := ctx.Err(); err != nil {
			return o.halt(report, "cancelled"), err
		}

		if batch > 1 {
			quota, err = o.users.GetQuota(ctx, userID)
			if err != nil {
				return o.halt(report, "quota check failed"), err
			}
			if quota.Exhausted() {
				log.Info("quota exhausted mid-run, stopping")
				return o.finish(report), nil
			}
		}

		target := batchSize
		if remaining := quota.Remaining(); remaining < target {
			target = remaining
		}
		if opts.EmailLimit > 0 {
			if left := opts.EmailLimit - report.TotalPersisted; left < target {
				target = left
			}
		}
		if target <= 0 {
			return o.finish(report), nil
		}

		o.publish(userID, domain.PhaseFetching, batch, report.TotalPersisted, "")
		msgs, err := o.fetcher.FetchNew(ctx, token, userID, target)
		if err != nil {
			return o.halt(report, "fetch failed"), err
		}
		if len(msgs) == 0 {
			log.WithField("batches", report.Batches).Info("no unprocessed messages remain")
			return o.finish(report), nil
		}

		o.publish(userID, domain.PhaseClassifying, batch, report.TotalPersisted, "")
		classified := o.classifier.ClassifyBatch(ctx, msgs)

		o.publish(userID, domain.PhaseLabeling, batch, report.TotalPersisted, "")
		labels, err := o.reconciler.Resolve(ctx, token, CategoriesOf(classified))
		if err != nil {
			return o.halt(report, "label reconciliation failed"), err
		}

		o.publish(userID, domain.PhasePersisting, batch, report.TotalPersisted, "")
		batchResult, err := o.applier.Apply(ctx, token, userID, classified, labels)
		report.Absorb(batchResult)
		for _, cm := range classified {
			report.Count(cm.Category, cm.Assessment)
		}
		if err != nil {
			return o.halt(report, "apply failed"), err
		}

		log.WithField("batch", batch).
			WithField("fetched", batchResult.Fetched).
			WithField("persisted", batchResult.Persisted).
			Info("batch complete")

		// A short batch means the fetcher ran out of supply.
		if len(msgs) < target {
			return o.finish(report), nil
		}
		if opts.EmailLimit > 0 && report.TotalPersisted >= opts.EmailLimit {
			return o.finish(report), nil
		}

		if o.cfg.BatchDelay > 0 && batch < o.cfg.MaxBatches {
			select {
			case <-time.After(o.cfg.BatchDelay):
			case <-ctx.Done():
				return o.halt(report, "cancelled"), ctx.Err()
			}
		}
	}

	return o.finish(report), nil
}

func (o *Orchestrator) finish(report *domain.RunReport) *domain.RunReport {
	report.FinishedAt = time.Now().UTC()
	o.publish(report.UserID, domain.PhaseDone, report.Batches, report.TotalPersisted, "")
	return report
}

func (o *Orchestrator) halt(report *domain.RunReport, reason string) *domain.RunReport {
	report.Halted = true
	report.HaltReason = reason
	return o.finish(report)
}

func (o *Orchestrator) publish(userID uuid.UUID, phase domain.RunPhase, batch, processed int, msg string) {
	if o.progress == nil {
		return
	}
	o.progress.Publish(userID, out.ProgressEvent{
		Phase:     phase,
		Batch:     batch,
		Processed: processed,
		Message:   msg,
		At:        time.Now().UTC(),
	})
}
