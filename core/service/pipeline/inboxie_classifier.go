package pipeline

import (
	"context"
	"regexp"
	"sync"
	"time"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/logger"
)

// Categories that never warrant a reply assessment.
var noReplyCategories = map[domain.Category]bool{
	domain.CategoryNewsletter: true,
	domain.CategoryShopping:   true,
}

// Senders that never expect a reply.
var noReplySenderPattern = regexp.MustCompile(`(?i)(no-?reply|do-?not-?reply|donotreply|notifications?@|mailer-daemon|automated)`)

// ClassifierConfig tunes LLM call batching.
type ClassifierConfig struct {
	ChunkSize   int           // messages classified concurrently
	ChunkDelay  time.Duration // pause between waves
	ReplyWindow time.Duration // messages older than this skip reply assessment
	CallTimeout time.Duration // per-LLM-call ceiling
}

// Classifier assigns categories and reply assessments to a batch.
type Classifier struct {
	llm out.LLMPort
	cfg ClassifierConfig
	log *logger.Logger
}

func NewClassifier(llm out.LLMPort, cfg ClassifierConfig, log *logger.Logger) *Classifier {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10
	}
	if cfg.ReplyWindow <= 0 {
		cfg.ReplyWindow = 14 * 24 * time.Hour
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Classifier{llm: llm, cfg: cfg, log: log}
}

// ClassifyBatch classifies messages in bounded-concurrency waves with a short
// delay between waves. It never fails: every message comes back with a valid
// category and assessment, degraded to defaults when the model misbehaves.
func (c *Classifier) ClassifyBatch(ctx context.Context, msgs []*domain.Message) []*domain.ClassifiedMessage {
	results := make([]*domain.ClassifiedMessage, len(msgs))

	for start := 0; start < len(msgs); start += c.cfg.ChunkSize {
		end := start + c.cfg.ChunkSize
		if end > len(msgs) {
			end = len(msgs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.classifyOne(ctx, msgs[i])
			}(i)
		}
		wg.Wait()

		if end < len(msgs) && c.cfg.ChunkDelay > 0 {
			select {
			case <-time.After(c.cfg.ChunkDelay):
			case <-ctx.Done():
				// Fill the remainder with fallbacks so the batch stays whole.
				for i := end; i < len(msgs); i++ {
					results[i] = &domain.ClassifiedMessage{
						Message:    msgs[i],
						Category:   domain.CategoryOther,
						Assessment: domain.NoReplyAssessment("run cancelled"),
					}
				}
				return results
			}
		}
	}

	return results
}

func (c *Classifier) classifyOne(ctx context.Context, msg *domain.Message) *domain.ClassifiedMessage {
	category := c.categorize(ctx, msg)

	return &domain.ClassifiedMessage{
		Message:    msg,
		Category:   category,
		Assessment: c.assess(ctx, msg, category),
	}
}

func (c *Classifier) categorize(ctx context.Context, msg *domain.Message) domain.Category {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	category, err := c.llm.Classify(callCtx, msg)
	if err != nil {
		c.log.WithError(err).WithField("message_id", msg.ID).
			Warn("classification failed, coercing to other")
		return domain.CategoryOther
	}
	if !category.IsValid() {
		return domain.CategoryOther
	}
	return category
}

// assess runs the deterministic pre-filters first; only messages that pass
// all of them reach the LLM.
func (c *Classifier) assess(ctx context.Context, msg *domain.Message, category domain.Category) domain.ReplyAssessment {
	if noReplyCategories[category] {
		return domain.NoReplyAssessment("category does not expect replies")
	}
	if noReplySenderPattern.MatchString(msg.From) {
		return domain.NoReplyAssessment("automated sender")
	}
	if !msg.ReceivedAt.IsZero() && time.Since(msg.ReceivedAt) > c.cfg.ReplyWindow {
		return domain.NoReplyAssessment("message outside reply window")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	assessment, err := c.llm.AssessReply(callCtx, msg)
	if err != nil {
		c.log.WithError(err).WithField("message_id", msg.ID).
			Warn("reply assessment failed")
		return domain.NoReplyAssessment("analysis error")
	}
	return assessment
}
