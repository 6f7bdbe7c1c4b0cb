package out

import (
	"context"

	"inboxie_server/core/domain"
)

// LLMPort is the outbound port for language model operations.
type LLMPort interface {
	// Classify assigns a category to the message. Implementations coerce
	// invalid model output to domain.CategoryOther rather than failing.
	Classify(ctx context.Context, msg *domain.Message) (domain.Category, error)

	// AssessReply judges whether the message needs a human reply.
	AssessReply(ctx context.Context, msg *domain.Message) (domain.ReplyAssessment, error)

	// GenerateReply drafts a reply to the message in the user's tone.
	GenerateReply(ctx context.Context, msg *domain.Message, tone *domain.ToneProfile) (string, error)

	// AnalyzeTone derives a tone profile from sample sent messages.
	AnalyzeTone(ctx context.Context, samples []*domain.Message) (*domain.ToneProfile, error)

	// Embed returns an embedding vector for the text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
