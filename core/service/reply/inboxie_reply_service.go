// Package reply drafts AI replies in the user's own tone.
package reply

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/apperr"
	"inboxie_server/pkg/logger"
)

type Service struct {
	provider out.MailProviderPort
	llm      out.LLMPort
	records  out.ProcessedEmailRepository
	bodies   out.MessageBodyRepository
	tones    out.ToneProfileStore
	log      *logger.Logger
}

func NewService(
	provider out.MailProviderPort,
	llm out.LLMPort,
	records out.ProcessedEmailRepository,
	bodies out.MessageBodyRepository,
	tones out.ToneProfileStore,
	log *logger.Logger,
) *Service {
	return &Service{
		provider: provider,
		llm:      llm,
		records:  records,
		bodies:   bodies,
		tones:    tones,
		log:      log,
	}
}

// Draft is the result of drafting a reply.
type Draft struct {
	DraftID   string `json:"draft_id"`
	MessageID string `json:"message_id"`
	Body      string `json:"body"`
}

// DraftReply generates a reply to a processed message and creates a draft on
// the provider's side, threaded onto the original conversation.
func (s *Service) DraftReply(ctx context.Context, userID uuid.UUID, token *oauth2.Token, messageID string) (*Draft, error) {
	record, err := s.records.GetByMessageID(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperr.NotFound("processed message")
	}

	msg := &domain.Message{
		ID:       record.MessageID,
		ThreadID: record.ThreadID,
		Subject:  record.Subject,
		From:     record.From,
	}

	// Prefer the cached body; fall back to refetching from the provider.
	body, err := s.bodies.Get(ctx, userID, messageID)
	if err != nil || body == "" {
		fetched, ferr := s.provider.GetMessage(ctx, token, messageID)
		if ferr == nil && fetched != nil {
			msg.Body = fetched.Body
			msg.Snippet = fetched.Snippet
		}
	} else {
		msg.Body = body
	}

	// Tone is optional; drafting works without a profile.
	tone, err := s.tones.Get(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID.String()).
			Warn("tone profile unavailable, drafting without it")
		tone = nil
	}

	text, err := s.llm.GenerateReply(ctx, msg, tone)
	if err != nil {
		return nil, apperr.LLMError("generate reply", err)
	}

	draftID, err := s.provider.CreateDraft(ctx, token, &out.OutgoingDraft{
		To:       record.From,
		Subject:  "Re: " + record.Subject,
		Body:     text,
		ThreadID: record.ThreadID,
	})
	if err != nil {
		return nil, apperr.ProviderError("create draft", err)
	}

	return &Draft{DraftID: draftID, MessageID: messageID, Body: text}, nil
}

// AnalyzeTone rebuilds the user's tone profile from recent sent mail.
func (s *Service) AnalyzeTone(ctx context.Context, userID uuid.UUID, token *oauth2.Token) (*domain.ToneProfile, error) {
	samples, err := s.provider.ListSentMessages(ctx, token, 20)
	if err != nil {
		return nil, apperr.ProviderError("list sent messages", err)
	}
	if len(samples) == 0 {
		return nil, apperr.BadRequest("no sent messages available for tone analysis")
	}

	profile, err := s.llm.AnalyzeTone(ctx, samples)
	if err != nil {
		return nil, apperr.LLMError("analyze tone", err)
	}

	profile.UserID = userID
	profile.UpdatedAt = time.Now().UTC()
	if err := s.tones.Save(ctx, profile); err != nil {
		return nil, err
	}

	return profile, nil
}
