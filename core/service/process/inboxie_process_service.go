// Package process fronts the pipeline for the HTTP layer: it resolves the
// user's provider token and exposes run statistics.
package process

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/core/service/pipeline"
	"inboxie_server/pkg/apperr"
	"inboxie_server/pkg/logger"
)

const providerGoogle = "google"

type Service struct {
	orchestrator *pipeline.Orchestrator
	tokens       out.TokenRepository
	provider     out.MailProviderPort
	records      out.ProcessedEmailRepository
	users        out.UserRepository
	log          *logger.Logger
}

func NewService(
	orchestrator *pipeline.Orchestrator,
	tokens out.TokenRepository,
	provider out.MailProviderPort,
	records out.ProcessedEmailRepository,
	users out.UserRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		orchestrator: orchestrator,
		tokens:       tokens,
		provider:     provider,
		records:      records,
		users:        users,
		log:          log,
	}
}

// Run executes a pipeline run for the user, refreshing the stored provider
// token first when it is near expiry.
func (s *Service) Run(ctx context.Context, userID uuid.UUID, opts pipeline.RunOptions) (*domain.RunReport, error) {
	token, err := s.ProviderToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.Run(ctx, userID, token, opts)
}

// ProviderToken loads the stored OAuth token and refreshes it if needed,
// persisting the rotated credential. Other services that talk to the
// provider on the user's behalf resolve their token through here too.
func (s *Service) ProviderToken(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	stored, err := s.tokens.Get(ctx, userID, providerGoogle)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, apperr.Unauthorized("no connected mailbox for user")
	}

	token := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
	}

	if !stored.Expired() {
		return token, nil
	}

	refreshed, err := s.provider.RefreshToken(ctx, token)
	if err != nil {
		return nil, apperr.Unauthorized("mailbox credential expired").WithError(err)
	}

	stored.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		stored.RefreshToken = refreshed.RefreshToken
	}
	stored.Expiry = refreshed.Expiry
	stored.UpdatedAt = time.Now().UTC()
	if err := s.tokens.Save(ctx, stored); err != nil {
		// The refreshed token still works this run.
		s.log.WithError(err).WithField("user_id", userID.String()).
			Warn("failed to persist refreshed token")
	}

	return refreshed, nil
}

// Stats summarizes what the pipeline has processed for the user.
type Stats struct {
	ByCategory map[domain.Category]int `json:"by_category"`
	NeedsReply int                     `json:"needs_reply"`
	Quota      *domain.UserQuota       `json:"quota"`
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	byCategory, err := s.records.CategoryStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	needsReply, err := s.records.NeedsReplyCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	quota, err := s.users.GetQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Stats{ByCategory: byCategory, NeedsReply: needsReply, Quota: quota}, nil
}
