// Package auth handles the provider OAuth connect flow.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/apperr"
	"inboxie_server/pkg/logger"
)

const (
	providerGoogle = "google"
	stateTTL       = 10 * time.Minute
)

// Service drives the OAuth authorize/callback exchange. The state parameter
// is stored in Redis so the callback can be validated against CSRF and tied
// back to the initiating user.
type Service struct {
	provider out.MailProviderPort
	tokens   out.TokenRepository
	redis    *redis.Client
	log      *logger.Logger
}

func NewService(provider out.MailProviderPort, tokens out.TokenRepository, redisClient *redis.Client, log *logger.Logger) *Service {
	return &Service{provider: provider, tokens: tokens, redis: redisClient, log: log}
}

func stateKey(state string) string {
	return fmt.Sprintf("oauth:state:%s", state)
}

// AuthURL creates a single-use state bound to the user and returns the
// provider consent URL. Without a state store the callback could not be
// tied back to a user, so the flow is refused entirely.
func (s *Service) AuthURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.redis == nil {
		return "", apperr.Internal("oauth state store unavailable")
	}
	state := uuid.NewString()
	if err := s.redis.Set(ctx, stateKey(state), userID.String(), stateTTL).Err(); err != nil {
		return "", apperr.InternalWithError(err)
	}
	return s.provider.GetAuthURL(state), nil
}

// Callback validates the state, exchanges the code, and stores the resulting
// credential. Returns the user the connection belongs to.
func (s *Service) Callback(ctx context.Context, state, code string) (uuid.UUID, error) {
	if state == "" || code == "" {
		return uuid.Nil, apperr.BadRequest("missing state or code")
	}
	if s.redis == nil {
		return uuid.Nil, apperr.Internal("oauth state store unavailable")
	}

	val, err := s.redis.GetDel(ctx, stateKey(state)).Result()
	if err != nil {
		return uuid.Nil, apperr.OAuthFailed(providerGoogle, err).WithDetail("reason", "unknown or expired state")
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, apperr.OAuthFailed(providerGoogle, err)
	}

	token, err := s.provider.ExchangeToken(ctx, code)
	if err != nil {
		return uuid.Nil, apperr.OAuthFailed(providerGoogle, err)
	}

	err = s.tokens.Save(ctx, &domain.OAuthToken{
		UserID:       userID,
		Provider:     providerGoogle,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.log.WithField("user_id", userID.String()).Info("mailbox connected")
	return userID, nil
}

// Disconnect removes the stored credential.
func (s *Service) Disconnect(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.Delete(ctx, userID, providerGoogle)
}
