package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inboxie_server/core/domain"
	"inboxie_server/pkg/crypto"
	"inboxie_server/pkg/logger"
)

// TokenAdapter implements out.TokenRepository using PostgreSQL. Tokens are
// AES-GCM encrypted at rest when an encryptor is provided.
type TokenAdapter struct {
	db        *sqlx.DB
	encryptor *crypto.Encryptor
	log       *logger.Logger
}

func NewTokenAdapter(db *sqlx.DB, encryptor *crypto.Encryptor, log *logger.Logger) *TokenAdapter {
	if encryptor == nil {
		log.Warn("token encryption disabled: no encryption key configured")
	}
	return &TokenAdapter{db: db, encryptor: encryptor, log: log}
}

type tokenRow struct {
	UserID       uuid.UUID `db:"user_id"`
	Provider     string    `db:"provider"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	Expiry       time.Time `db:"expires_at"`
	Scope        string    `db:"scope"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (a *TokenAdapter) encrypt(value string) string {
	if a.encryptor == nil || value == "" {
		return value
	}
	encrypted, err := a.encryptor.Encrypt(value)
	if err != nil {
		a.log.WithError(err).Warn("token encryption failed, storing plaintext")
		return value
	}
	return encrypted
}

func (a *TokenAdapter) decrypt(value string) string {
	if a.encryptor == nil || value == "" || !crypto.IsEncrypted(value) {
		return value
	}
	decrypted, err := a.encryptor.Decrypt(value)
	if err != nil {
		// Legacy plaintext value that happens to look encrypted.
		return value
	}
	return decrypted
}

func (a *TokenAdapter) Save(ctx context.Context, token *domain.OAuthToken) error {
	query := `
		INSERT INTO oauth_tokens (user_id, provider, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			updated_at = NOW()`

	_, err := a.db.ExecContext(ctx, query,
		token.UserID, token.Provider,
		a.encrypt(token.AccessToken), a.encrypt(token.RefreshToken),
		token.Expiry, token.Scope)
	return err
}

func (a *TokenAdapter) Get(ctx context.Context, userID uuid.UUID, provider string) (*domain.OAuthToken, error) {
	var row tokenRow
	query := `
		SELECT user_id, provider, access_token, refresh_token, expires_at, scope, updated_at
		FROM oauth_tokens
		WHERE user_id = $1 AND provider = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &domain.OAuthToken{
		UserID:       row.UserID,
		Provider:     row.Provider,
		AccessToken:  a.decrypt(row.AccessToken),
		RefreshToken: a.decrypt(row.RefreshToken),
		Expiry:       row.Expiry,
		Scope:        row.Scope,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func (a *TokenAdapter) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	query := `DELETE FROM oauth_tokens WHERE user_id = $1 AND provider = $2`
	_, err := a.db.ExecContext(ctx, query, userID, provider)
	return err
}
