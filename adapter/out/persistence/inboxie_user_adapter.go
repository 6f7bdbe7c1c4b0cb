// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inboxie_server/core/domain"
)

// UserAdapter implements out.UserRepository using PostgreSQL.
type UserAdapter struct {
	db *sqlx.DB
}

func NewUserAdapter(db *sqlx.DB) *UserAdapter {
	return &UserAdapter{db: db}
}

type userRow struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Plan      string    `db:"plan"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *userRow) toEntity() *domain.User {
	return &domain.User{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Plan:      domain.PlanType(r.Plan),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type quotaRow struct {
	UserID          uuid.UUID `db:"user_id"`
	Plan            string    `db:"plan"`
	EmailsProcessed int       `db:"emails_processed"`
	QuotaLimit      int       `db:"quota_limit"`
	PeriodStart     time.Time `db:"period_start"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *quotaRow) toEntity() *domain.UserQuota {
	return &domain.UserQuota{
		UserID:          r.UserID,
		Plan:            domain.PlanType(r.Plan),
		EmailsProcessed: r.EmailsProcessed,
		Limit:           r.QuotaLimit,
		PeriodStart:     r.PeriodStart,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (a *UserAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var row userRow
	query := `
		SELECT id, email, name, plan, created_at, updated_at
		FROM users
		WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// GetOrCreate looks a user up by email, creating a free-plan account on
// first sight.
func (a *UserAdapter) GetOrCreate(ctx context.Context, email, name string) (*domain.User, error) {
	var row userRow
	query := `
		INSERT INTO users (id, email, name, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id, email, name, plan, created_at, updated_at`

	if err := a.db.GetContext(ctx, &row, query, uuid.New(), email, name, string(domain.PlanFree)); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// GetQuota returns the user's quota row, creating it from the plan limit on
// first use.
func (a *UserAdapter) GetQuota(ctx context.Context, userID uuid.UUID) (*domain.UserQuota, error) {
	var row quotaRow
	query := `
		SELECT q.user_id, u.plan, q.emails_processed, q.quota_limit, q.period_start, q.updated_at
		FROM user_quotas q
		JOIN users u ON u.id = q.user_id
		WHERE q.user_id = $1`

	err := a.db.GetContext(ctx, &row, query, userID)
	if err == nil {
		return row.toEntity(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	user, err := a.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	insert := `
		INSERT INTO user_quotas (user_id, emails_processed, quota_limit, period_start, updated_at)
		VALUES ($1, 0, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
		RETURNING user_id, emails_processed, quota_limit, period_start, updated_at`

	limit := user.Plan.QuotaLimit()
	var created struct {
		UserID          uuid.UUID `db:"user_id"`
		EmailsProcessed int       `db:"emails_processed"`
		QuotaLimit      int       `db:"quota_limit"`
		PeriodStart     time.Time `db:"period_start"`
		UpdatedAt       time.Time `db:"updated_at"`
	}
	if err := a.db.GetContext(ctx, &created, insert, userID, limit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race to another inserter; reread.
			return a.GetQuota(ctx, userID)
		}
		return nil, err
	}

	return &domain.UserQuota{
		UserID:          created.UserID,
		Plan:            user.Plan,
		EmailsProcessed: created.EmailsProcessed,
		Limit:           created.QuotaLimit,
		PeriodStart:     created.PeriodStart,
		UpdatedAt:       created.UpdatedAt,
	}, nil
}

// IncrementProcessed bumps the period counter by count.
func (a *UserAdapter) IncrementProcessed(ctx context.Context, userID uuid.UUID, count int) error {
	query := `
		UPDATE user_quotas
		SET emails_processed = emails_processed + $2, updated_at = NOW()
		WHERE user_id = $1`

	result, err := a.db.ExecContext(ctx, query, userID, count)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
