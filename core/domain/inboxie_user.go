package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlanType is the subscription tier controlling the processing quota.
type PlanType string

const (
	PlanFree PlanType = "free"
	PlanPro  PlanType = "pro"
	PlanTeam PlanType = "team"
)

// Plan limits: emails processed per billing period.
const (
	FreePlanLimit = 100
	ProPlanLimit  = 2000
	TeamPlanLimit = 10000
)

// QuotaLimit returns the processing ceiling for the plan. Unknown plans get
// the free tier limit.
func (p PlanType) QuotaLimit() int {
	switch p {
	case PlanPro:
		return ProPlanLimit
	case PlanTeam:
		return TeamPlanLimit
	default:
		return FreePlanLimit
	}
}

// User is an Inboxie account holder.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Plan      PlanType  `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserQuota tracks the per-period processing counter. EmailsProcessed is
// monotonic within a period and incremented once per batch by the count of
// successfully persisted records.
type UserQuota struct {
	UserID          uuid.UUID `json:"user_id"`
	Plan            PlanType  `json:"plan"`
	EmailsProcessed int       `json:"emails_processed"`
	Limit           int       `json:"limit"`
	PeriodStart     time.Time `json:"period_start"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Remaining returns how many more emails the user may process this period.
func (q *UserQuota) Remaining() int {
	remaining := q.Limit - q.EmailsProcessed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether the quota ceiling is reached.
func (q *UserQuota) Exhausted() bool {
	return q.EmailsProcessed >= q.Limit
}

// OAuthToken is a stored provider credential. AccessToken and RefreshToken
// are encrypted at rest; the adapter decrypts on load.
type OAuthToken struct {
	UserID       uuid.UUID `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the access token needs a refresh, with a small
// skew window so calls in flight do not hit the boundary.
func (t *OAuthToken) Expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().After(t.Expiry.Add(-2 * time.Minute))
}

// ToneProfile captures a user's writing style, learned from sample sent
// messages and used when drafting replies.
type ToneProfile struct {
	UserID      uuid.UUID `json:"user_id"`
	Formality   string    `json:"formality"`   // casual, neutral, formal
	Greeting    string    `json:"greeting"`    // typical opening
	SignOff     string    `json:"sign_off"`    // typical closing
	Traits      []string  `json:"traits"`      // short style descriptors
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
