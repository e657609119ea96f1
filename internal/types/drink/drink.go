package drink

import "time"

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// LedgerEntry is append-only. Entries are never mutated or deleted; they
// simply age out of the rolling-window views.
type LedgerEntry struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	OfferID   string    `json:"offer_id" db:"offer_id"`
	Direction Direction `json:"direction" db:"direction"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// LimitState is the derived view over the ledger plus violation history,
// recomputed on every admission check.
type LimitState struct {
	UserID               string     `json:"user_id"`
	HourlyCount          int        `json:"hourly_count"`
	DailyCount           int        `json:"daily_count"`
	ViolationCount       int        `json:"violation_count"`
	ViolationWindowStart *time.Time `json:"violation_window_start,omitempty"`
	SuspendedUntil       *time.Time `json:"suspended_until,omitempty"`
	LastDrinkAt          *time.Time `json:"last_drink_at,omitempty"`
}

// Suspended reports whether the user is suspended as of now.
func (s LimitState) Suspended(now time.Time) bool {
	return s.SuspendedUntil != nil && now.Before(*s.SuspendedUntil)
}

// Eligibility is the outcome of an admission check. RetryAt, when set, is
// the earliest moment the denial reason stops applying so clients can show
// actionable guidance instead of an opaque block.
type Eligibility struct {
	Eligible bool       `json:"eligible"`
	Reason   string     `json:"reason,omitempty"`
	RetryAt  *time.Time `json:"retry_at,omitempty"`
}

// Denial reasons surfaced to callers.
const (
	ReasonHourlyLimit = "hourly_limit"
	ReasonDailyLimit  = "daily_limit"
	ReasonSuspended   = "suspended"
)
