package presence

import "time"

// Intent captures what the user wants out of being at the venue. It is set
// at check-in and refreshed on idempotent re-check-ins.
type Intent struct {
	WantsToBuy     bool `json:"wants_to_buy" db:"wants_to_buy"`
	WantsToReceive bool `json:"wants_to_receive" db:"wants_to_receive"`
}

// Record is a single check-in. A user has at most one record with
// CheckedOutAt == nil at any time; the store enforces that by closing the
// previous record whenever a new one opens.
type Record struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	VenueID      string     `json:"venue_id" db:"venue_id"`
	CheckedInAt  time.Time  `json:"checked_in_at" db:"checked_in_at"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty" db:"checked_out_at"`
	LastSeen     time.Time  `json:"last_seen" db:"last_seen"`
	Intent       Intent     `json:"intent"`
}

// Active reports whether the record is still open.
func (r Record) Active() bool {
	return r.CheckedOutAt == nil
}

// Occupancy is the aggregate view of active records at one venue. Read far
// more often than written, so it is safe to cache for a few seconds.
type Occupancy struct {
	VenueID        string `json:"venue_id"`
	Total          int    `json:"total"`
	WantsToBuy     int    `json:"wants_to_buy"`
	WantsToReceive int    `json:"wants_to_receive"`
}
