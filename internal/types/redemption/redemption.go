package redemption

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusRedeemed Status = "redeemed"
	StatusExpired  Status = "expired"
)

// Token binds a short opaque code to one accepted drink offer. Codes are
// 6-8 alphanumeric characters and matched case-insensitively. A token moves
// pending -> redeemed exactly once; redeemed and expired are terminal.
type Token struct {
	ID          string     `json:"id" db:"id"`
	Code        string     `json:"code" db:"code"`
	OfferID     string     `json:"offer_id" db:"offer_id"`
	VenueID     string     `json:"venue_id" db:"venue_id"`
	RecipientID string     `json:"recipient_id" db:"recipient_id"`
	DrinkItem   string     `json:"drink_item" db:"drink_item"`
	Status      Status     `json:"status" db:"status"`
	IssuedAt    time.Time  `json:"issued_at" db:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty" db:"redeemed_at"`
	RedeemedBy  *string    `json:"redeemed_by,omitempty" db:"redeemed_by"`
}

// Expired reports whether the token is past its TTL, regardless of whether
// the sweep has caught up with it yet.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
