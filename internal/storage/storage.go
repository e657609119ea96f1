// Package storage defines the persistence operations behind the presence
// store, admission controller and redemption registry, with in-memory and
// Postgres implementations. State is partitioned by key (user, venue, code)
// so contention stays scoped to one entity.
package storage

import (
	"context"
	"errors"
	"time"

	"drinkOnMeAPI/internal/types/drink"
	"drinkOnMeAPI/internal/types/presence"
	"drinkOnMeAPI/internal/types/redemption"
	"drinkOnMeAPI/internal/types/venue"
)

// ErrCodeTaken is returned by InsertToken when the code collides with a
// live token. The registry regenerates and retries a bounded number of
// times.
var ErrCodeTaken = errors.New("redemption code taken")

type VenueStore interface {
	ListVenues(ctx context.Context) ([]venue.Venue, error)
	GetVenue(ctx context.Context, id string) (*venue.Venue, error)
	UpsertVenue(ctx context.Context, v venue.Venue) error
}

type PresenceStore interface {
	// CheckIn closes any open record for the user (implicit check-out at
	// the same timestamp) and opens a new one. Calling it again for the
	// venue the user is already at refreshes intent and last-seen instead
	// of opening a second record.
	CheckIn(ctx context.Context, userID, venueID string, intent presence.Intent, now time.Time) (*presence.Record, error)

	// CheckOut closes the active record if present; no-op otherwise.
	CheckOut(ctx context.Context, userID string, now time.Time) error

	// ActiveRecord returns the user's open record, or nil.
	ActiveRecord(ctx context.Context, userID string) (*presence.Record, error)

	VenueOccupancy(ctx context.Context, venueID string) (*presence.Occupancy, error)
}

type LedgerStore interface {
	// Append stores the entry unless one already exists for the same
	// (offer, direction); the bool reports whether a row was written.
	// Idempotency here is what lets recordDrink survive retries without
	// double-counting.
	Append(ctx context.Context, e drink.LedgerEntry) (bool, error)

	CountSince(ctx context.Context, userID string, dir drink.Direction, since time.Time) (int, error)

	LastEntryAt(ctx context.Context, userID string, dir drink.Direction) (*time.Time, error)

	// OldestInWindow returns the timestamp of the oldest entry at or after
	// since, used to tell callers when a rolling cap frees up.
	OldestInWindow(ctx context.Context, userID string, dir drink.Direction, since time.Time) (*time.Time, error)
}

type ViolationStore interface {
	AddViolation(ctx context.Context, userID string, at time.Time) error

	// ViolationsSince returns the count and the oldest violation timestamp
	// within the window starting at since.
	ViolationsSince(ctx context.Context, userID string, since time.Time) (int, *time.Time, error)

	SuspendedUntil(ctx context.Context, userID string) (*time.Time, error)

	Suspend(ctx context.Context, userID string, until time.Time) error
}

type TokenStore interface {
	// InsertToken stores the token, failing with ErrCodeTaken when the
	// (normalized) code is already held by a live token.
	InsertToken(ctx context.Context, t redemption.Token) error

	GetByCode(ctx context.Context, code string) (*redemption.Token, error)

	GetByOffer(ctx context.Context, offerID string) (*redemption.Token, error)

	// Redeem performs the atomic pending->redeemed transition for code.
	// Concurrent calls on the same code yield exactly one success; the
	// rest fail with apperr.ErrAlreadyRedeemed. Expiry is checked here,
	// at redeem time, so the sweep is advisory only.
	Redeem(ctx context.Context, code, bartenderID string, now time.Time) (*redemption.Token, error)

	// ExpireOverdue marks overdue pending tokens expired and reports how
	// many it touched.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}
