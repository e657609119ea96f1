// Package apperr holds the sentinel errors shared across services and
// handlers. Services wrap these with context via fmt.Errorf and %w; handlers
// classify with errors.Is to pick the HTTP status.
package apperr

import "errors"

var (
	// ErrNotFound covers unknown venues, users, offers and codes.
	ErrNotFound = errors.New("not found")

	// ErrExpired means the token is past its TTL. Checked before the
	// redeemed state so staff UIs can show "too old" rather than
	// "already used".
	ErrExpired = errors.New("expired")

	// ErrAlreadyRedeemed is a terminal-state violation on a token.
	ErrAlreadyRedeemed = errors.New("already redeemed")

	// ErrSensorUnavailable signals degraded geofencing. It is recovered
	// locally by falling back to polling or manual check-in and is never
	// surfaced as a hard failure.
	ErrSensorUnavailable = errors.New("sensor unavailable")
)
