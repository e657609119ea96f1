package geofence

import (
	"context"
	"errors"
	"fmt"

	"drinkOnMeAPI/internal/apperr"
)

// Provider is the platform location capability the detector runs against.
// Watch delivers continuous updates and closes its channel when the stream
// dies; Current takes a single reading for the polling fallback.
type Provider interface {
	Watch(ctx context.Context) (<-chan Sample, error)
	Current(ctx context.Context) (Sample, error)
}

// Sensor failure modes. Permission denial and policy blocks are permanent
// for the session; timeouts and transient unavailability are retried.
var (
	ErrPermissionDenied    = fmt.Errorf("location permission denied: %w", apperr.ErrSensorUnavailable)
	ErrPolicyBlocked       = fmt.Errorf("location blocked by platform policy: %w", apperr.ErrSensorUnavailable)
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrWatchUnsupported    = errors.New("continuous position updates unsupported")
	ErrTimeout             = errors.New("position request timed out")
)

// fatal reports whether the error disables detection for the session. The
// caller then surfaces manual-check-in-only mode; detection failure never
// blocks the rest of the app.
func fatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrPolicyBlocked)
}
