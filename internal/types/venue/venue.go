package venue

import "drinkOnMeAPI/internal/geo"

// Venue is static reference data owned by venue management (external).
// The geofence radius is configurable per venue between 100 and 500 meters.
type Venue struct {
	ID                   string         `db:"id"                     json:"id"`
	Name                 string         `db:"name"                   json:"name"`
	Coordinate           geo.Coordinate `json:"coordinate"`
	GeofenceRadiusMeters float64        `db:"geofence_radius_meters" json:"geofence_radius_meters"`
}

const (
	DefaultGeofenceRadiusMeters = 100
	MinGeofenceRadiusMeters     = 100
	MaxGeofenceRadiusMeters     = 500
)

// Radius returns the geofence radius clamped to the allowed range, falling
// back to the default when the venue record carries none.
func (v Venue) Radius() float64 {
	r := v.GeofenceRadiusMeters
	switch {
	case r == 0:
		return DefaultGeofenceRadiusMeters
	case r < MinGeofenceRadiusMeters:
		return MinGeofenceRadiusMeters
	case r > MaxGeofenceRadiusMeters:
		return MaxGeofenceRadiusMeters
	}
	return r
}
