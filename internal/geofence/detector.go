package geofence

import (
	"sync"
	"time"

	"drinkOnMeAPI/internal/geo"
	"drinkOnMeAPI/internal/types/venue"
)

// Sample is one reading from the device location sensor. The detector leans
// on the timestamp and accuracy fields instead of assuming sub-meter
// precision.
type Sample struct {
	Coordinate     geo.Coordinate
	Timestamp      time.Time
	AccuracyMeters float64
}

type EventType string

const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

// Event is advisory: the caller confirms intent before the presence store
// is touched. A user may decline a detected check-in.
type Event struct {
	Type           EventType
	VenueID        string
	VenueName      string
	DistanceMeters float64
	At             time.Time
}

// DetectorConfig tunes one detector instance.
type DetectorConfig struct {
	// HysteresisMeters is the extra margin beyond the venue radius a user
	// must travel before an exit fires. Prevents enter/exit flapping from
	// GPS jitter at the boundary.
	HysteresisMeters float64

	// MaxAccuracyMeters drops samples whose reported accuracy is worse
	// than this. Zero disables the filter.
	MaxAccuracyMeters float64

	// MaxSampleAge drops samples older than this. Zero disables the filter.
	MaxSampleAge time.Duration
}

// Detector turns a stream of position samples into enter/exit events for a
// set of candidate venues. All state (active venue, last-notified venue) is
// instance state, so detectors are independently instantiable per device or
// session and testable in isolation.
type Detector struct {
	mu     sync.Mutex
	cfg    DetectorConfig
	venues []venue.Venue

	activeVenueID string
	lastNotified  string
}

func NewDetector(venues []venue.Venue, cfg DetectorConfig) *Detector {
	if cfg.HysteresisMeters == 0 {
		cfg.HysteresisMeters = 20
	}
	return &Detector{cfg: cfg, venues: venues}
}

// SetVenues replaces the candidate venue set.
func (d *Detector) SetVenues(venues []venue.Venue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.venues = venues
}

// Confirm records that the caller accepted a detected (or manual) check-in,
// making the venue the detector's active one.
func (d *Detector) Confirm(venueID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeVenueID = venueID
}

// ClearActive records a check-out that did not originate from the detector.
func (d *Detector) ClearActive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeVenueID = ""
	d.lastNotified = ""
}

// Observe evaluates one sample and returns an enter or exit event, or nil.
//
// The closest venue whose distance is under its radius qualifies; ties break
// by distance, then venue id, so the outcome is deterministic. An enter for
// the same venue is not repeated while the user stays inside its radius. An
// exit fires only once the user is past radius+hysteresis from the active
// venue.
func (d *Detector) Observe(s Sample) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.usable(s) {
		return nil
	}

	closest, closestDist := d.closestQualifying(s.Coordinate)

	if closest != nil {
		if d.activeVenueID != closest.ID && d.lastNotified != closest.ID {
			d.lastNotified = closest.ID
			return &Event{
				Type:           EventEnter,
				VenueID:        closest.ID,
				VenueName:      closest.Name,
				DistanceMeters: closestDist,
				At:             s.Timestamp,
			}
		}
		return nil
	}

	if d.activeVenueID == "" {
		return nil
	}

	active := d.findVenue(d.activeVenueID)
	if active == nil {
		return nil
	}

	dist := geo.DistanceMeters(s.Coordinate, active.Coordinate)
	if dist > active.Radius()+d.cfg.HysteresisMeters {
		ev := &Event{
			Type:           EventExit,
			VenueID:        active.ID,
			VenueName:      active.Name,
			DistanceMeters: dist,
			At:             s.Timestamp,
		}
		d.activeVenueID = ""
		d.lastNotified = ""
		return ev
	}
	return nil
}

func (d *Detector) usable(s Sample) bool {
	if d.cfg.MaxAccuracyMeters > 0 && s.AccuracyMeters > d.cfg.MaxAccuracyMeters {
		return false
	}
	if d.cfg.MaxSampleAge > 0 && !s.Timestamp.IsZero() && time.Since(s.Timestamp) > d.cfg.MaxSampleAge {
		return false
	}
	return true
}

func (d *Detector) closestQualifying(pos geo.Coordinate) (*venue.Venue, float64) {
	var closest *venue.Venue
	var closestDist float64
	for i := range d.venues {
		v := &d.venues[i]
		dist := geo.DistanceMeters(pos, v.Coordinate)
		if dist >= v.Radius() {
			continue
		}
		if closest == nil || dist < closestDist || (dist == closestDist && v.ID < closest.ID) {
			closest = v
			closestDist = dist
		}
	}
	return closest, closestDist
}

func (d *Detector) findVenue(id string) *venue.Venue {
	for i := range d.venues {
		if d.venues[i].ID == id {
			return &d.venues[i]
		}
	}
	return nil
}
