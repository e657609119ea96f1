package geofence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinkOnMeAPI/internal/geo"
	"drinkOnMeAPI/internal/types/venue"
)

// metersNorth returns a coordinate offset north of the origin by the given
// distance. One degree of latitude is ~111195 m.
func metersNorth(m float64) geo.Coordinate {
	return geo.Coordinate{Latitude: m / 111194.9, Longitude: 0}
}

func sampleAt(m float64) Sample {
	return Sample{Coordinate: metersNorth(m), Timestamp: time.Now()}
}

func testVenue(id string, radius float64) venue.Venue {
	return venue.Venue{ID: id, Name: id, Coordinate: geo.Coordinate{}, GeofenceRadiusMeters: radius}
}

func TestDetectorEnter(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{})

	ev := d.Observe(sampleAt(50))
	require.NotNil(t, ev)
	assert.Equal(t, EventEnter, ev.Type)
	assert.Equal(t, "bar_a", ev.VenueID)
	assert.InDelta(t, 50, ev.DistanceMeters, 1)
}

func TestDetectorNoEnterOutsideRadius(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{})

	assert.Nil(t, d.Observe(sampleAt(150)))
}

func TestDetectorEnterNotRepeated(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{})

	require.NotNil(t, d.Observe(sampleAt(50)))
	// Still inside, same venue: no second notification.
	assert.Nil(t, d.Observe(sampleAt(60)))
	assert.Nil(t, d.Observe(sampleAt(10)))
}

func TestDetectorExitRequiresHysteresis(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{HysteresisMeters: 20})
	d.Confirm("bar_a")

	// Between radius and radius+hysteresis: jitter, not an exit.
	assert.Nil(t, d.Observe(sampleAt(105)))
	assert.Nil(t, d.Observe(sampleAt(119)))

	ev := d.Observe(sampleAt(130))
	require.NotNil(t, ev)
	assert.Equal(t, EventExit, ev.Type)
	assert.Equal(t, "bar_a", ev.VenueID)
}

func TestDetectorReenterAfterExit(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{})

	require.NotNil(t, d.Observe(sampleAt(50)))
	d.Confirm("bar_a")
	require.NotNil(t, d.Observe(sampleAt(200)))

	// Exit cleared the notification state, so coming back fires again.
	ev := d.Observe(sampleAt(40))
	require.NotNil(t, ev)
	assert.Equal(t, EventEnter, ev.Type)
}

func TestDetectorBoundaryFlappingProducesOneEnter(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{HysteresisMeters: 20})

	enters := 0
	for _, m := range []float64{99, 101, 98, 103, 97, 110, 95} {
		if ev := d.Observe(sampleAt(m)); ev != nil && ev.Type == EventEnter {
			enters++
			d.Confirm(ev.VenueID)
		}
	}
	assert.Equal(t, 1, enters)
}

func TestDetectorPicksClosestVenue(t *testing.T) {
	far := testVenue("bar_far", 500)
	near := venue.Venue{
		ID:                   "bar_near",
		Name:                 "bar_near",
		Coordinate:           metersNorth(60),
		GeofenceRadiusMeters: 100,
	}
	d := NewDetector([]venue.Venue{far, near}, DetectorConfig{})

	// 50 m from origin: 50 m to bar_far, 10 m to bar_near.
	ev := d.Observe(sampleAt(50))
	require.NotNil(t, ev)
	assert.Equal(t, "bar_near", ev.VenueID)
}

func TestDetectorTieBreaksByVenueID(t *testing.T) {
	a := testVenue("bar_a", 100)
	b := testVenue("bar_b", 100)
	d := NewDetector([]venue.Venue{b, a}, DetectorConfig{})

	ev := d.Observe(sampleAt(50))
	require.NotNil(t, ev)
	assert.Equal(t, "bar_a", ev.VenueID)
}

func TestDetectorRadiusClamped(t *testing.T) {
	// A zero radius falls back to the 100 m default.
	d := NewDetector([]venue.Venue{testVenue("bar_a", 0)}, DetectorConfig{})
	require.NotNil(t, d.Observe(sampleAt(80)))

	// A radius above the cap is clamped to 500 m.
	d = NewDetector([]venue.Venue{testVenue("bar_b", 5000)}, DetectorConfig{})
	assert.Nil(t, d.Observe(sampleAt(600)))
}

func TestDetectorDropsInaccurateSamples(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{MaxAccuracyMeters: 50})

	s := sampleAt(50)
	s.AccuracyMeters = 200
	assert.Nil(t, d.Observe(s))

	s.AccuracyMeters = 10
	assert.NotNil(t, d.Observe(s))
}

func TestDetectorDropsStaleSamples(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{MaxSampleAge: time.Minute})

	s := sampleAt(50)
	s.Timestamp = time.Now().Add(-2 * time.Minute)
	assert.Nil(t, d.Observe(s))
}

func TestDetectorClearActive(t *testing.T) {
	d := NewDetector([]venue.Venue{testVenue("bar_a", 100)}, DetectorConfig{})

	require.NotNil(t, d.Observe(sampleAt(50)))
	d.Confirm("bar_a")
	d.ClearActive()

	// Manual check-out elsewhere: no exit fires, and a fresh enter does.
	assert.Nil(t, d.Observe(sampleAt(200)))
	ev := d.Observe(sampleAt(50))
	require.NotNil(t, ev)
	assert.Equal(t, EventEnter, ev.Type)
}
