package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMetersZero(t *testing.T) {
	p := Coordinate{Latitude: 42.6977, Longitude: 23.3219}
	assert.Equal(t, 0.0, DistanceMeters(p, p))
}

func TestDistanceMetersSymmetry(t *testing.T) {
	a := Coordinate{Latitude: 42.6977, Longitude: 23.3219}
	b := Coordinate{Latitude: 42.6950, Longitude: 23.3330}
	assert.InDelta(t, DistanceMeters(a, b), DistanceMeters(b, a), 1e-9)
}

func TestDistanceMetersOneDegree(t *testing.T) {
	// One degree of latitude is about 111.19 km on a sphere of radius
	// 6371 km, regardless of longitude.
	a := Coordinate{Latitude: 0, Longitude: 0}
	b := Coordinate{Latitude: 1, Longitude: 0}
	assert.InDelta(t, 111194.9, DistanceMeters(a, b), 1.0)

	c := Coordinate{Latitude: 0, Longitude: 1}
	assert.InDelta(t, 111194.9, DistanceMeters(a, c), 1.0)
}

func TestDistanceMetersCityPair(t *testing.T) {
	paris := Coordinate{Latitude: 48.8566, Longitude: 2.3522}
	london := Coordinate{Latitude: 51.5074, Longitude: -0.1278}

	d := DistanceMeters(paris, london)
	// Great-circle distance is roughly 344 km; allow 1%.
	assert.InDelta(t, 344000, d, 3440)
}

func TestDistanceMetersShortRange(t *testing.T) {
	// A thousandth of a degree of latitude is about 111 m, the scale a
	// geofence boundary actually operates at.
	a := Coordinate{Latitude: 42.6977, Longitude: 23.3219}
	b := Coordinate{Latitude: 42.6987, Longitude: 23.3219}
	assert.InDelta(t, 111.2, DistanceMeters(a, b), 0.5)
}
