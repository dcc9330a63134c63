package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fleettrack/internal/core/model"
)

func TestHaversine(t *testing.T) {
	jakarta := model.Point{Latitude: -6.2088, Longitude: 106.8456}
	assert.Zero(t, Haversine(jakarta, jakarta))

	// one degree of latitude
	d := Haversine(model.Point{Latitude: 0, Longitude: 0}, model.Point{Latitude: 1, Longitude: 0})
	assert.InDelta(t, 111.195, d, 0.01)

	london := model.Point{Latitude: 51.5074, Longitude: -0.1278}
	paris := model.Point{Latitude: 48.8566, Longitude: 2.3522}
	assert.InDelta(t, 343.5, Haversine(london, paris), 1)
	assert.InDelta(t, Haversine(london, paris), Haversine(paris, london), 1e-9)
}

func TestContainsCircle(t *testing.T) {
	center := model.Point{Latitude: 10, Longitude: 20}
	g := model.NewCircleGeofence("depot", "org", center, 500)

	// 1 m of latitude in degrees
	const metre = 1 / 111194.93
	tests := []struct {
		name string
		p    model.Point
		want bool
	}{
		{"center", center, true},
		{"just inside radius", model.Point{Latitude: 10 + 499*metre, Longitude: 20}, true},
		{"just outside radius", model.Point{Latitude: 10 + 501*metre, Longitude: 20}, false},
		{"far away", model.Point{Latitude: 11, Longitude: 20}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(tt.p, g))
		})
	}
}

func TestContainsPolygon(t *testing.T) {
	square := model.NewPolygonGeofence("square", "org", []model.Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 10},
		{Latitude: 10, Longitude: 10},
		{Latitude: 10, Longitude: 0},
	})
	// U shape opening north: the notch between x=3..7 above y=3 is outside.
	u := model.NewPolygonGeofence("u", "org", []model.Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 10},
		{Latitude: 10, Longitude: 10},
		{Latitude: 10, Longitude: 7},
		{Latitude: 3, Longitude: 7},
		{Latitude: 3, Longitude: 3},
		{Latitude: 10, Longitude: 3},
		{Latitude: 10, Longitude: 0},
	})

	tests := []struct {
		name string
		g    *model.Geofence
		p    model.Point
		want bool
	}{
		{"square center", square, model.Point{Latitude: 5, Longitude: 5}, true},
		{"square outside east", square, model.Point{Latitude: 5, Longitude: 11}, false},
		{"square outside south", square, model.Point{Latitude: -1, Longitude: 5}, false},
		{"u left arm", u, model.Point{Latitude: 8, Longitude: 1}, true},
		{"u notch", u, model.Point{Latitude: 8, Longitude: 5}, false},
		{"u base", u, model.Point{Latitude: 1, Longitude: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(tt.p, tt.g))
		})
	}

	degenerate := &model.Geofence{Kind: model.GeofencePolygon, Vertices: []model.Point{{}, {Latitude: 1}}}
	assert.False(t, Contains(model.Point{}, degenerate))
}

func TestPathLength(t *testing.T) {
	assert.Zero(t, PathLength(nil))
	assert.Zero(t, PathLength([]model.Point{{Latitude: 1, Longitude: 1}}))

	path := []model.Point{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 0}, {Latitude: 2, Longitude: 0}}
	assert.InDelta(t, 2*111.195, PathLength(path), 0.05)
}
