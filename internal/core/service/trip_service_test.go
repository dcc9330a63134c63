package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
)

func TestComputeTripStats(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := func(sec int, lat, speed float64) *model.Position {
		p := model.NewPosition("v1", "d1", lat, 0)
		p.Timestamp = base.Add(time.Duration(sec) * time.Second)
		p.Speed = speed
		return p
	}

	tests := []struct {
		name  string
		fixes []*model.Position
		want  model.TripStats
	}{
		{name: "no fixes", fixes: nil},
		{name: "single fix", fixes: []*model.Position{pos(0, 0, 50)}},
		{
			name:  "one degree of latitude",
			fixes: []*model.Position{pos(0, 0, 10), pos(600, 1, 90), pos(1200, 1, 0)},
			want: model.TripStats{
				DistanceKm:  111.19492664455873,
				MaxSpeedKmh: 90,
				AvgSpeedKmh: 100.0 / 3,
				DurationSec: 1200,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTripStats(tt.fixes)
			assert.InDelta(t, tt.want.DistanceKm, got.DistanceKm, 1e-6)
			assert.Equal(t, tt.want.MaxSpeedKmh, got.MaxSpeedKmh)
			assert.InDelta(t, tt.want.AvgSpeedKmh, got.AvgSpeedKmh, 1e-9)
			assert.Equal(t, tt.want.DurationSec, got.DurationSec)
		})
	}
}

func TestTripServiceTransitions(t *testing.T) {
	ctx := context.Background()
	trips := repository.NewInMemoryTripRepository()
	positions := repository.NewInMemoryPositionRepository()
	pub := &recordingPublisher{}
	svc := NewTripService(trips, positions, pub, 2, testLogger())

	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	feed := func(sec int, speed float64) *TripEvent {
		p := model.NewPosition("v1", "d1", 0, 0)
		p.Timestamp = base.Add(time.Duration(sec) * time.Second)
		p.Speed = speed
		require.NoError(t, positions.Insert(ctx, p))
		ev, err := svc.Process(ctx, p)
		require.NoError(t, err)
		return ev
	}

	assert.Nil(t, feed(0, 2), "threshold speed is not movement")
	ev := feed(10, 2.1)
	require.NotNil(t, ev)
	assert.Equal(t, TripStarted, ev.Event)
	assert.Nil(t, feed(20, 60), "already active")
	ev = feed(30, 1)
	require.NotNil(t, ev)
	assert.Equal(t, TripEnded, ev.Event)
	assert.Equal(t, int64(20), ev.Trip.DurationSec)
	assert.Nil(t, feed(40, 0), "already idle")

	open, err := trips.FindOpen(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, open)
	assert.Len(t, pub.events, 2)
}
