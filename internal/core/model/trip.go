package model

import (
	"time"

	"github.com/google/uuid"
)

// Trip is a period of movement. A vehicle has at most one open trip, the one
// with a nil EndTime.
type Trip struct {
	ID          string     `json:"id" bson:"id"`
	VehicleID   string     `json:"vehicleId" bson:"vehicleid"`
	StartTime   time.Time  `json:"startTime" bson:"starttime"`
	EndTime     *time.Time `json:"endTime" bson:"endtime"`
	StartPos    Point      `json:"startPos" bson:"startpos"`
	EndPos      *Point     `json:"endPos,omitempty" bson:"endpos,omitempty"`
	DistanceKm  float64    `json:"distanceKm" bson:"distancekm"`
	MaxSpeedKmh float64    `json:"maxSpeedKmh" bson:"maxspeedkmh"`
	AvgSpeedKmh float64    `json:"avgSpeedKmh" bson:"avgspeedkmh"`
	DurationSec int64      `json:"durationSec" bson:"durationsec"`
}

func NewTrip(vehicleID string, start time.Time, pos Point) *Trip {
	return &Trip{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		StartTime: start,
		StartPos:  pos,
	}
}

func (t *Trip) IsOpen() bool { return t.EndTime == nil }

// TripStats are the figures computed when a trip closes.
type TripStats struct {
	DistanceKm  float64
	MaxSpeedKmh float64
	AvgSpeedKmh float64
	DurationSec int64
}

func (t *Trip) Close(end time.Time, pos Point, stats TripStats) {
	t.EndTime = &end
	t.EndPos = &pos
	t.DistanceKm = stats.DistanceKm
	t.MaxSpeedKmh = stats.MaxSpeedKmh
	t.AvgSpeedKmh = stats.AvgSpeedKmh
	t.DurationSec = stats.DurationSec
}
