package model

import (
	"time"

	"github.com/google/uuid"
)

// Position is one persisted GPS fix. Positions are append-only.
type Position struct {
	ID         string    `json:"id" bson:"id"`
	VehicleID  string    `json:"vehicleId" bson:"vehicleid"`
	DeviceID   string    `json:"deviceId" bson:"deviceid"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Latitude   float64   `json:"latitude" bson:"latitude"`
	Longitude  float64   `json:"longitude" bson:"longitude"`
	Speed      float64   `json:"speed" bson:"speed"`
	Course     float64   `json:"course" bson:"course"`
	Satellites int       `json:"satellites" bson:"satellites"`
	Valid      bool      `json:"valid" bson:"valid"`
	Protocol   string    `json:"protocol" bson:"protocol"`
	ReceivedAt time.Time `json:"receivedAt" bson:"receivedat"`
}

func NewPosition(vehicleID, deviceID string, lat, lon float64) *Position {
	return &Position{
		ID:         uuid.NewString(),
		VehicleID:  vehicleID,
		DeviceID:   deviceID,
		Timestamp:  time.Now().UTC(),
		Latitude:   lat,
		Longitude:  lon,
		Protocol:   "unknown",
		Valid:      true,
		ReceivedAt: time.Now().UTC(),
	}
}

func (p *Position) Point() Point {
	return Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}
