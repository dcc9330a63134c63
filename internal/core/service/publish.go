package service

import (
	"context"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/core/model"
	"fleettrack/internal/events"
)

// Event payloads published next to the persisted records.

type TripEvent struct {
	Event string      `json:"event"`
	Trip  *model.Trip `json:"trip"`
}

type AlarmEvent struct {
	VehicleID string          `json:"vehicleId"`
	DeviceID  string          `json:"deviceId"`
	Code      int             `json:"code"`
	Name      string          `json:"name"`
	Position  *model.Position `json:"position,omitempty"`
}

type CommandEvent struct {
	Event   string         `json:"event"`
	Command *model.Command `json:"command"`
}

// publish hands the event to the bus and logs a failure. It never returns an
// error: events are best-effort.
func publish(ctx context.Context, pub events.Publisher, logger *log.Entry, topic, key string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, topic, key, payload); err != nil {
		logger.WithError(err).WithFields(log.Fields{"topic": topic, "key": key}).Warn("event not published")
	}
}
