package model

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertSpeeding    AlertType = "speeding"
	AlertGeofence    AlertType = "geofence"
	AlertOffline     AlertType = "offline"
	AlertDeviceAlarm AlertType = "device_alarm"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is write-once apart from IsRead.
type Alert struct {
	ID        string         `json:"id" bson:"id"`
	VehicleID string         `json:"vehicleId" bson:"vehicleid"`
	Type      AlertType      `json:"type" bson:"type"`
	Severity  Severity       `json:"severity" bson:"severity"`
	Message   string         `json:"message" bson:"message"`
	Data      map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	IsRead    bool           `json:"isRead" bson:"isread"`
}

func NewAlert(vehicleID string, typ AlertType, severity Severity, message string, data map[string]any) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		Type:      typ,
		Severity:  severity,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
