package model

import (
	"time"

	"github.com/google/uuid"
)

type Vehicle struct {
	ID             string `json:"id" bson:"id"`
	Name           string `json:"name" bson:"name"`
	Plate          string `json:"plate,omitempty" bson:"plate,omitempty"`
	DeviceID       string `json:"deviceId,omitempty" bson:"deviceid,omitempty"`
	OrganizationID string `json:"organizationId,omitempty" bson:"organizationid,omitempty"`
	// SpeedLimitKmh overrides the configured default when positive.
	SpeedLimitKmh  float64   `json:"speedLimitKmh,omitempty" bson:"speedlimitkmh,omitempty"`
	LastConnection time.Time `json:"lastConnection" bson:"lastconnection"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdat"`
}

func NewVehicle(name, organizationID string) *Vehicle {
	return &Vehicle{
		ID:             uuid.NewString(),
		Name:           name,
		OrganizationID: organizationID,
		CreatedAt:      time.Now().UTC(),
	}
}

// SpeedLimit returns the vehicle's own limit, or fallback when none is set.
func (v *Vehicle) SpeedLimit(fallback float64) float64 {
	if v.SpeedLimitKmh > 0 {
		return v.SpeedLimitKmh
	}
	return fallback
}
