package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	DeviceStatusActive   = "active"
	DeviceStatusInactive = "inactive"
)

// Device is a registered tracker. UniqueID is the identity the terminal
// reports on the wire; VehicleID is empty while the device is unassigned.
type Device struct {
	ID             string    `json:"id" bson:"id"`
	Name           string    `json:"name" bson:"name"`
	UniqueID       string    `json:"uniqueId" bson:"uniqueid"`
	Status         string    `json:"status" bson:"status"`
	Protocol       string    `json:"protocol" bson:"protocol"`
	VehicleID      string    `json:"vehicleId,omitempty" bson:"vehicleid,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty" bson:"organizationid,omitempty"`
	LastUpdate     time.Time `json:"lastUpdate" bson:"lastupdate"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdat"`
}

func NewDevice(name, uniqueID string) *Device {
	now := time.Now().UTC()
	return &Device{
		ID:         uuid.NewString(),
		Name:       name,
		UniqueID:   uniqueID,
		Status:     DeviceStatusInactive,
		LastUpdate: now,
		CreatedAt:  now,
	}
}

// Assign links the device to a vehicle of the given organization.
func (d *Device) Assign(vehicle *Vehicle) {
	d.VehicleID = vehicle.ID
	d.OrganizationID = vehicle.OrganizationID
	vehicle.DeviceID = d.ID
}
