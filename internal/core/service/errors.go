package service

import (
	"errors"

	"fleettrack/internal/core/model"
)

var (
	ErrUnknownDevice     = errors.New("unknown device")
	ErrUnassignedDevice  = errors.New("device is not assigned to a vehicle")
	ErrCommandNotFound   = errors.New("command not found")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInvalidTransition = model.ErrInvalidTransition
	ErrInvalidGeofence   = model.ErrInvalidGeofence
)
