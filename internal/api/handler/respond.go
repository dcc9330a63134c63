package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleettrack/internal/core/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnknownDevice),
		errors.Is(err, service.ErrCommandNotFound),
		errors.Is(err, service.ErrAlertNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidCommand),
		errors.Is(err, service.ErrInvalidGeofence),
		errors.Is(err, service.ErrUnassignedDevice):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidTransition):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
