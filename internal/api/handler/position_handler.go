package handler

import (
	"net/http"
	"time"

	"fleettrack/internal/core/service"
)

type PositionHandler struct {
	positionService service.PositionService
	tripService     service.TripService
}

func NewPositionHandler(positionService service.PositionService, tripService service.TripService) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
		tripService:     tripService,
	}
}

// GetPositions lists a vehicle's fixes between from and to (RFC 3339). The
// window defaults to the last 24 hours.
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vehicleID := q.Get("vehicleId")
	if vehicleID == "" {
		http.Error(w, "Vehicle ID required", http.StatusBadRequest)
		return
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			http.Error(w, "Invalid from timestamp", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			http.Error(w, "Invalid to timestamp", http.StatusBadRequest)
			return
		}
	}

	positions, err := h.positionService.GetVehiclePositions(r.Context(), vehicleID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *PositionHandler) GetLatestPosition(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		http.Error(w, "Vehicle ID required", http.StatusBadRequest)
		return
	}

	position, err := h.positionService.GetLatestPosition(r.Context(), vehicleID)
	if err != nil {
		writeError(w, err)
		return
	}
	if position == nil {
		http.Error(w, "No position found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (h *PositionHandler) GetTrips(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		http.Error(w, "Vehicle ID required", http.StatusBadRequest)
		return
	}
	trips, err := h.tripService.GetVehicleTrips(r.Context(), vehicleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}
