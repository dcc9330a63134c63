package handler

import (
	"encoding/json"
	"net/http"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/service"
)

type DeviceHandler struct {
	deviceService service.DeviceService
}

func NewDeviceHandler(deviceService service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

type createDeviceRequest struct {
	Name           string  `json:"name"`
	UniqueID       string  `json:"uniqueId"`
	VehicleName    string  `json:"vehicleName"`
	OrganizationID string  `json:"organizationId,omitempty"`
	SpeedLimitKmh  float64 `json:"speedLimitKmh,omitempty"`
}

// Create registers a tracker together with the vehicle it is mounted in.
func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UniqueID == "" {
		http.Error(w, "Unique ID required", http.StatusBadRequest)
		return
	}
	if req.VehicleName == "" {
		req.VehicleName = req.Name
	}

	device := model.NewDevice(req.Name, req.UniqueID)
	vehicle := model.NewVehicle(req.VehicleName, req.OrganizationID)
	vehicle.SpeedLimitKmh = req.SpeedLimitKmh
	if err := h.deviceService.Register(r.Context(), device, vehicle); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, service.Resolved{Device: device, Vehicle: vehicle})
}

func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	uniqueID := r.URL.Query().Get("uniqueId")
	if uniqueID == "" {
		http.Error(w, "Unique ID required", http.StatusBadRequest)
		return
	}
	resolved, err := h.deviceService.Resolve(r.Context(), uniqueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
