package handler

import (
	"encoding/json"
	"net/http"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/service"
)

type GeofenceHandler struct {
	geofenceService service.GeofenceService
}

func NewGeofenceHandler(geofenceService service.GeofenceService) *GeofenceHandler {
	return &GeofenceHandler{
		geofenceService: geofenceService,
	}
}

type createGeofenceRequest struct {
	Name           string        `json:"name"`
	OrganizationID string        `json:"organizationId"`
	VehicleIDs     []string      `json:"vehicleIds,omitempty"`
	Kind           string        `json:"kind"`
	Center         *model.Point  `json:"center,omitempty"`
	RadiusMeters   float64       `json:"radiusMeters,omitempty"`
	Vertices       []model.Point `json:"vertices,omitempty"`
	AlertOnEntry   *bool         `json:"alertOnEntry,omitempty"`
	AlertOnExit    *bool         `json:"alertOnExit,omitempty"`
}

func (h *GeofenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGeofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var g *model.Geofence
	switch model.GeofenceKind(req.Kind) {
	case model.GeofenceCircle:
		if req.Center == nil {
			http.Error(w, "Circle geofence needs a center", http.StatusBadRequest)
			return
		}
		g = model.NewCircleGeofence(req.Name, req.OrganizationID, *req.Center, req.RadiusMeters)
	case model.GeofencePolygon:
		g = model.NewPolygonGeofence(req.Name, req.OrganizationID, req.Vertices)
	default:
		http.Error(w, "Geofence kind must be circle or polygon", http.StatusBadRequest)
		return
	}
	g.VehicleIDs = req.VehicleIDs
	if req.AlertOnEntry != nil {
		g.AlertOnEntry = *req.AlertOnEntry
	}
	if req.AlertOnExit != nil {
		g.AlertOnExit = *req.AlertOnExit
	}

	if err := h.geofenceService.Create(r.Context(), g); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GeofenceHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organizationId")
	if orgID == "" {
		http.Error(w, "Organization ID required", http.StatusBadRequest)
		return
	}
	geofences, err := h.geofenceService.ListByOrganization(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, geofences)
}
