package handler

import (
	"net/http"
	"time"

	"fleettrack/internal/core/service"
)

type AlertHandler struct {
	alertService service.AlertService
}

func NewAlertHandler(alertService service.AlertService) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
	}
}

// OfflineCheck is called by an external scheduler.
func (h *AlertHandler) OfflineCheck(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alertService.CheckOfflineAll(r.Context(), time.Now().UTC())
	if err != nil && len(alerts) == 0 {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": len(alerts), "alerts": alerts})
}

func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Alert ID required", http.StatusBadRequest)
		return
	}
	if err := h.alertService.MarkRead(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		http.Error(w, "Vehicle ID required", http.StatusBadRequest)
		return
	}
	alerts, err := h.alertService.GetVehicleAlerts(r.Context(), vehicleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
