package router

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/api/handler"
	"fleettrack/internal/api/middleware"
	"fleettrack/internal/core/service"
	"fleettrack/internal/metrics"
)

type Services struct {
	Devices   service.DeviceService
	Positions service.PositionService
	Trips     service.TripService
	Alerts    service.AlertService
	Geofences service.GeofenceService
	Commands  service.CommandService
	Sessions  service.SessionLookup
	// Presence is optional; it answers for devices connected to other
	// processes.
	Presence handler.PresenceChecker
}

func NewRouter(svc Services, logger *log.Entry) http.Handler {
	deviceHandler := handler.NewDeviceHandler(svc.Devices)
	positionHandler := handler.NewPositionHandler(svc.Positions, svc.Trips)
	alertHandler := handler.NewAlertHandler(svc.Alerts)
	geofenceHandler := handler.NewGeofenceHandler(svc.Geofences)
	commandHandler := handler.NewCommandHandler(svc.Commands)
	sessionHandler := handler.NewSessionHandler(svc.Sessions, svc.Presence)

	logger = logger.WithField("component", "http")
	mux := http.NewServeMux()

	withMiddleware := func(h http.Handler) http.Handler {
		return middleware.RecoveryMiddleware(logger)(
			middleware.CORSMiddleware(
				middleware.LoggingMiddleware(logger)(h),
			),
		)
	}
	route := func(path, method string, fn http.HandlerFunc) {
		mux.Handle(path, withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			fn(w, r)
		})))
	}

	route("/health", http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	route("/metrics", http.MethodGet, metrics.HandleMetrics)

	route("/api/devices", http.MethodPost, deviceHandler.Create)
	route("/api/devices/get", http.MethodGet, deviceHandler.GetDevice)

	route("/api/positions/list", http.MethodGet, positionHandler.GetPositions)
	route("/api/positions/latest", http.MethodGet, positionHandler.GetLatestPosition)
	route("/api/trips/list", http.MethodGet, positionHandler.GetTrips)

	route("/api/commands", http.MethodPost, commandHandler.Create)
	route("/api/commands/get", http.MethodGet, commandHandler.Get)
	route("/api/commands/response", http.MethodPost, commandHandler.Response)

	route("/api/sessions/get", http.MethodGet, sessionHandler.Get)

	route("/api/alerts/list", http.MethodGet, alertHandler.List)
	route("/api/alerts/offline-check", http.MethodPost, alertHandler.OfflineCheck)
	route("/api/alerts/read", http.MethodPost, alertHandler.MarkRead)

	route("/api/geofences", http.MethodPost, geofenceHandler.Create)
	route("/api/geofences/list", http.MethodGet, geofenceHandler.List)

	return mux
}
