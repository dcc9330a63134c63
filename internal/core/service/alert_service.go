package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/events"
	"fleettrack/internal/metrics"
	"fleettrack/internal/protocol"
)

const DefaultOfflineAfter = 30 * time.Minute

type AlertService interface {
	CheckSpeeding(ctx context.Context, vehicle *model.Vehicle, position *model.Position, limitKmh float64) (*model.Alert, error)
	// CheckGeofence raises one alert per geofence containing the fix, on
	// every fix.
	CheckGeofence(ctx context.Context, vehicle *model.Vehicle, position *model.Position) ([]*model.Alert, error)
	// GeofenceTransitions raises one alert per enter or exit transition.
	GeofenceTransitions(ctx context.Context, vehicle *model.Vehicle, position *model.Position, transitions []Transition) ([]*model.Alert, error)
	CheckOffline(ctx context.Context, vehicle *model.Vehicle, now time.Time) (*model.Alert, error)
	CheckOfflineAll(ctx context.Context, now time.Time) ([]*model.Alert, error)
	DeviceAlarm(ctx context.Context, vehicle *model.Vehicle, alarm *protocol.AlarmPacket) (*model.Alert, error)
	MarkRead(ctx context.Context, id string) error
	GetVehicleAlerts(ctx context.Context, vehicleID string) ([]*model.Alert, error)
}

type alertService struct {
	alertRepo    repository.AlertRepository
	vehicleRepo  repository.VehicleRepository
	geofences    GeofenceService
	publisher    events.Publisher
	offlineAfter time.Duration
	logger       *log.Entry
}

func NewAlertService(alertRepo repository.AlertRepository, vehicleRepo repository.VehicleRepository,
	geofences GeofenceService, publisher events.Publisher, offlineAfter time.Duration, logger *log.Entry) AlertService {
	if offlineAfter <= 0 {
		offlineAfter = DefaultOfflineAfter
	}
	return &alertService{
		alertRepo:    alertRepo,
		vehicleRepo:  vehicleRepo,
		geofences:    geofences,
		publisher:    publisher,
		offlineAfter: offlineAfter,
		logger:       logger.WithField("component", "alerts"),
	}
}

// raise stores the alert and then announces it.
func (s *alertService) raise(ctx context.Context, alert *model.Alert) error {
	if err := s.alertRepo.Insert(ctx, alert); err != nil {
		return fmt.Errorf("insert %s alert: %w", alert.Type, err)
	}
	metrics.AlertsCreated.Add(1)
	s.logger.WithFields(log.Fields{
		"vehicle_id": alert.VehicleID,
		"type":       alert.Type,
		"severity":   alert.Severity,
	}).Info(alert.Message)
	publish(ctx, s.publisher, s.logger, events.TopicAlerts, alert.VehicleID, alert)
	return nil
}

func (s *alertService) CheckSpeeding(ctx context.Context, vehicle *model.Vehicle, position *model.Position, limitKmh float64) (*model.Alert, error) {
	if position.Speed <= limitKmh {
		return nil, nil
	}
	alert := model.NewAlert(vehicle.ID, model.AlertSpeeding, model.SeverityHigh,
		fmt.Sprintf("Vehicle %s exceeded speed limit: %.1f km/h (limit %.0f km/h)", vehicle.Name, position.Speed, limitKmh),
		map[string]any{
			"speed":     position.Speed,
			"limit":     limitKmh,
			"latitude":  position.Latitude,
			"longitude": position.Longitude,
		})
	if err := s.raise(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *alertService) CheckGeofence(ctx context.Context, vehicle *model.Vehicle, position *model.Position) ([]*model.Alert, error) {
	inside, err := s.geofences.Containing(ctx, vehicle, position.Point())
	if err != nil {
		return nil, err
	}
	var (
		alerts []*model.Alert
		errs   []error
	)
	for _, g := range inside {
		alert := model.NewAlert(vehicle.ID, model.AlertGeofence, model.SeverityMedium,
			fmt.Sprintf("Vehicle %s is inside geofence %s", vehicle.Name, g.Name),
			geofenceData(g, "inside", position))
		if err := s.raise(ctx, alert); err != nil {
			errs = append(errs, err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, errors.Join(errs...)
}

func (s *alertService) GeofenceTransitions(ctx context.Context, vehicle *model.Vehicle, position *model.Position, transitions []Transition) ([]*model.Alert, error) {
	var (
		alerts []*model.Alert
		errs   []error
	)
	for _, t := range transitions {
		verb := "entered"
		if t.Kind == TransitionExit {
			verb = "exited"
		}
		alert := model.NewAlert(vehicle.ID, model.AlertGeofence, model.SeverityMedium,
			fmt.Sprintf("Vehicle %s %s geofence %s", vehicle.Name, verb, t.Geofence.Name),
			geofenceData(t.Geofence, string(t.Kind), position))
		if err := s.raise(ctx, alert); err != nil {
			errs = append(errs, err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, errors.Join(errs...)
}

func geofenceData(g *model.Geofence, event string, position *model.Position) map[string]any {
	return map[string]any{
		"geofenceId":   g.ID,
		"geofenceName": g.Name,
		"event":        event,
		"latitude":     position.Latitude,
		"longitude":    position.Longitude,
	}
}

func (s *alertService) CheckOffline(ctx context.Context, vehicle *model.Vehicle, now time.Time) (*model.Alert, error) {
	if vehicle.LastConnection.IsZero() {
		return nil, nil
	}
	since := now.Sub(vehicle.LastConnection)
	if since <= s.offlineAfter {
		return nil, nil
	}
	alert := model.NewAlert(vehicle.ID, model.AlertOffline, model.SeverityMedium,
		fmt.Sprintf("Vehicle %s has been offline for %d minutes", vehicle.Name, int(since.Minutes())),
		map[string]any{
			"lastConnection": vehicle.LastConnection.UTC(),
			"offlineMinutes": int(since.Minutes()),
		})
	if err := s.raise(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *alertService) CheckOfflineAll(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	vehicles, err := s.vehicleRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}
	var (
		alerts []*model.Alert
		errs   []error
	)
	for _, v := range vehicles {
		alert, err := s.CheckOffline(ctx, v, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if alert != nil {
			alerts = append(alerts, alert)
		}
	}
	return alerts, errors.Join(errs...)
}

// DeviceAlarm records an alarm raised by the terminal itself.
func (s *alertService) DeviceAlarm(ctx context.Context, vehicle *model.Vehicle, alarm *protocol.AlarmPacket) (*model.Alert, error) {
	severity := model.SeverityHigh
	switch alarm.Name {
	case protocol.AlarmSOS, protocol.AlarmPowerCut:
		severity = model.SeverityCritical
	case protocol.AlarmLowBattery:
		severity = model.SeverityMedium
	}
	data := map[string]any{"code": int(alarm.Code), "alarm": alarm.Name}
	if alarm.Fix != nil {
		data["latitude"] = alarm.Fix.Latitude
		data["longitude"] = alarm.Fix.Longitude
	}
	alert := model.NewAlert(vehicle.ID, model.AlertDeviceAlarm, severity,
		fmt.Sprintf("Vehicle %s reported %s alarm", vehicle.Name, alarm.Name), data)
	if err := s.raise(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *alertService) MarkRead(ctx context.Context, id string) error {
	err := s.alertRepo.MarkRead(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	return err
}

func (s *alertService) GetVehicleAlerts(ctx context.Context, vehicleID string) ([]*model.Alert, error) {
	return s.alertRepo.FindByVehicle(ctx, vehicleID)
}
