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
	"fleettrack/internal/shard"
)

// Geofence alert modes.
const (
	GeofenceModeTransition = "transition"
	GeofenceModePerFix     = "per-fix"
)

type PipelineOptions struct {
	DefaultSpeedLimitKmh float64
	GeofenceMode         string
}

// PositionService is the ingestion pipeline: every decoded fix goes through
// HandleLocation.
type PositionService interface {
	// HandleLocation resolves the device, persists the fix and then runs the
	// trip, speeding and geofence checks and publishes the position. Step
	// failures are joined into the returned error and never stop the other
	// steps. The position is nil when it could not be stored.
	HandleLocation(ctx context.Context, identity string, fix protocol.Fix, protocolName string) (*model.Position, error)
	HandleAlarm(ctx context.Context, identity string, alarm *protocol.AlarmPacket, protocolName string) (*model.Alert, error)
	// Touch records that the device was heard from.
	Touch(ctx context.Context, identity string) error
	GetVehiclePositions(ctx context.Context, vehicleID string, from, to time.Time) ([]*model.Position, error)
	GetLatestPosition(ctx context.Context, vehicleID string) (*model.Position, error)
}

type positionService struct {
	positionRepo repository.PositionRepository
	vehicleRepo  repository.VehicleRepository
	devices      DeviceService
	trips        TripService
	alerts       AlertService
	geofences    GeofenceService
	publisher    events.Publisher
	opts         PipelineOptions

	// Per-vehicle serialization of trip and membership state, and the
	// timestamp of the newest fix each vehicle's engines have seen.
	locks   *shard.Locker
	lastFix *shard.Map[time.Time]
	logger  *log.Entry
}

func NewPositionService(positionRepo repository.PositionRepository, vehicleRepo repository.VehicleRepository,
	devices DeviceService, trips TripService, alerts AlertService, geofences GeofenceService,
	publisher events.Publisher, opts PipelineOptions, logger *log.Entry) PositionService {
	if opts.DefaultSpeedLimitKmh <= 0 {
		opts.DefaultSpeedLimitKmh = 120
	}
	if opts.GeofenceMode == "" {
		opts.GeofenceMode = GeofenceModeTransition
	}
	return &positionService{
		positionRepo: positionRepo,
		vehicleRepo:  vehicleRepo,
		devices:      devices,
		trips:        trips,
		alerts:       alerts,
		geofences:    geofences,
		publisher:    publisher,
		opts:         opts,
		locks:        shard.NewLocker(shard.DefaultShards),
		lastFix:      shard.NewMap[time.Time](shard.DefaultShards),
		logger:       logger.WithField("component", "pipeline"),
	}
}

func (s *positionService) resolve(ctx context.Context, identity string) (*Resolved, error) {
	resolved, err := s.devices.Resolve(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUnknownDevice) || errors.Is(err, ErrUnassignedDevice) {
			metrics.UnknownDevices.Add(1)
			s.logger.WithField("device", identity).WithError(err).Warn("discarding data from unresolved device")
		}
		return nil, err
	}
	return resolved, nil
}

func (s *positionService) HandleLocation(ctx context.Context, identity string, fix protocol.Fix, protocolName string) (*model.Position, error) {
	resolved, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, resolved, fix, protocolName)
}

func (s *positionService) ingest(ctx context.Context, resolved *Resolved, fix protocol.Fix, protocolName string) (*model.Position, error) {
	vehicle := resolved.Vehicle
	position := model.NewPosition(vehicle.ID, resolved.Device.ID, fix.Latitude, fix.Longitude)
	position.Timestamp = fix.Timestamp.UTC()
	position.Speed = fix.SpeedKmh
	position.Course = fix.CourseDeg
	position.Satellites = fix.Satellites
	position.Valid = fix.GPSValid
	position.Protocol = protocolName

	logger := s.logger.WithFields(log.Fields{"device": resolved.Device.UniqueID, "vehicle_id": vehicle.ID})

	stored, errs := s.process(ctx, vehicle, position, logger)

	if err := s.vehicleRepo.TouchConnection(ctx, vehicle.ID, position.ReceivedAt); err != nil {
		errs = append(errs, fmt.Errorf("touch vehicle: %w", err))
	}
	if stored {
		publish(ctx, s.publisher, logger, events.TopicPositions, vehicle.ID, position)
	}

	for _, e := range errs {
		logger.WithError(e).Error("pipeline step failed")
	}
	if !stored {
		return nil, errors.Join(errs...)
	}
	return position, errors.Join(errs...)
}

// process runs the steps that need the vehicle lock and reports whether the
// fix was stored. The trip engine re-reads stored fixes, so it only runs for
// a stored fix; the speeding and geofence checks run either way.
func (s *positionService) process(ctx context.Context, vehicle *model.Vehicle, position *model.Position, logger *log.Entry) (stored bool, errs []error) {
	unlock := s.locks.Lock(vehicle.ID)
	defer unlock()

	last, seen := s.lastFix.Get(vehicle.ID)
	if !seen {
		latest, err := s.positionRepo.FindLatest(ctx, vehicle.ID)
		switch {
		case err != nil:
			logger.WithError(err).Warn("latest position unavailable, stale check skipped")
		case latest != nil:
			last, seen = latest.Timestamp, true
		}
	}

	if err := s.positionRepo.Insert(ctx, position); err != nil {
		errs = append(errs, fmt.Errorf("insert position: %w", err))
	} else {
		stored = true
		metrics.PositionsIngested.Add(1)
	}

	stale := seen && position.Timestamp.Before(last)
	if stale {
		metrics.PositionsStale.Add(1)
		logger.WithFields(log.Fields{"timestamp": position.Timestamp, "last": last}).Debug("stale fix, engines skipped")
	} else {
		s.lastFix.Swap(vehicle.ID, position.Timestamp)
		if stored {
			if _, err := s.trips.Process(ctx, position); err != nil {
				errs = append(errs, fmt.Errorf("trip engine: %w", err))
			}
		}
	}

	if _, err := s.alerts.CheckSpeeding(ctx, vehicle, position, vehicle.SpeedLimit(s.opts.DefaultSpeedLimitKmh)); err != nil {
		errs = append(errs, fmt.Errorf("speeding check: %w", err))
	}

	if !stale {
		if err := s.checkGeofences(ctx, vehicle, position); err != nil {
			errs = append(errs, fmt.Errorf("geofence check: %w", err))
		}
	}
	return stored, errs
}

func (s *positionService) checkGeofences(ctx context.Context, vehicle *model.Vehicle, position *model.Position) error {
	if s.opts.GeofenceMode == GeofenceModePerFix {
		_, err := s.alerts.CheckGeofence(ctx, vehicle, position)
		return err
	}
	transitions, err := s.geofences.Evaluate(ctx, vehicle, position.Point())
	if len(transitions) > 0 {
		if _, aerr := s.alerts.GeofenceTransitions(ctx, vehicle, position, transitions); aerr != nil {
			err = errors.Join(err, aerr)
		}
	}
	return err
}

func (s *positionService) HandleAlarm(ctx context.Context, identity string, alarm *protocol.AlarmPacket, protocolName string) (*model.Alert, error) {
	resolved, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	var (
		position *model.Position
		errs     []error
	)
	if alarm.Fix != nil {
		position, err = s.ingest(ctx, resolved, *alarm.Fix, protocolName)
		if err != nil {
			errs = append(errs, err)
		}
	}

	alert, err := s.alerts.DeviceAlarm(ctx, resolved.Vehicle, alarm)
	if err != nil {
		errs = append(errs, fmt.Errorf("device alarm: %w", err))
	}
	publish(ctx, s.publisher, s.logger, events.TopicDeviceAlarms, resolved.Vehicle.ID, AlarmEvent{
		VehicleID: resolved.Vehicle.ID,
		DeviceID:  identity,
		Code:      int(alarm.Code),
		Name:      alarm.Name,
		Position:  position,
	})
	return alert, errors.Join(errs...)
}

func (s *positionService) Touch(ctx context.Context, identity string) error {
	resolved, err := s.resolve(ctx, identity)
	if err != nil {
		return err
	}
	return s.vehicleRepo.TouchConnection(ctx, resolved.Vehicle.ID, time.Now().UTC())
}

func (s *positionService) GetVehiclePositions(ctx context.Context, vehicleID string, from, to time.Time) ([]*model.Position, error) {
	return s.positionRepo.QueryRange(ctx, vehicleID, from, to)
}

func (s *positionService) GetLatestPosition(ctx context.Context, vehicleID string) (*model.Position, error) {
	return s.positionRepo.FindLatest(ctx, vehicleID)
}
