package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/core/geo"
	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/events"
	"fleettrack/internal/metrics"
)

const (
	DefaultMovementThresholdKmh = 2.0

	TripStarted = "trip.started"
	TripEnded   = "trip.ended"
)

// TripService is the per-vehicle Idle/Active state machine. The open trip in
// the store is the state.
type TripService interface {
	// Process feeds one persisted fix to the state machine and returns the
	// trip it opened or closed, if any. Callers serialize calls per vehicle.
	Process(ctx context.Context, position *model.Position) (*TripEvent, error)
	GetVehicleTrips(ctx context.Context, vehicleID string) ([]*model.Trip, error)
}

type tripService struct {
	tripRepo     repository.TripRepository
	positionRepo repository.PositionRepository
	publisher    events.Publisher
	threshold    float64
	logger       *log.Entry
}

func NewTripService(tripRepo repository.TripRepository, positionRepo repository.PositionRepository,
	publisher events.Publisher, thresholdKmh float64, logger *log.Entry) TripService {
	if thresholdKmh <= 0 {
		thresholdKmh = DefaultMovementThresholdKmh
	}
	return &tripService{
		tripRepo:     tripRepo,
		positionRepo: positionRepo,
		publisher:    publisher,
		threshold:    thresholdKmh,
		logger:       logger.WithField("component", "trips"),
	}
}

func (s *tripService) Process(ctx context.Context, position *model.Position) (*TripEvent, error) {
	open, err := s.tripRepo.FindOpen(ctx, position.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("find open trip: %w", err)
	}

	moving := position.Speed > s.threshold
	switch {
	case moving && open == nil:
		trip := model.NewTrip(position.VehicleID, position.Timestamp, position.Point())
		if err := s.tripRepo.Create(ctx, trip); err != nil {
			return nil, fmt.Errorf("create trip: %w", err)
		}
		metrics.TripsOpened.Add(1)
		s.logger.WithFields(log.Fields{"vehicle_id": trip.VehicleID, "trip_id": trip.ID}).Info("trip started")
		ev := &TripEvent{Event: TripStarted, Trip: trip}
		publish(ctx, s.publisher, s.logger, events.TopicTrips, trip.VehicleID, ev)
		return ev, nil

	case !moving && open != nil:
		fixes, err := s.positionRepo.QueryRange(ctx, position.VehicleID, open.StartTime, position.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("load trip positions: %w", err)
		}
		open.Close(position.Timestamp, position.Point(), ComputeTripStats(fixes))
		if err := s.tripRepo.Update(ctx, open); err != nil {
			return nil, fmt.Errorf("close trip: %w", err)
		}
		metrics.TripsClosed.Add(1)
		s.logger.WithFields(log.Fields{
			"vehicle_id":  open.VehicleID,
			"trip_id":     open.ID,
			"distance_km": open.DistanceKm,
		}).Info("trip ended")
		ev := &TripEvent{Event: TripEnded, Trip: open}
		publish(ctx, s.publisher, s.logger, events.TopicTrips, open.VehicleID, ev)
		return ev, nil
	}
	return nil, nil
}

func (s *tripService) GetVehicleTrips(ctx context.Context, vehicleID string) ([]*model.Trip, error) {
	return s.tripRepo.FindByVehicle(ctx, vehicleID)
}

// ComputeTripStats derives trip figures from fixes ordered by time. Average
// speed is the mean of the reported speeds, not distance over time. Fewer than
// two fixes yield zero stats.
func ComputeTripStats(fixes []*model.Position) model.TripStats {
	if len(fixes) < 2 {
		return model.TripStats{}
	}
	var stats model.TripStats
	var speedSum float64
	points := make([]model.Point, len(fixes))
	for i, f := range fixes {
		points[i] = f.Point()
		speedSum += f.Speed
		if f.Speed > stats.MaxSpeedKmh {
			stats.MaxSpeedKmh = f.Speed
		}
	}
	stats.DistanceKm = geo.PathLength(points)
	stats.AvgSpeedKmh = speedSum / float64(len(fixes))
	stats.DurationSec = int64(fixes[len(fixes)-1].Timestamp.Sub(fixes[0].Timestamp) / time.Second)
	return stats
}
