package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fleettrack/internal/core/model"
)

type inMemoryTripRepository struct {
	trips map[string]*model.Trip
	mutex sync.RWMutex
}

func NewInMemoryTripRepository() TripRepository {
	return &inMemoryTripRepository{
		trips: make(map[string]*model.Trip),
	}
}

func cloneTrip(t *model.Trip) *model.Trip {
	c := *t
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	if t.EndPos != nil {
		pos := *t.EndPos
		c.EndPos = &pos
	}
	return &c
}

func (r *inMemoryTripRepository) Create(_ context.Context, trip *model.Trip) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.trips[trip.ID]; exists {
		return fmt.Errorf("trip with ID %s already exists", trip.ID)
	}
	r.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (r *inMemoryTripRepository) Update(_ context.Context, trip *model.Trip) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.trips[trip.ID]; !exists {
		return fmt.Errorf("trip %s: %w", trip.ID, ErrNotFound)
	}
	r.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (r *inMemoryTripRepository) FindOpen(_ context.Context, vehicleID string) (*model.Trip, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, trip := range r.trips {
		if trip.VehicleID == vehicleID && trip.IsOpen() {
			return cloneTrip(trip), nil
		}
	}
	return nil, nil
}

func (r *inMemoryTripRepository) FindByVehicle(_ context.Context, vehicleID string) ([]*model.Trip, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var trips []*model.Trip
	for _, trip := range r.trips {
		if trip.VehicleID == vehicleID {
			trips = append(trips, cloneTrip(trip))
		}
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].StartTime.Before(trips[j].StartTime) })
	return trips, nil
}
