package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleettrack/internal/core/model"
)

type inMemoryVehicleRepository struct {
	vehicles map[string]*model.Vehicle
	mutex    sync.RWMutex
}

func NewInMemoryVehicleRepository() VehicleRepository {
	return &inMemoryVehicleRepository{
		vehicles: make(map[string]*model.Vehicle),
	}
}

func (r *inMemoryVehicleRepository) Create(_ context.Context, vehicle *model.Vehicle) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.vehicles[vehicle.ID]; exists {
		return fmt.Errorf("vehicle with ID %s already exists", vehicle.ID)
	}
	v := *vehicle
	r.vehicles[vehicle.ID] = &v
	return nil
}

func (r *inMemoryVehicleRepository) Update(_ context.Context, vehicle *model.Vehicle) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.vehicles[vehicle.ID]; !exists {
		return fmt.Errorf("vehicle %s: %w", vehicle.ID, ErrNotFound)
	}
	v := *vehicle
	r.vehicles[vehicle.ID] = &v
	return nil
}

func (r *inMemoryVehicleRepository) FindByID(_ context.Context, id string) (*model.Vehicle, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if vehicle, exists := r.vehicles[id]; exists {
		v := *vehicle
		return &v, nil
	}
	return nil, nil
}

func (r *inMemoryVehicleRepository) FindAll(_ context.Context) ([]*model.Vehicle, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	vehicles := make([]*model.Vehicle, 0, len(r.vehicles))
	for _, vehicle := range r.vehicles {
		v := *vehicle
		vehicles = append(vehicles, &v)
	}
	return vehicles, nil
}

func (r *inMemoryVehicleRepository) TouchConnection(_ context.Context, id string, at time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	vehicle, exists := r.vehicles[id]
	if !exists {
		return fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	if at.After(vehicle.LastConnection) {
		vehicle.LastConnection = at
	}
	return nil
}
