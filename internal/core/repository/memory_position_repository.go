package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleettrack/internal/core/model"
)

type inMemoryPositionRepository struct {
	positions map[string][]*model.Position // by vehicle
	mutex     sync.RWMutex
}

func NewInMemoryPositionRepository() PositionRepository {
	return &inMemoryPositionRepository{
		positions: make(map[string][]*model.Position),
	}
}

func (r *inMemoryPositionRepository) Insert(_ context.Context, position *model.Position) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p := *position
	list := r.positions[p.VehicleID]
	// Keep the slice ordered; late fixes are inserted in place.
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(p.Timestamp) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &p
	r.positions[p.VehicleID] = list
	return nil
}

func (r *inMemoryPositionRepository) QueryRange(_ context.Context, vehicleID string, from, to time.Time) ([]*model.Position, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Position
	for _, position := range r.positions[vehicleID] {
		if position.Timestamp.Before(from) || position.Timestamp.After(to) {
			continue
		}
		p := *position
		result = append(result, &p)
	}
	return result, nil
}

func (r *inMemoryPositionRepository) FindLatest(_ context.Context, vehicleID string) (*model.Position, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	list := r.positions[vehicleID]
	if len(list) == 0 {
		return nil, nil
	}
	p := *list[len(list)-1]
	return &p, nil
}
