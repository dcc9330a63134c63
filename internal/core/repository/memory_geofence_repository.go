package repository

import (
	"context"
	"fmt"
	"sync"

	"fleettrack/internal/core/model"
)

type inMemoryGeofenceRepository struct {
	geofences map[string]*model.Geofence
	mutex     sync.RWMutex
}

func NewInMemoryGeofenceRepository() GeofenceRepository {
	return &inMemoryGeofenceRepository{
		geofences: make(map[string]*model.Geofence),
	}
}

// Geofences are immutable once created, so stored pointers are shared.
func (r *inMemoryGeofenceRepository) Create(_ context.Context, geofence *model.Geofence) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.geofences[geofence.ID]; exists {
		return fmt.Errorf("geofence with ID %s already exists", geofence.ID)
	}
	r.geofences[geofence.ID] = geofence
	return nil
}

func (r *inMemoryGeofenceRepository) FindByID(_ context.Context, id string) (*model.Geofence, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.geofences[id], nil
}

func (r *inMemoryGeofenceRepository) FindByOrganization(_ context.Context, organizationID string) ([]*model.Geofence, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Geofence
	for _, g := range r.geofences {
		if g.OrganizationID == organizationID {
			result = append(result, g)
		}
	}
	return result, nil
}
