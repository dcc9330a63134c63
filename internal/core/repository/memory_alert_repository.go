package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fleettrack/internal/core/model"
)

type inMemoryAlertRepository struct {
	alerts map[string]*model.Alert
	mutex  sync.RWMutex
}

func NewInMemoryAlertRepository() AlertRepository {
	return &inMemoryAlertRepository{
		alerts: make(map[string]*model.Alert),
	}
}

func (r *inMemoryAlertRepository) Insert(_ context.Context, alert *model.Alert) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.alerts[alert.ID]; exists {
		return fmt.Errorf("alert with ID %s already exists", alert.ID)
	}
	a := *alert
	r.alerts[alert.ID] = &a
	return nil
}

func (r *inMemoryAlertRepository) FindByID(_ context.Context, id string) (*model.Alert, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if alert, exists := r.alerts[id]; exists {
		a := *alert
		return &a, nil
	}
	return nil, nil
}

func (r *inMemoryAlertRepository) FindByVehicle(_ context.Context, vehicleID string) ([]*model.Alert, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var alerts []*model.Alert
	for _, alert := range r.alerts {
		if alert.VehicleID == vehicleID {
			a := *alert
			alerts = append(alerts, &a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.After(alerts[j].Timestamp) })
	return alerts, nil
}

func (r *inMemoryAlertRepository) MarkRead(_ context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	alert, exists := r.alerts[id]
	if !exists {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	alert.IsRead = true
	return nil
}
