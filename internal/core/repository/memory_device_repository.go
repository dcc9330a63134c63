package repository

import (
	"context"
	"fmt"
	"sync"

	"fleettrack/internal/core/model"
)

type inMemoryDeviceRepository struct {
	devices map[string]*model.Device
	mutex   sync.RWMutex
}

func NewInMemoryDeviceRepository() DeviceRepository {
	return &inMemoryDeviceRepository{
		devices: make(map[string]*model.Device),
	}
}

func (r *inMemoryDeviceRepository) Create(_ context.Context, device *model.Device) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.devices[device.ID]; exists {
		return fmt.Errorf("device with ID %s already exists", device.ID)
	}
	for _, d := range r.devices {
		if d.UniqueID == device.UniqueID {
			return fmt.Errorf("device with unique ID %s already exists", device.UniqueID)
		}
	}

	d := *device
	r.devices[device.ID] = &d
	return nil
}

func (r *inMemoryDeviceRepository) Update(_ context.Context, device *model.Device) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.devices[device.ID]; !exists {
		return fmt.Errorf("device %s: %w", device.ID, ErrNotFound)
	}

	d := *device
	r.devices[device.ID] = &d
	return nil
}

func (r *inMemoryDeviceRepository) FindByID(_ context.Context, id string) (*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if device, exists := r.devices[id]; exists {
		d := *device
		return &d, nil
	}
	return nil, nil
}

func (r *inMemoryDeviceRepository) FindByUniqueID(_ context.Context, uniqueID string) (*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, device := range r.devices {
		if device.UniqueID == uniqueID {
			d := *device
			return &d, nil
		}
	}
	return nil, nil
}

func (r *inMemoryDeviceRepository) FindAll(_ context.Context) ([]*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	devices := make([]*model.Device, 0, len(r.devices))
	for _, device := range r.devices {
		d := *device
		devices = append(devices, &d)
	}
	return devices, nil
}
