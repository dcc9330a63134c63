package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/cache"
	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
)

// Resolved is a device together with the vehicle it is mounted in.
type Resolved struct {
	Device  *model.Device  `json:"device"`
	Vehicle *model.Vehicle `json:"vehicle"`
}

type DeviceService interface {
	// Resolve maps a wire identity to its device and vehicle. It fails with
	// ErrUnknownDevice or ErrUnassignedDevice.
	Resolve(ctx context.Context, identity string) (*Resolved, error)
	// Register stores a device and its vehicle and links them.
	Register(ctx context.Context, device *model.Device, vehicle *model.Vehicle) error
	Invalidate(ctx context.Context, identity string)
	GetVehicle(ctx context.Context, id string) (*model.Vehicle, error)
}

type deviceService struct {
	deviceRepo  repository.DeviceRepository
	vehicleRepo repository.VehicleRepository
	cache       *cache.Cache
	ttl         time.Duration
	logger      *log.Entry
}

func NewDeviceService(deviceRepo repository.DeviceRepository, vehicleRepo repository.VehicleRepository,
	c *cache.Cache, ttl time.Duration, logger *log.Entry) DeviceService {
	return &deviceService{
		deviceRepo:  deviceRepo,
		vehicleRepo: vehicleRepo,
		cache:       c,
		ttl:         ttl,
		logger:      logger.WithField("component", "devices"),
	}
}

func resolveKey(identity string) string {
	return "device:resolve:" + identity
}

func (s *deviceService) Resolve(ctx context.Context, identity string) (*Resolved, error) {
	if identity == "" {
		return nil, ErrUnknownDevice
	}

	var cached Resolved
	err := s.cache.Get(ctx, resolveKey(identity), &cached)
	if err == nil && cached.Device != nil && cached.Vehicle != nil {
		return &cached, nil
	}
	if err != nil && !cache.IsMiss(err) {
		s.logger.WithError(err).WithField("device", identity).Warn("device cache read failed")
	}

	device, err := s.deviceRepo.FindByUniqueID(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("find device %s: %w", identity, err)
	}
	if device == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, identity)
	}
	if device.VehicleID == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnassignedDevice, identity)
	}
	vehicle, err := s.vehicleRepo.FindByID(ctx, device.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("find vehicle %s: %w", device.VehicleID, err)
	}
	if vehicle == nil {
		return nil, fmt.Errorf("%w: vehicle %s missing", ErrUnassignedDevice, device.VehicleID)
	}

	resolved := &Resolved{Device: device, Vehicle: vehicle}
	if err := s.cache.Set(ctx, resolveKey(identity), resolved, s.ttl); err != nil {
		s.logger.WithError(err).WithField("device", identity).Warn("device cache write failed")
	}
	return resolved, nil
}

func (s *deviceService) Register(ctx context.Context, device *model.Device, vehicle *model.Vehicle) error {
	if device == nil || vehicle == nil || device.UniqueID == "" {
		return errors.New("invalid device data")
	}
	device.Assign(vehicle)
	if err := s.vehicleRepo.Create(ctx, vehicle); err != nil {
		return err
	}
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return err
	}
	s.Invalidate(ctx, device.UniqueID)
	return nil
}

func (s *deviceService) Invalidate(ctx context.Context, identity string) {
	if err := s.cache.Delete(ctx, resolveKey(identity)); err != nil {
		s.logger.WithError(err).WithField("device", identity).Warn("device cache delete failed")
	}
}

func (s *deviceService) GetVehicle(ctx context.Context, id string) (*model.Vehicle, error) {
	return s.vehicleRepo.FindByID(ctx, id)
}
