package service

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
)

const testIdentity = "123456789012345"

type published struct {
	topic   string
	key     string
	payload any
}

// recordingPublisher keeps every event in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, payload: payload})
	return nil
}

func (p *recordingPublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	devicesRepo  repository.DeviceRepository
	vehiclesRepo repository.VehicleRepository
	positions    repository.PositionRepository
	tripsRepo    repository.TripRepository
	geofenceRepo repository.GeofenceRepository
	alertsRepo   repository.AlertRepository

	devices   DeviceService
	trips     TripService
	alerts    AlertService
	geofences GeofenceService
	pipeline  PositionService
	pub       *recordingPublisher

	vehicle *model.Vehicle
	device  *model.Device
}

func testLogger() *log.Entry {
	logger, _ := test.NewNullLogger()
	return log.NewEntry(logger)
}

type harnessOption func(*harness, *PipelineOptions)

func withTripRepo(r repository.TripRepository) harnessOption {
	return func(h *harness, _ *PipelineOptions) { h.tripsRepo = r }
}

func withPositionRepo(r repository.PositionRepository) harnessOption {
	return func(h *harness, _ *PipelineOptions) { h.positions = r }
}

func withGeofenceMode(mode string) harnessOption {
	return func(_ *harness, o *PipelineOptions) { o.GeofenceMode = mode }
}

// newHarness wires the pipeline over in-memory repositories with one
// registered device mounted in one vehicle.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		devicesRepo:  repository.NewInMemoryDeviceRepository(),
		vehiclesRepo: repository.NewInMemoryVehicleRepository(),
		positions:    repository.NewInMemoryPositionRepository(),
		tripsRepo:    repository.NewInMemoryTripRepository(),
		geofenceRepo: repository.NewInMemoryGeofenceRepository(),
		alertsRepo:   repository.NewInMemoryAlertRepository(),
		pub:          &recordingPublisher{},
	}
	pipelineOpts := PipelineOptions{DefaultSpeedLimitKmh: 120}
	for _, o := range opts {
		o(h, &pipelineOpts)
	}

	logger := testLogger()
	h.devices = NewDeviceService(h.devicesRepo, h.vehiclesRepo, nil, time.Minute, logger)
	h.trips = NewTripService(h.tripsRepo, h.positions, h.pub, DefaultMovementThresholdKmh, logger)
	h.geofences = NewGeofenceService(h.geofenceRepo, NewMemoryMembershipStore(), logger)
	h.alerts = NewAlertService(h.alertsRepo, h.vehiclesRepo, h.geofences, h.pub, DefaultOfflineAfter, logger)
	h.pipeline = NewPositionService(h.positions, h.vehiclesRepo, h.devices, h.trips, h.alerts, h.geofences,
		h.pub, pipelineOpts, logger)

	h.vehicle = model.NewVehicle("Van 7", "org-1")
	h.device = model.NewDevice("GT06 tracker", testIdentity)
	require.NoError(t, h.devices.Register(context.Background(), h.device, h.vehicle))
	return h
}

func (h *harness) alertsOfType(t *testing.T, typ model.AlertType) []*model.Alert {
	t.Helper()
	all, err := h.alertsRepo.FindByVehicle(context.Background(), h.vehicle.ID)
	require.NoError(t, err)
	var out []*model.Alert
	for _, a := range all {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func (h *harness) openTrips(t *testing.T) []*model.Trip {
	t.Helper()
	trips, err := h.tripsRepo.FindByVehicle(context.Background(), h.vehicle.ID)
	require.NoError(t, err)
	var open []*model.Trip
	for _, tr := range trips {
		if tr.IsOpen() {
			open = append(open, tr)
		}
	}
	return open
}
