package service

import (
	"context"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/core/geo"
	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/shard"
)

type TransitionKind string

const (
	TransitionEnter TransitionKind = "enter"
	TransitionExit  TransitionKind = "exit"
)

// Transition is a vehicle crossing a geofence boundary.
type Transition struct {
	Geofence *model.Geofence
	Kind     TransitionKind
}

// MembershipStore keeps the set of geofences each vehicle is currently in.
type MembershipStore interface {
	Get(ctx context.Context, vehicleID string) ([]string, error)
	Replace(ctx context.Context, vehicleID string, geofenceIDs []string) error
}

type GeofenceService interface {
	Create(ctx context.Context, geofence *model.Geofence) error
	ListByOrganization(ctx context.Context, organizationID string) ([]*model.Geofence, error)
	// InScope returns the geofences that apply to vehicle.
	InScope(ctx context.Context, vehicle *model.Vehicle) ([]*model.Geofence, error)
	// Containing returns the in-scope geofences that contain p.
	Containing(ctx context.Context, vehicle *model.Vehicle, p model.Point) ([]*model.Geofence, error)
	// Evaluate updates the vehicle's membership for p and returns the
	// transitions that should raise an alert. Callers serialize calls per
	// vehicle.
	Evaluate(ctx context.Context, vehicle *model.Vehicle, p model.Point) ([]Transition, error)
}

type geofenceService struct {
	geofenceRepo repository.GeofenceRepository
	membership   MembershipStore
	logger       *log.Entry
}

func NewGeofenceService(geofenceRepo repository.GeofenceRepository, membership MembershipStore, logger *log.Entry) GeofenceService {
	if membership == nil {
		membership = NewMemoryMembershipStore()
	}
	return &geofenceService{
		geofenceRepo: geofenceRepo,
		membership:   membership,
		logger:       logger.WithField("component", "geofence"),
	}
}

func (s *geofenceService) Create(ctx context.Context, geofence *model.Geofence) error {
	if err := geofence.Validate(); err != nil {
		return err
	}
	return s.geofenceRepo.Create(ctx, geofence)
}

func (s *geofenceService) ListByOrganization(ctx context.Context, organizationID string) ([]*model.Geofence, error) {
	return s.geofenceRepo.FindByOrganization(ctx, organizationID)
}

func (s *geofenceService) InScope(ctx context.Context, vehicle *model.Vehicle) ([]*model.Geofence, error) {
	all, err := s.geofenceRepo.FindByOrganization(ctx, vehicle.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load geofences: %w", err)
	}
	scoped := all[:0:0]
	for _, g := range all {
		if g.AppliesTo(vehicle) {
			scoped = append(scoped, g)
		}
	}
	return scoped, nil
}

func (s *geofenceService) Containing(ctx context.Context, vehicle *model.Vehicle, p model.Point) ([]*model.Geofence, error) {
	scoped, err := s.InScope(ctx, vehicle)
	if err != nil {
		return nil, err
	}
	var inside []*model.Geofence
	for _, g := range scoped {
		if geo.Contains(p, g) {
			inside = append(inside, g)
		}
	}
	return inside, nil
}

func (s *geofenceService) Evaluate(ctx context.Context, vehicle *model.Vehicle, p model.Point) ([]Transition, error) {
	scoped, err := s.InScope(ctx, vehicle)
	if err != nil {
		return nil, err
	}
	previous, err := s.membership.Get(ctx, vehicle.ID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}

	var (
		transitions []Transition
		current     []string
	)
	for _, g := range scoped {
		inside := geo.Contains(p, g)
		wasInside := slices.Contains(previous, g.ID)
		if inside {
			current = append(current, g.ID)
		}
		switch {
		case inside && !wasInside && g.AlertOnEntry:
			transitions = append(transitions, Transition{Geofence: g, Kind: TransitionEnter})
		case !inside && wasInside && g.AlertOnExit:
			transitions = append(transitions, Transition{Geofence: g, Kind: TransitionExit})
		}
	}

	if err := s.membership.Replace(ctx, vehicle.ID, current); err != nil {
		return transitions, fmt.Errorf("store membership: %w", err)
	}
	return transitions, nil
}

type memoryMembershipStore struct {
	sets *shard.Map[[]string]
}

func NewMemoryMembershipStore() MembershipStore {
	return &memoryMembershipStore{sets: shard.NewMap[[]string](shard.DefaultShards)}
}

func (m *memoryMembershipStore) Get(_ context.Context, vehicleID string) ([]string, error) {
	ids, _ := m.sets.Get(vehicleID)
	return slices.Clone(ids), nil
}

func (m *memoryMembershipStore) Replace(_ context.Context, vehicleID string, geofenceIDs []string) error {
	if len(geofenceIDs) == 0 {
		m.sets.Delete(vehicleID)
		return nil
	}
	m.sets.Swap(vehicleID, slices.Clone(geofenceIDs))
	return nil
}
