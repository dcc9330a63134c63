package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type GeofenceKind string

const (
	GeofenceCircle  GeofenceKind = "circle"
	GeofencePolygon GeofenceKind = "polygon"
)

var ErrInvalidGeofence = errors.New("invalid geofence")

// Geofence is a circle or a polygon. Polygon vertices are implicitly closed.
// A geofence applies to every vehicle of its organization unless VehicleIDs
// narrows it.
type Geofence struct {
	ID             string       `json:"id" bson:"id"`
	Name           string       `json:"name" bson:"name"`
	OrganizationID string       `json:"organizationId" bson:"organizationid"`
	VehicleIDs     []string     `json:"vehicleIds,omitempty" bson:"vehicleids,omitempty"`
	Kind           GeofenceKind `json:"kind" bson:"kind"`
	Center         *Point       `json:"center,omitempty" bson:"center,omitempty"`
	RadiusMeters   float64      `json:"radiusMeters,omitempty" bson:"radiusmeters,omitempty"`
	Vertices       []Point      `json:"vertices,omitempty" bson:"vertices,omitempty"`
	AlertOnEntry   bool         `json:"alertOnEntry" bson:"alertonentry"`
	AlertOnExit    bool         `json:"alertOnExit" bson:"alertonexit"`
	CreatedAt      time.Time    `json:"createdAt" bson:"createdat"`
}

func NewCircleGeofence(name, organizationID string, center Point, radiusMeters float64) *Geofence {
	return &Geofence{
		ID:             uuid.NewString(),
		Name:           name,
		OrganizationID: organizationID,
		Kind:           GeofenceCircle,
		Center:         &center,
		RadiusMeters:   radiusMeters,
		AlertOnEntry:   true,
		AlertOnExit:    true,
		CreatedAt:      time.Now().UTC(),
	}
}

func NewPolygonGeofence(name, organizationID string, vertices []Point) *Geofence {
	return &Geofence{
		ID:             uuid.NewString(),
		Name:           name,
		OrganizationID: organizationID,
		Kind:           GeofencePolygon,
		Vertices:       vertices,
		AlertOnEntry:   true,
		AlertOnExit:    true,
		CreatedAt:      time.Now().UTC(),
	}
}

func (g *Geofence) Validate() error {
	switch g.Kind {
	case GeofenceCircle:
		if g.Center == nil || g.RadiusMeters <= 0 {
			return fmt.Errorf("%w: circle needs a center and a positive radius", ErrInvalidGeofence)
		}
	case GeofencePolygon:
		if len(g.Vertices) < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", ErrInvalidGeofence, len(g.Vertices))
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidGeofence, g.Kind)
	}
	return nil
}

// AppliesTo reports whether the geofence is in scope for v.
func (g *Geofence) AppliesTo(v *Vehicle) bool {
	if g.OrganizationID != v.OrganizationID {
		return false
	}
	return len(g.VehicleIDs) == 0 || slices.Contains(g.VehicleIDs, v.ID)
}
