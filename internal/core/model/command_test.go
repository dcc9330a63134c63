package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/protocol"
)

func TestCommandAdvance(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		path  []CommandStatus
		valid []bool
	}{
		{"pending sent acknowledged", []CommandStatus{CommandSent, CommandAcknowledged}, []bool{true, true}},
		{"pending sent failed", []CommandStatus{CommandSent, CommandFailed}, []bool{true, true}},
		{"pending acknowledged", []CommandStatus{CommandAcknowledged}, []bool{true}},
		{"pending failed", []CommandStatus{CommandFailed}, []bool{true}},
		{"no way back to pending", []CommandStatus{CommandSent, CommandPending}, []bool{true, false}},
		{"sent twice", []CommandStatus{CommandSent, CommandSent}, []bool{true, false}},
		{"acknowledged then failed", []CommandStatus{CommandAcknowledged, CommandFailed}, []bool{true, false}},
		{"failed then sent", []CommandStatus{CommandFailed, CommandSent}, []bool{true, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCommand("123456789012345", protocol.CommandLocate)
			for i, to := range tt.path {
				err := c.Advance(to, now)
				if tt.valid[i] {
					require.NoError(t, err)
					assert.Equal(t, to, c.Status)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
				}
			}
		})
	}
}

func TestCommandTimestamps(t *testing.T) {
	c := NewCommand("1", protocol.CommandLock)
	sent := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Advance(CommandSent, sent))
	require.NoError(t, c.Advance(CommandAcknowledged, sent.Add(time.Second)))
	assert.Equal(t, sent, *c.SentAt)
	assert.Equal(t, sent.Add(time.Second), *c.AckAt)
	assert.Nil(t, c.FailedAt)
	assert.True(t, c.Status.Terminal())
	assert.NotZero(t, c.ServerFlag)
}

func TestGeofenceValidateAndScope(t *testing.T) {
	assert.NoError(t, NewCircleGeofence("depot", "org", Point{1, 1}, 100).Validate())
	assert.ErrorIs(t, NewCircleGeofence("depot", "org", Point{1, 1}, 0).Validate(), ErrInvalidGeofence)
	assert.ErrorIs(t, NewPolygonGeofence("p", "org", []Point{{0, 0}, {1, 1}}).Validate(), ErrInvalidGeofence)

	v := NewVehicle("truck", "org")
	g := NewPolygonGeofence("p", "org", []Point{{0, 0}, {0, 1}, {1, 1}})
	assert.True(t, g.AppliesTo(v))
	g.VehicleIDs = []string{"someone-else"}
	assert.False(t, g.AppliesTo(v))
	g.VehicleIDs = append(g.VehicleIDs, v.ID)
	assert.True(t, g.AppliesTo(v))
	assert.False(t, NewCircleGeofence("x", "other", Point{}, 1).AppliesTo(v))
}
