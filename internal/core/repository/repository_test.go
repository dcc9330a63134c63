package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleettrack/internal/core/model"
	"fleettrack/internal/protocol"
)

type repos struct {
	devices   DeviceRepository
	vehicles  VehicleRepository
	positions PositionRepository
	trips     TripRepository
	geofences GeofenceRepository
	alerts    AlertRepository
	commands  CommandRepository
}

func memoryRepos() repos {
	return repos{
		devices:   NewInMemoryDeviceRepository(),
		vehicles:  NewInMemoryVehicleRepository(),
		positions: NewInMemoryPositionRepository(),
		trips:     NewInMemoryTripRepository(),
		geofences: NewInMemoryGeofenceRepository(),
		alerts:    NewInMemoryAlertRepository(),
		commands:  NewInMemoryCommandRepository(),
	}
}

// mongoRepos connects to MONGODB_URI and returns repositories bound to a
// throwaway database.
func mongoRepos(t *testing.T) repos {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("failed to ping: %v, skipping integration test", err)
	}
	db := client.Database(fmt.Sprintf("fleettrack_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	require.NoError(t, EnsureIndexes(ctx, db))

	return repos{
		devices:   NewMongoDeviceRepository(db),
		vehicles:  NewMongoVehicleRepository(db),
		positions: NewMongoPositionRepository(db),
		trips:     NewMongoTripRepository(db),
		geofences: NewMongoGeofenceRepository(db),
		alerts:    NewMongoAlertRepository(db),
		commands:  NewMongoCommandRepository(db),
	}
}

func TestMemoryRepositories(t *testing.T) {
	runRepositoryContract(t, memoryRepos())
}

func TestMongoRepositories_Integration(t *testing.T) {
	runRepositoryContract(t, mongoRepos(t))
}

func runRepositoryContract(t *testing.T, r repos) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("devices", func(t *testing.T) {
		d := model.NewDevice("tracker", "123456789012345")
		require.NoError(t, r.devices.Create(ctx, d))

		got, err := r.devices.FindByUniqueID(ctx, "123456789012345")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, d.ID, got.ID)

		missing, err := r.devices.FindByUniqueID(ctx, "000")
		require.NoError(t, err)
		assert.Nil(t, missing)

		assert.ErrorIs(t, r.devices.Update(ctx, model.NewDevice("x", "1")), ErrNotFound)
	})

	t.Run("vehicles touch connection is monotonic", func(t *testing.T) {
		v := model.NewVehicle("truck", "org")
		require.NoError(t, r.vehicles.Create(ctx, v))
		require.NoError(t, r.vehicles.TouchConnection(ctx, v.ID, base.Add(time.Minute)))
		require.NoError(t, r.vehicles.TouchConnection(ctx, v.ID, base))

		got, err := r.vehicles.FindByID(ctx, v.ID)
		require.NoError(t, err)
		assert.True(t, got.LastConnection.Equal(base.Add(time.Minute)))
		assert.ErrorIs(t, r.vehicles.TouchConnection(ctx, "ghost", base), ErrNotFound)
	})

	t.Run("positions range is inclusive and ordered", func(t *testing.T) {
		vehicleID := uuid.NewString()
		for _, offset := range []int{3, 0, 2, 1, 4} {
			p := model.NewPosition(vehicleID, "d", 1, 1)
			p.Timestamp = base.Add(time.Duration(offset) * time.Minute)
			p.Speed = float64(offset)
			require.NoError(t, r.positions.Insert(ctx, p))
		}

		got, err := r.positions.QueryRange(ctx, vehicleID, base.Add(time.Minute), base.Add(3*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, p := range got {
			assert.Equal(t, float64(i+1), p.Speed)
		}

		latest, err := r.positions.FindLatest(ctx, vehicleID)
		require.NoError(t, err)
		assert.Equal(t, 4.0, latest.Speed)

		none, err := r.positions.FindLatest(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("trips open and close", func(t *testing.T) {
		vehicleID := uuid.NewString()
		open, err := r.trips.FindOpen(ctx, vehicleID)
		require.NoError(t, err)
		assert.Nil(t, open)

		trip := model.NewTrip(vehicleID, base, model.Point{Latitude: 1, Longitude: 2})
		require.NoError(t, r.trips.Create(ctx, trip))

		open, err = r.trips.FindOpen(ctx, vehicleID)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, trip.ID, open.ID)

		open.Close(base.Add(time.Hour), model.Point{Latitude: 3, Longitude: 4}, model.TripStats{DistanceKm: 12})
		require.NoError(t, r.trips.Update(ctx, open))

		open, err = r.trips.FindOpen(ctx, vehicleID)
		require.NoError(t, err)
		assert.Nil(t, open)

		all, err := r.trips.FindByVehicle(ctx, vehicleID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 12.0, all[0].DistanceKm)
	})

	t.Run("geofences by organization", func(t *testing.T) {
		org := uuid.NewString()
		g := model.NewCircleGeofence("depot", org, model.Point{Latitude: 1, Longitude: 1}, 100)
		require.NoError(t, r.geofences.Create(ctx, g))
		require.NoError(t, r.geofences.Create(ctx, model.NewCircleGeofence("other", "elsewhere", model.Point{}, 1)))

		got, err := r.geofences.FindByOrganization(ctx, org)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, g.ID, got[0].ID)
		assert.Equal(t, 100.0, got[0].RadiusMeters)
	})

	t.Run("alerts mark read", func(t *testing.T) {
		a := model.NewAlert(uuid.NewString(), model.AlertSpeeding, model.SeverityHigh, "fast", map[string]any{"speed": 130.0})
		require.NoError(t, r.alerts.Insert(ctx, a))
		require.NoError(t, r.alerts.MarkRead(ctx, a.ID))

		got, err := r.alerts.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, got.IsRead)
		assert.ErrorIs(t, r.alerts.MarkRead(ctx, "ghost"), ErrNotFound)
	})

	t.Run("commands lookup", func(t *testing.T) {
		deviceID := uuid.NewString()
		first := model.NewCommand(deviceID, protocol.CommandLocate)
		second := model.NewCommand(deviceID, protocol.CommandLock)
		require.NoError(t, first.Advance(model.CommandSent, base))
		require.NoError(t, second.Advance(model.CommandSent, base.Add(time.Second)))
		require.NoError(t, r.commands.Create(ctx, second))
		require.NoError(t, r.commands.Create(ctx, first))

		got, err := r.commands.FindByServerFlag(ctx, deviceID, second.ServerFlag)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)

		oldest, err := r.commands.FindOldestSent(ctx, deviceID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, oldest.ID)

		require.NoError(t, oldest.Advance(model.CommandAcknowledged, base.Add(time.Minute)))
		require.NoError(t, r.commands.Update(ctx, oldest))
		oldest, err = r.commands.FindOldestSent(ctx, deviceID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, oldest.ID)
	})
}
