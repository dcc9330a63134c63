package server

import (
	"context"
	"io"
	"math"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/core/geo"
	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/core/service"
	"fleettrack/internal/events"
	"fleettrack/internal/protocol"
	"fleettrack/internal/protocol/gt06"
	"fleettrack/internal/protocol/h02"
	"fleettrack/internal/protocol/teltonika"
	"fleettrack/internal/session"
)

const identity = "123456789012345"

type fixture struct {
	server   *TCPServer
	registry *session.Registry
	trips    repository.TripRepository
	commands service.CommandService
	vehicle  *model.Vehicle
}

func newFixture(t *testing.T, idle time.Duration) *fixture {
	t.Helper()
	nullLogger, _ := test.NewNullLogger()
	logger := log.NewEntry(nullLogger)
	ctx := context.Background()

	devicesRepo := repository.NewInMemoryDeviceRepository()
	vehiclesRepo := repository.NewInMemoryVehicleRepository()
	positionsRepo := repository.NewInMemoryPositionRepository()
	f := &fixture{trips: repository.NewInMemoryTripRepository()}

	devices := service.NewDeviceService(devicesRepo, vehiclesRepo, nil, time.Minute, logger)
	trips := service.NewTripService(f.trips, positionsRepo, events.Nop{}, service.DefaultMovementThresholdKmh, logger)
	geofences := service.NewGeofenceService(repository.NewInMemoryGeofenceRepository(), service.NewMemoryMembershipStore(), logger)
	alerts := service.NewAlertService(repository.NewInMemoryAlertRepository(), vehiclesRepo, geofences, events.Nop{}, 0, logger)
	positions := service.NewPositionService(positionsRepo, vehiclesRepo, devices, trips, alerts, geofences,
		events.Nop{}, service.PipelineOptions{}, logger)

	f.registry = session.NewRegistry(nil, logger)
	f.commands = service.NewCommandService(repository.NewInMemoryCommandRepository(), devicesRepo,
		f.registry, service.NewMemoryQueue(), events.Nop{}, logger)

	f.vehicle = model.NewVehicle("Van", "org-1")
	require.NoError(t, devices.Register(ctx, model.NewDevice("tracker", identity), f.vehicle))

	f.server = NewTCPServer("127.0.0.1:0", idle, []protocol.Codec{gt06.NewDecoder(), h02.NewDecoder(), teltonika.NewDecoder()},
		f.registry, positions, f.commands, logger)
	require.NoError(t, f.server.Start(ctx))
	t.Cleanup(f.server.Stop)
	return f
}

func (f *fixture) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", f.server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func login(t *testing.T, conn net.Conn) {
	t.Helper()
	frame, err := gt06.EncodeLogin(identity, 1)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, gt06.EncodeAck(1, 0x01), readN(t, conn, 10))
}

func TestServerTripEndToEnd(t *testing.T) {
	f := newFixture(t, time.Minute)
	conn := f.dial(t)
	login(t, conn)

	start := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	route := []struct{ lat, lon, speed float64 }{
		{51.5000, -0.1000, 10},
		{51.5010, -0.1000, 30},
		{51.5020, -0.0990, 45},
		{51.5030, -0.0980, 20},
		{51.5035, -0.0975, 0},
	}
	for i, r := range route {
		serial := uint16(i + 2)
		frame := gt06.EncodeLocation(protocol.Fix{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Latitude:  r.lat, Longitude: r.lon, SpeedKmh: r.speed, Satellites: 8, GPSValid: true,
		}, serial)
		_, err := conn.Write(frame)
		require.NoError(t, err)
		assert.Equal(t, gt06.EncodeAck(serial, 0x12), readN(t, conn, 10))
	}

	trips, err := f.trips.FindByVehicle(context.Background(), f.vehicle.ID)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.False(t, trips[0].IsOpen())
	assert.Equal(t, 45.0, trips[0].MaxSpeedKmh)
	assert.Equal(t, int64(240), trips[0].DurationSec)
	assert.InDelta(t, 21.0, trips[0].AvgSpeedKmh, 1e-9)

	// GT06 carries coordinates in 1/1800000 degree steps.
	wire := func(v float64) float64 { return math.Round(v*1800000) / 1800000 }
	var want float64
	for i := 1; i < len(route); i++ {
		want += geo.Haversine(
			model.Point{Latitude: wire(route[i-1].lat), Longitude: wire(route[i-1].lon)},
			model.Point{Latitude: wire(route[i].lat), Longitude: wire(route[i].lon)})
	}
	assert.InDelta(t, want, trips[0].DistanceKm, 1e-9)
}

func TestServerTeltonikaBatch(t *testing.T) {
	f := newFixture(t, time.Minute)
	conn := f.dial(t)

	_, err := conn.Write(teltonika.EncodeLogin(identity))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, readN(t, conn, 1))

	start := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	fix := func(min int, lat, speed float64) protocol.Fix {
		return protocol.Fix{Timestamp: start.Add(time.Duration(min) * time.Minute),
			Latitude: lat, Longitude: 24.1, SpeedKmh: speed, Satellites: 9}
	}
	// Sent newest first; the server must still see them in time order.
	_, err = conn.Write(teltonika.EncodeRecords(fix(2, 56.952, 0), fix(1, 56.951, 35), fix(0, 56.950, 20)))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 3}, readN(t, conn, 4))

	trips, err := f.trips.FindByVehicle(context.Background(), f.vehicle.ID)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.False(t, trips[0].IsOpen())
	assert.Equal(t, int64(120), trips[0].DurationSec)
}

func TestServerSplitFramesAndGarbage(t *testing.T) {
	f := newFixture(t, time.Minute)
	conn := f.dial(t)

	frame, err := gt06.EncodeLogin(identity, 7)
	require.NoError(t, err)
	junk := []byte{0x00, 0xFF, 0x13}
	_, err = conn.Write(append(junk, frame[:5]...))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = conn.Write(frame[5:])
	require.NoError(t, err)

	assert.Equal(t, gt06.EncodeAck(7, 0x01), readN(t, conn, 10))
}

func TestServerNewLoginSupersedes(t *testing.T) {
	f := newFixture(t, time.Minute)
	first := f.dial(t)
	login(t, first)
	second := f.dial(t)
	login(t, second)

	active := f.registry.Active(identity)
	require.NotNil(t, active)
	assert.Equal(t, second.LocalAddr().String(), active.RemoteAddr())

	first.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Same(t, active, f.registry.Active(identity), "stale disconnect keeps the newer session")
}

func TestServerReloginOnSupersededConnection(t *testing.T) {
	f := newFixture(t, time.Minute)
	first := f.dial(t)
	login(t, first)
	second := f.dial(t)
	login(t, second)
	require.Equal(t, second.LocalAddr().String(), f.registry.Active(identity).RemoteAddr())

	login(t, first)
	active := f.registry.Active(identity)
	require.NotNil(t, active)
	assert.Equal(t, first.LocalAddr().String(), active.RemoteAddr(), "latest login wins")

	cmd, err := f.commands.CreateCommand(context.Background(), identity, protocol.CommandLocate, 0)
	require.NoError(t, err)
	_, err = f.commands.Send(context.Background(), cmd.ID)
	require.NoError(t, err)
	header := readN(t, first, 3)
	assert.Contains(t, string(readN(t, first, int(header[2])+2)), "WHERE#")
}

func TestServerCommandRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	conn := f.dial(t)
	login(t, conn)

	cmd, err := f.commands.CreateCommand(ctx, identity, protocol.CommandLocate, 0)
	require.NoError(t, err)
	_, err = f.commands.Send(ctx, cmd.ID)
	require.NoError(t, err)

	header := readN(t, conn, 3)
	body := readN(t, conn, int(header[2])+2)
	assert.Contains(t, string(body), "WHERE#")

	_, err = conn.Write(gt06.EncodeCommandReply(cmd.ServerFlag, "Lat:51.5 Lon:-0.1", 9))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := f.commands.Get(ctx, cmd.ID)
		return err == nil && got.Status == model.CommandAcknowledged
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerDeliversQueuedCommandsAfterLoginAck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Minute)

	cmd, err := f.commands.CreateCommand(ctx, identity, protocol.CommandRestart, 0)
	require.NoError(t, err)
	_, err = f.commands.Send(ctx, cmd.ID)
	require.NoError(t, err)

	conn := f.dial(t)
	login(t, conn)
	header := readN(t, conn, 4)
	assert.Equal(t, byte(0x80), header[3])
	assert.Contains(t, string(readN(t, conn, int(header[2])+1)), "RESET#")
}

func TestServerH02BindsOnFirstFrame(t *testing.T) {
	f := newFixture(t, time.Minute)
	conn := f.dial(t)

	_, err := conn.Write(h02.EncodeLocation(identity, protocol.Fix{
		Timestamp: time.Now().UTC(), Latitude: 22.5, Longitude: 114.1, SpeedKmh: 0, GPSValid: true,
	}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.registry.Active(identity) != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "h02", f.registry.Active(identity).Codec().Name())
}

func TestServerIdleTimeout(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	conn := f.dial(t)
	login(t, conn)

	// Garbage does not count as activity.
	_, err := conn.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Eventually(t, func() bool {
		return f.registry.Active(identity) == nil
	}, 2*time.Second, 10*time.Millisecond)
}
