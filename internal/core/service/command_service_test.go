package service

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/events"
	"fleettrack/internal/protocol"
	"fleettrack/internal/protocol/gt06"
	"fleettrack/internal/protocol/h02"
	"fleettrack/internal/session"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Push(ctx context.Context, deviceID, commandID string) error {
	return m.Called(ctx, deviceID, commandID).Error(0)
}

func (m *mockQueue) Drain(ctx context.Context, deviceID string) ([]string, error) {
	args := m.Called(ctx, deviceID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type dispatcherFixture struct {
	svc      CommandService
	commands repository.CommandRepository
	registry *session.Registry
	pub      *recordingPublisher
}

func newDispatcher(t *testing.T, queue PendingQueue) *dispatcherFixture {
	t.Helper()
	devices := repository.NewInMemoryDeviceRepository()
	require.NoError(t, devices.Create(context.Background(), model.NewDevice("tracker", testIdentity)))

	f := &dispatcherFixture{
		commands: repository.NewInMemoryCommandRepository(),
		registry: session.NewRegistry(nil, testLogger()),
		pub:      &recordingPublisher{},
	}
	f.svc = NewCommandService(f.commands, devices, f.registry, queue, f.pub, testLogger())
	return f
}

// connect logs a device in over net.Pipe and returns a channel receiving
// whatever the server writes to it.
func (f *dispatcherFixture) connect(t *testing.T, codec protocol.Codec) (net.Conn, <-chan []byte) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	s := f.registry.OnConnect(server)
	s.SetCodec(codec)
	f.registry.OnLogin(context.Background(), s, testIdentity)

	out := make(chan []byte, 8)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := client.Read(buf)
			if err != nil {
				close(out)
				return
			}
			out <- append([]byte(nil), buf[:n]...)
		}
	}()
	return client, out
}

func receive(t *testing.T, out <-chan []byte) []byte {
	t.Helper()
	select {
	case b := <-out:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written to device")
		return nil
	}
}

func TestCommandSendAndReply(t *testing.T) {
	ctx := context.Background()
	f := newDispatcher(t, NewMemoryQueue())
	_, out := f.connect(t, gt06.NewDecoder())

	cmd, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandLock, 0)
	require.NoError(t, err)
	assert.Equal(t, model.CommandPending, cmd.Status)

	sent, err := f.svc.Send(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandSent, sent.Status)
	assert.NotNil(t, sent.SentAt)

	frame := receive(t, out)
	require.GreaterOrEqual(t, len(frame), 10)
	assert.Equal(t, byte(0x80), frame[3])
	assert.Equal(t, cmd.ServerFlag, binary.BigEndian.Uint32(frame[5:9]))
	assert.Contains(t, string(frame), "RELAY,1#")

	acked, err := f.svc.HandleReply(ctx, testIdentity, cmd.ServerFlag, "RELAY=1 OK")
	require.NoError(t, err)
	assert.Equal(t, model.CommandAcknowledged, acked.Status)
	assert.Equal(t, "RELAY=1 OK", acked.RawResponse)
	assert.NotNil(t, acked.AckAt)

	var names []string
	for _, e := range f.pub.on(events.TopicCommands) {
		names = append(names, e.payload.(CommandEvent).Event)
	}
	assert.Equal(t, []string{CommandSentEvent, CommandAcknowledgedEvent}, names)
}

func TestCommandQueuedWhenOffline(t *testing.T) {
	ctx := context.Background()
	queue := &mockQueue{}
	f := newDispatcher(t, queue)

	cmd, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandLocate, 0)
	require.NoError(t, err)
	queue.On("Push", mock.Anything, testIdentity, cmd.ID).Return(nil).Once()

	got, err := f.svc.Send(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandPending, got.Status)
	queue.AssertExpectations(t)

	queued := f.pub.on(events.TopicCommands)
	require.Len(t, queued, 1)
	assert.Equal(t, CommandQueuedEvent, queued[0].payload.(CommandEvent).Event)
}

func TestCommandDeliverPendingOnLogin(t *testing.T) {
	ctx := context.Background()
	f := newDispatcher(t, NewMemoryQueue())

	cmd, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandSetInterval, 30)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, cmd.ID)
	require.NoError(t, err)

	_, out := f.connect(t, gt06.NewDecoder())
	n, err := f.svc.DeliverPending(ctx, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, string(receive(t, out)), "TIMER,30#")

	got, err := f.svc.Get(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandSent, got.Status)

	n, err = f.svc.DeliverPending(ctx, testIdentity)
	require.NoError(t, err)
	assert.Zero(t, n, "queue drained")
}

func TestCommandWriteFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newDispatcher(t, NewMemoryQueue())
	client, _ := f.connect(t, gt06.NewDecoder())
	client.Close()

	cmd, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandRestart, 0)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, cmd.ID)
	require.Error(t, err)

	got, err := f.svc.Get(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandPending, got.Status)
}

func TestCommandTransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newDispatcher(t, NewMemoryQueue())

	cmd, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandUnlock, 0)
	require.NoError(t, err)
	_, err = f.svc.HandleResponse(ctx, cmd.ID, "OK")
	require.NoError(t, err, "pending may be acknowledged directly")

	_, err = f.svc.MarkFailed(ctx, cmd.ID, "timeout")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.HandleResponse(ctx, cmd.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Send(ctx, cmd.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	failed, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandLocate, 0)
	require.NoError(t, err)
	got, err := f.svc.MarkFailed(ctx, failed.ID, "no reply")
	require.NoError(t, err)
	assert.Equal(t, model.CommandFailed, got.Status)
	assert.Equal(t, "no reply", got.FailureReason)
}

func TestCommandValidation(t *testing.T) {
	ctx := context.Background()
	f := newDispatcher(t, NewMemoryQueue())

	_, err := f.svc.CreateCommand(ctx, "000000000000000", protocol.CommandLocate, 0)
	assert.ErrorIs(t, err, ErrUnknownDevice)
	_, err = f.svc.CreateCommand(ctx, testIdentity, protocol.CommandSetInterval, 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)
	_, err = f.svc.CreateCommand(ctx, testIdentity, "selfdestruct", 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)
	_, err = f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCommandNotFound)
	_, err = f.svc.HandleReply(ctx, testIdentity, 0, "OK")
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestCommandReplyWithoutFlagMatchesOldestSent(t *testing.T) {
	ctx := context.Background()
	f := newDispatcher(t, NewMemoryQueue())
	_, out := f.connect(t, h02.NewDecoder())

	first, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandLocate, 0)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, first.ID)
	require.NoError(t, err)
	assert.Contains(t, string(receive(t, out)), "*HQ,"+testIdentity+",R1,")

	second, err := f.svc.CreateCommand(ctx, testIdentity, protocol.CommandRestart, 0)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, second.ID)
	require.NoError(t, err)
	receive(t, out)

	got, err := f.svc.HandleReply(ctx, testIdentity, 0, "R1,OK")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}
