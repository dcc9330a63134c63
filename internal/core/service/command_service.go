package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/events"
	"fleettrack/internal/metrics"
	"fleettrack/internal/protocol"
	"fleettrack/internal/session"
	"fleettrack/internal/shard"
)

const (
	CommandQueuedEvent       = "command.queued"
	CommandSentEvent         = "command.sent"
	CommandAcknowledgedEvent = "command.acknowledged"
	CommandFailedEvent       = "command.failed"
)

// SessionLookup finds the live connection for a device identity.
type SessionLookup interface {
	Active(identity string) *session.Session
}

// PendingQueue holds commands created while their device was offline.
type PendingQueue interface {
	Push(ctx context.Context, deviceID, commandID string) error
	Drain(ctx context.Context, deviceID string) ([]string, error)
}

type CommandService interface {
	CreateCommand(ctx context.Context, identity string, kind protocol.CommandKind, intervalSec int) (*model.Command, error)
	// Send writes the command to the device's active session. Without one
	// the command is queued and stays Pending.
	Send(ctx context.Context, id string) (*model.Command, error)
	HandleResponse(ctx context.Context, id, raw string) (*model.Command, error)
	// HandleReply matches a device reply to its command by server flag, or
	// to the oldest Sent command when the protocol carries no flag.
	HandleReply(ctx context.Context, identity string, serverFlag uint32, content string) (*model.Command, error)
	// DeliverPending sends every queued command for identity and returns how
	// many were written.
	DeliverPending(ctx context.Context, identity string) (int, error)
	MarkFailed(ctx context.Context, id, reason string) (*model.Command, error)
	Get(ctx context.Context, id string) (*model.Command, error)
}

type commandService struct {
	commandRepo repository.CommandRepository
	deviceRepo  repository.DeviceRepository
	sessions    SessionLookup
	queue       PendingQueue
	publisher   events.Publisher
	locks       *shard.Locker
	logger      *log.Entry
}

func NewCommandService(commandRepo repository.CommandRepository, deviceRepo repository.DeviceRepository,
	sessions SessionLookup, queue PendingQueue, publisher events.Publisher, logger *log.Entry) CommandService {
	return &commandService{
		commandRepo: commandRepo,
		deviceRepo:  deviceRepo,
		sessions:    sessions,
		queue:       queue,
		publisher:   publisher,
		locks:       shard.NewLocker(shard.DefaultShards),
		logger:      logger.WithField("component", "commands"),
	}
}

func (s *commandService) CreateCommand(ctx context.Context, identity string, kind protocol.CommandKind, intervalSec int) (*model.Command, error) {
	if _, err := protocol.ParseCommandKind(string(kind)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if kind == protocol.CommandSetInterval && intervalSec <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidCommand)
	}
	device, err := s.deviceRepo.FindByUniqueID(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	if device == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, identity)
	}

	cmd := model.NewCommand(identity, kind)
	if kind == protocol.CommandSetInterval {
		cmd.IntervalSec = intervalSec
	}
	if err := s.commandRepo.Create(ctx, cmd); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}
	s.logger.WithFields(log.Fields{"command_id": cmd.ID, "device": identity, "type": kind}).Info("command created")
	return cmd, nil
}

func (s *commandService) load(ctx context.Context, id string) (*model.Command, error) {
	cmd, err := s.commandRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find command: %w", err)
	}
	if cmd == nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	}
	return cmd, nil
}

func (s *commandService) Send(ctx context.Context, id string) (*model.Command, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cmd, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cmd.Status != model.CommandPending {
		return cmd, fmt.Errorf("%w: command %s is %s", ErrInvalidTransition, id, cmd.Status)
	}
	logger := s.logger.WithFields(log.Fields{"command_id": cmd.ID, "device": cmd.DeviceID})

	sess := s.sessions.Active(cmd.DeviceID)
	if sess == nil || sess.Codec() == nil {
		if err := s.queue.Push(ctx, cmd.DeviceID, cmd.ID); err != nil {
			return cmd, fmt.Errorf("queue command: %w", err)
		}
		metrics.CommandsQueued.Add(1)
		logger.Info("device offline, command queued")
		publish(ctx, s.publisher, logger, events.TopicCommands, cmd.DeviceID, CommandEvent{Event: CommandQueuedEvent, Command: cmd})
		return cmd, nil
	}

	frame, err := sess.Codec().EncodeCommand(protocol.CommandRequest{
		Kind:        cmd.Type,
		Identity:    cmd.DeviceID,
		Serial:      sess.NextSerial(),
		ServerFlag:  cmd.ServerFlag,
		IntervalSec: cmd.IntervalSec,
	})
	if err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := sess.Write(frame); err != nil {
		logger.WithError(err).Error("command write failed")
		return cmd, fmt.Errorf("write command %s: %w", cmd.ID, err)
	}

	if err := cmd.Advance(model.CommandSent, time.Now().UTC()); err != nil {
		return cmd, err
	}
	if err := s.commandRepo.Update(ctx, cmd); err != nil {
		return cmd, fmt.Errorf("update command: %w", err)
	}
	metrics.CommandsSent.Add(1)
	logger.WithField("codec", sess.Codec().Name()).Info("command sent")
	publish(ctx, s.publisher, logger, events.TopicCommands, cmd.DeviceID, CommandEvent{Event: CommandSentEvent, Command: cmd})
	return cmd, nil
}

func (s *commandService) HandleResponse(ctx context.Context, id, raw string) (*model.Command, error) {
	return s.finish(ctx, id, model.CommandAcknowledged, func(cmd *model.Command) {
		cmd.RawResponse = raw
	})
}

func (s *commandService) MarkFailed(ctx context.Context, id, reason string) (*model.Command, error) {
	return s.finish(ctx, id, model.CommandFailed, func(cmd *model.Command) {
		cmd.FailureReason = reason
	})
}

func (s *commandService) finish(ctx context.Context, id string, to model.CommandStatus, apply func(*model.Command)) (*model.Command, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cmd, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cmd.Advance(to, time.Now().UTC()); err != nil {
		return cmd, err
	}
	apply(cmd)
	if err := s.commandRepo.Update(ctx, cmd); err != nil {
		return cmd, fmt.Errorf("update command: %w", err)
	}

	event := CommandAcknowledgedEvent
	if to == model.CommandFailed {
		event = CommandFailedEvent
	}
	s.logger.WithFields(log.Fields{"command_id": cmd.ID, "device": cmd.DeviceID, "status": cmd.Status}).Info("command finished")
	publish(ctx, s.publisher, s.logger, events.TopicCommands, cmd.DeviceID, CommandEvent{Event: event, Command: cmd})
	return cmd, nil
}

func (s *commandService) HandleReply(ctx context.Context, identity string, serverFlag uint32, content string) (*model.Command, error) {
	var (
		cmd *model.Command
		err error
	)
	if serverFlag != 0 {
		cmd, err = s.commandRepo.FindByServerFlag(ctx, identity, serverFlag)
		if err != nil {
			return nil, fmt.Errorf("find command by flag: %w", err)
		}
	}
	if cmd == nil {
		cmd, err = s.commandRepo.FindOldestSent(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("find sent command: %w", err)
		}
	}
	if cmd == nil {
		return nil, fmt.Errorf("%w: no command awaiting reply from %s", ErrCommandNotFound, identity)
	}
	return s.HandleResponse(ctx, cmd.ID, content)
}

func (s *commandService) DeliverPending(ctx context.Context, identity string) (int, error) {
	ids, err := s.queue.Drain(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("drain pending commands: %w", err)
	}

	var (
		sent int
		errs []error
	)
	for _, id := range ids {
		cmd, err := s.Send(ctx, id)
		switch {
		case err == nil:
			if cmd.Status == model.CommandSent {
				sent++
			}
		case errors.Is(err, ErrCommandNotFound), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidCommand):
			// Finished or unsendable meanwhile; drop it from the queue.
			s.logger.WithError(err).WithField("command_id", id).Debug("pending command skipped")
		default:
			errs = append(errs, err)
			if perr := s.queue.Push(ctx, identity, id); perr != nil {
				errs = append(errs, fmt.Errorf("requeue command %s: %w", id, perr))
			}
		}
	}
	return sent, errors.Join(errs...)
}

func (s *commandService) Get(ctx context.Context, id string) (*model.Command, error) {
	return s.load(ctx, id)
}

// memoryQueue is the PendingQueue used when Redis is not configured.
type memoryQueue struct {
	mu    sync.Mutex
	lists map[string][]string
}

func NewMemoryQueue() PendingQueue {
	return &memoryQueue{lists: make(map[string][]string)}
}

func (q *memoryQueue) Push(_ context.Context, deviceID, commandID string) error {
	q.mu.Lock()
	q.lists[deviceID] = append(q.lists[deviceID], commandID)
	q.mu.Unlock()
	return nil
}

func (q *memoryQueue) Drain(_ context.Context, deviceID string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.lists[deviceID]
	delete(q.lists, deviceID)
	return ids, nil
}
