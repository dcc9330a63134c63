package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/protocol"
)

type CommandStatus string

const (
	CommandPending      CommandStatus = "pending"
	CommandSent         CommandStatus = "sent"
	CommandAcknowledged CommandStatus = "acknowledged"
	CommandFailed       CommandStatus = "failed"
)

var ErrInvalidTransition = errors.New("invalid command status transition")

// Command is an outbound device instruction. DeviceID holds the device
// identity the command is addressed to.
type Command struct {
	ID            string               `json:"id" bson:"id"`
	DeviceID      string               `json:"deviceId" bson:"deviceid"`
	Type          protocol.CommandKind `json:"type" bson:"type"`
	IntervalSec   int                  `json:"intervalSec,omitempty" bson:"intervalsec,omitempty"`
	Status        CommandStatus        `json:"status" bson:"status"`
	ServerFlag    uint32               `json:"serverFlag" bson:"serverflag"`
	CreatedAt     time.Time            `json:"createdAt" bson:"createdat"`
	SentAt        *time.Time           `json:"sentAt,omitempty" bson:"sentat,omitempty"`
	AckAt         *time.Time           `json:"ackAt,omitempty" bson:"ackat,omitempty"`
	FailedAt      *time.Time           `json:"failedAt,omitempty" bson:"failedat,omitempty"`
	RawResponse   string               `json:"rawResponse,omitempty" bson:"rawresponse,omitempty"`
	FailureReason string               `json:"failureReason,omitempty" bson:"failurereason,omitempty"`
}

func NewCommand(deviceID string, kind protocol.CommandKind) *Command {
	id := uuid.New()
	return &Command{
		ID:       id.String(),
		DeviceID: deviceID,
		Type:     kind,
		Status:   CommandPending,
		// The device echoes this flag in its reply.
		ServerFlag: binary.BigEndian.Uint32(id[:4]),
		CreatedAt:  time.Now().UTC(),
	}
}

// rank orders statuses; a command may only move to a higher rank. The two
// terminal states share a rank so neither can follow the other.
func (s CommandStatus) rank() int {
	switch s {
	case CommandPending:
		return 0
	case CommandSent:
		return 1
	case CommandAcknowledged, CommandFailed:
		return 2
	default:
		return -1
	}
}

func (s CommandStatus) Terminal() bool { return s.rank() == 2 }

// Advance moves the command to status to, stamping the matching timestamp.
func (c *Command) Advance(to CommandStatus, at time.Time) error {
	if to.rank() <= c.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	switch to {
	case CommandSent:
		c.SentAt = &at
	case CommandAcknowledged:
		c.AckAt = &at
	case CommandFailed:
		c.FailedAt = &at
	}
	return nil
}
