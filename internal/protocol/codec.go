package protocol

import (
	"errors"
	"fmt"
)

// CommandKind is the closed set of outbound device commands.
type CommandKind string

const (
	CommandLocate      CommandKind = "locate"
	CommandLock        CommandKind = "lock"
	CommandUnlock      CommandKind = "unlock"
	CommandRestart     CommandKind = "restart"
	CommandSetInterval CommandKind = "set_interval"
)

var ErrUnknownCommand = errors.New("unknown command kind")

// ParseCommandKind validates a command kind coming from outside the process.
func ParseCommandKind(s string) (CommandKind, error) {
	switch k := CommandKind(s); k {
	case CommandLocate, CommandLock, CommandUnlock, CommandRestart, CommandSetInterval:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}

// CommandRequest is everything a codec needs to frame one outbound command.
type CommandRequest struct {
	Kind        CommandKind
	Identity    string
	Serial      uint16
	ServerFlag  uint32
	IntervalSec int
}

// Codec turns a device byte stream into packets and builds outbound frames.
// Implementations hold no per-connection state.
type Codec interface {
	Name() string
	// Match reports whether the first bytes of a stream belong to this protocol.
	Match(prefix []byte) bool
	// Split finds the next frame in buf. It returns the frame (nil when more
	// bytes are needed) and how many bytes of buf were consumed, including
	// garbage skipped while resynchronising.
	Split(buf []byte) (frame []byte, advance int)
	Decode(frame []byte) (Packet, error)
	// EncodeAck returns the acknowledgement for p, or nil if the protocol
	// does not acknowledge that packet.
	EncodeAck(p Packet) []byte
	EncodeCommand(req CommandRequest) ([]byte, error)
}

// Detect picks the first codec whose Match accepts prefix.
func Detect(prefix []byte, codecs ...Codec) Codec {
	for _, c := range codecs {
		if c.Match(prefix) {
			return c
		}
	}
	return nil
}
