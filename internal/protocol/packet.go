// Package protocol defines the packet model shared by every tracker protocol
// and the Codec contract each protocol implementation satisfies.
package protocol

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the packet shapes the ingestion core understands.
type Kind uint8

const (
	KindLogin Kind = iota + 1
	KindLocation
	KindHeartbeat
	KindAlarm
	KindCommandReply
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindLocation:
		return "location"
	case KindHeartbeat:
		return "heartbeat"
	case KindAlarm:
		return "alarm"
	case KindCommandReply:
		return "command_reply"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Packet is a decoded frame. The set of implementations is closed: only the
// types in this file satisfy it.
type Packet interface {
	Kind() Kind
	// Serial is the sequence number the device put on the frame.
	Serial() uint16
	// DeviceIdentity is non-empty only for protocols that carry the identity
	// on every frame.
	DeviceIdentity() string
	sealed()
}

// Header carries the fields common to every packet.
type Header struct {
	SerialNo uint16
	Identity string
}

func (h Header) Serial() uint16         { return h.SerialNo }
func (h Header) DeviceIdentity() string { return h.Identity }
func (Header) sealed()                  {}

// Fix is a GPS position as reported on the wire.
type Fix struct {
	Timestamp  time.Time
	Latitude   float64
	Longitude  float64
	SpeedKmh   float64
	CourseDeg  float64
	Satellites int
	GPSValid   bool
}

type LoginPacket struct {
	Header
}

func (*LoginPacket) Kind() Kind { return KindLogin }

// LocationPacket carries the newest fix of a frame. Protocols that batch
// records put the older ones in History, oldest first.
type LocationPacket struct {
	Header
	Fix     Fix
	History []Fix
}

func (*LocationPacket) Kind() Kind { return KindLocation }

type HeartbeatPacket struct {
	Header
	TerminalInfo byte
	Voltage      int
	GSMSignal    int
	Charging     bool
	EngineOn     bool
}

func (*HeartbeatPacket) Kind() Kind { return KindHeartbeat }

// AlarmPacket reports a device-side alarm. Fix is nil when the frame carried
// only the alarm code.
type AlarmPacket struct {
	Header
	Code byte
	Name string
	Fix  *Fix
}

func (*AlarmPacket) Kind() Kind { return KindAlarm }

// CommandReplyPacket is a device answer to a server command. ServerFlag echoes
// the flag the server put on the outbound command frame.
type CommandReplyPacket struct {
	Header
	ServerFlag uint32
	Content    string
}

func (*CommandReplyPacket) Kind() Kind { return KindCommandReply }

// Alarm names shared by protocols.
const (
	AlarmSOS           = "sos"
	AlarmPowerCut      = "powerCut"
	AlarmVibration     = "vibration"
	AlarmGeofenceEnter = "geofenceEnter"
	AlarmGeofenceExit  = "geofenceExit"
	AlarmLowBattery    = "lowBattery"
	AlarmOverspeed     = "overspeed"
)

// DecodeError wraps any failure to turn a frame into a Packet. The frame is
// dropped by the caller; the connection stays open.
type DecodeError struct {
	Protocol string
	Frame    []byte
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decode: %v", e.Protocol, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err came from a codec rejecting a frame.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
