package gt06

import (
	"encoding/binary"
	"fmt"

	"fleettrack/internal/protocol"
)

// frame wraps a message type and body into a complete GT06 frame with serial,
// CRC and stop marker.
func frame(msgType byte, body []byte, serial uint16) []byte {
	length := len(body) + lenOverhead
	out := make([]byte, 0, length+lenOverhead)
	out = append(out, startByte, startByte, byte(length), msgType)
	out = append(out, body...)
	out = binary.BigEndian.AppendUint16(out, serial)
	out = binary.BigEndian.AppendUint16(out, crcITU(out[2:]))
	return append(out, endByte1, endByte2)
}

// EncodeAck builds the server acknowledgement. It mirrors the inbound serial so
// the device can correlate it.
func EncodeAck(serial uint16, msgType byte) []byte {
	return frame(msgType, nil, serial)
}

func (d *Decoder) EncodeAck(p protocol.Packet) []byte {
	switch p.(type) {
	case *protocol.LoginPacket:
		return EncodeAck(p.Serial(), loginMsg)
	case *protocol.LocationPacket:
		return EncodeAck(p.Serial(), locationMsg)
	case *protocol.HeartbeatPacket:
		return EncodeAck(p.Serial(), heartbeatMsg)
	case *protocol.AlarmPacket:
		return EncodeAck(p.Serial(), alarmMsg)
	case *protocol.CommandReplyPacket:
		return nil
	default:
		return nil
	}
}

// CommandText is the ASCII control string carried inside a command frame.
func CommandText(req protocol.CommandRequest) (string, error) {
	switch req.Kind {
	case protocol.CommandLocate:
		return "WHERE#", nil
	case protocol.CommandLock:
		return "RELAY,1#", nil
	case protocol.CommandUnlock:
		return "RELAY,0#", nil
	case protocol.CommandRestart:
		return "RESET#", nil
	case protocol.CommandSetInterval:
		if req.IntervalSec <= 0 {
			return "", fmt.Errorf("%w: interval must be positive, got %d",
				protocol.ErrUnknownCommand, req.IntervalSec)
		}
		return fmt.Sprintf("TIMER,%d#", req.IntervalSec), nil
	default:
		return "", fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, req.Kind)
	}
}

// EncodeCommand builds a 0x80 server command frame:
// command length(1) + server flag(4) + ASCII content.
func (d *Decoder) EncodeCommand(req protocol.CommandRequest) ([]byte, error) {
	text, err := CommandText(req)
	if err != nil {
		return nil, err
	}
	body := make([]byte, 0, 5+len(text))
	body = append(body, byte(4+len(text)))
	body = binary.BigEndian.AppendUint32(body, req.ServerFlag)
	body = append(body, text...)
	return frame(commandMsg, body, req.Serial), nil
}

// The functions below build device-side frames. The simulator and tests use
// them to speak to the server the way a terminal would.

func EncodeLogin(identity string, serial uint16) ([]byte, error) {
	id, err := encodeIdentity(identity)
	if err != nil {
		return nil, err
	}
	return frame(loginMsg, id, serial), nil
}

func EncodeLocation(fix protocol.Fix, serial uint16) []byte {
	return frame(locationMsg, appendGPS(nil, fix), serial)
}

func EncodeHeartbeat(terminalInfo byte, voltage, gsm int, serial uint16) []byte {
	return frame(heartbeatMsg, []byte{terminalInfo, byte(voltage), byte(gsm), 0x00, 0x02}, serial)
}

// EncodeAlarm builds an alarm frame. A nil fix produces the bare-code layout.
func EncodeAlarm(code byte, fix *protocol.Fix, serial uint16) []byte {
	var body []byte
	if fix != nil {
		body = appendGPS(body, *fix)
	}
	body = append(body, code)
	return frame(alarmMsg, body, serial)
}

func EncodeCommandReply(serverFlag uint32, content string, serial uint16) []byte {
	body := make([]byte, 0, 5+len(content))
	body = append(body, byte(4+len(content)))
	body = binary.BigEndian.AppendUint32(body, serverFlag)
	body = append(body, content...)
	return frame(commandReplyMsg, body, serial)
}

func appendGPS(dst []byte, fix protocol.Fix) []byte {
	dst = appendTimestamp(dst, fix.Timestamp)
	dst = append(dst, 0xC0|byte(fix.Satellites&0x0F))
	dst = binary.BigEndian.AppendUint32(dst, encodeCoordinate(fix.Latitude))
	dst = binary.BigEndian.AppendUint32(dst, encodeCoordinate(fix.Longitude))
	dst = append(dst, byte(fix.SpeedKmh))

	flags := uint16(fix.CourseDeg) & courseMask
	if fix.Latitude >= 0 {
		flags |= flagNorth
	}
	if fix.Longitude < 0 {
		flags |= flagWest
	}
	if fix.GPSValid {
		flags |= flagPositioned
	}
	return binary.BigEndian.AppendUint16(dst, flags)
}
