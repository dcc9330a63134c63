package teltonika

import (
	"encoding/binary"
	"fmt"

	"fleettrack/internal/protocol"
)

// crc16IBM is CRC-16/ARC, computed over the data field of every AVL and GPRS
// packet.
func crc16IBM(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func wrap(body []byte) []byte {
	out := make([]byte, 0, avlHeader+len(body)+avlTrailer)
	out = append(out, 0, 0, 0, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return binary.BigEndian.AppendUint32(out, uint32(crc16IBM(body)))
}

// EncodeAck accepts the handshake with 0x01 and answers a batch with the
// number of records taken.
func (d *Decoder) EncodeAck(p protocol.Packet) []byte {
	switch p := p.(type) {
	case *protocol.LoginPacket:
		return []byte{0x01}
	case *protocol.LocationPacket:
		return binary.BigEndian.AppendUint32(nil, uint32(len(p.History)+1))
	default:
		return nil
	}
}

func CommandText(req protocol.CommandRequest) (string, error) {
	switch req.Kind {
	case protocol.CommandLocate:
		return "getgps", nil
	case protocol.CommandLock:
		return "setdigout 1", nil
	case protocol.CommandUnlock:
		return "setdigout 0", nil
	case protocol.CommandRestart:
		return "cpureset", nil
	case protocol.CommandSetInterval:
		if req.IntervalSec <= 0 {
			return "", fmt.Errorf("%w: interval must be positive, got %d",
				protocol.ErrUnknownCommand, req.IntervalSec)
		}
		return fmt.Sprintf("setparam 10050:%d", req.IntervalSec), nil
	default:
		return "", fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, req.Kind)
	}
}

// EncodeCommand builds a Codec 12 command packet.
func (d *Decoder) EncodeCommand(req protocol.CommandRequest) ([]byte, error) {
	text, err := CommandText(req)
	if err != nil {
		return nil, err
	}
	return wrap(gprsBody(commandType, text)), nil
}

func gprsBody(kind byte, text string) []byte {
	body := []byte{codec12, 0x01, kind}
	body = binary.BigEndian.AppendUint32(body, uint32(len(text)))
	body = append(body, text...)
	return append(body, 0x01)
}

// Device-side encoders used by the simulator and tests.

func EncodeLogin(imei string) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(imei)))
	return append(out, imei...)
}

// EncodeRecords builds a Codec 8 batch with one record per fix and no IO
// values.
func EncodeRecords(fixes ...protocol.Fix) []byte {
	body := []byte{codec8, byte(len(fixes))}
	for _, f := range fixes {
		body = binary.BigEndian.AppendUint64(body, uint64(f.Timestamp.UnixMilli()))
		body = append(body, 1)
		body = binary.BigEndian.AppendUint32(body, uint32(int32(f.Longitude*coordScale)))
		body = binary.BigEndian.AppendUint32(body, uint32(int32(f.Latitude*coordScale)))
		body = binary.BigEndian.AppendUint16(body, 0)
		body = binary.BigEndian.AppendUint16(body, uint16(f.CourseDeg))
		body = append(body, byte(f.Satellites))
		body = binary.BigEndian.AppendUint16(body, uint16(f.SpeedKmh))
		// event id, total, and four empty groups
		body = append(body, 0, 0, 0, 0, 0, 0)
	}
	body = append(body, byte(len(fixes)))
	return wrap(body)
}

func EncodeResponse(content string) []byte {
	return wrap(gprsBody(responseType, content))
}
