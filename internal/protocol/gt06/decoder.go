package gt06

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"fleettrack/internal/protocol"
)

var startMarker = []byte{startByte, startByte}

// Decoder is the GT06 codec. It is stateless and safe for concurrent use.
type Decoder struct {
	// VerifyChecksum rejects frames whose CRC trailer does not match. Off by
	// default: field devices are known to send bad trailers.
	VerifyChecksum bool
}

var _ protocol.Codec = (*Decoder)(nil)

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Name() string { return "gt06" }

func (d *Decoder) Match(prefix []byte) bool {
	return len(prefix) >= 2 && prefix[0] == startByte && prefix[1] == startByte
}

// Split implements protocol.Codec. Bytes ahead of a start marker are skipped.
// A frame whose stop marker is wrong is still returned so Decode can reject
// it, but only the marker is consumed so a real frame hidden inside it is not
// lost.
func (d *Decoder) Split(buf []byte) ([]byte, int) {
	i := bytes.Index(buf, startMarker)
	if i < 0 {
		if n := len(buf); n > 0 && buf[n-1] == startByte {
			return nil, n - 1
		}
		return nil, len(buf)
	}
	if len(buf) < i+3 {
		return nil, i
	}
	length := int(buf[i+2])
	if length < lenOverhead {
		return nil, i + 2
	}
	total := length + lenOverhead
	if len(buf) < i+total {
		return nil, i
	}
	frame := buf[i : i+total]
	if frame[total-2] != endByte1 || frame[total-1] != endByte2 {
		return frame, i + 2
	}
	return frame, i + total
}

func (d *Decoder) Decode(data []byte) (protocol.Packet, error) {
	p, err := d.decode(data)
	if err != nil {
		return nil, &protocol.DecodeError{Protocol: d.Name(), Frame: data, Err: err}
	}
	return p, nil
}

// ChecksumOK reports whether the CRC trailer of a split frame matches. The
// server uses it to count mismatches while verification is off.
func (d *Decoder) ChecksumOK(frame []byte) bool { return ValidChecksum(frame) }

func (d *Decoder) decode(data []byte) (protocol.Packet, error) {
	if len(data) < frameOverhead {
		return nil, fmt.Errorf("%w: got %d bytes", ErrPacketTooShort, len(data))
	}
	if data[0] != startByte || data[1] != startByte {
		return nil, fmt.Errorf("%w: got 0x%02x%02x", ErrInvalidHeader, data[0], data[1])
	}
	n := len(data)
	if int(data[2])+lenOverhead != n {
		return nil, fmt.Errorf("%w: length byte %d, frame %d bytes", ErrInvalidLength, data[2], n)
	}
	if data[n-2] != endByte1 || data[n-1] != endByte2 {
		return nil, fmt.Errorf("%w: invalid end bytes", ErrMalformedPacket)
	}
	if d.VerifyChecksum && !ValidChecksum(data) {
		return nil, ErrInvalidChecksum
	}

	msgType := data[3]
	body := data[4 : n-6]
	header := protocol.Header{SerialNo: binary.BigEndian.Uint16(data[n-6 : n-4])}

	switch msgType {
	case loginMsg:
		return decodeLogin(header, body)
	case locationMsg:
		return decodeLocation(header, body)
	case heartbeatMsg:
		return decodeHeartbeat(header, body), nil
	case alarmMsg:
		return decodeAlarm(header, body)
	case commandReplyMsg:
		return decodeCommandReply(header, body)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidMessageType, msgType)
	}
}

func decodeLogin(h protocol.Header, body []byte) (*protocol.LoginPacket, error) {
	identity, err := decodeIdentity(body)
	if err != nil {
		return nil, err
	}
	h.Identity = identity
	return &protocol.LoginPacket{Header: h}, nil
}

func decodeLocation(h protocol.Header, body []byte) (*protocol.LocationPacket, error) {
	fix, err := decodeGPS(body)
	if err != nil {
		return nil, err
	}
	return &protocol.LocationPacket{Header: h, Fix: fix}, nil
}

// decodeGPS reads the 18-byte GPS block shared by location and alarm frames.
func decodeGPS(b []byte) (protocol.Fix, error) {
	if len(b) < gpsBlockLength {
		return protocol.Fix{}, fmt.Errorf("%w: gps block needs %d bytes, got %d",
			ErrPacketTooShort, gpsBlockLength, len(b))
	}
	ts, err := parseTimestamp(b[0:6])
	if err != nil {
		return protocol.Fix{}, err
	}

	lat := float64(binary.BigEndian.Uint32(b[7:11])) / coordScale
	lon := float64(binary.BigEndian.Uint32(b[11:15])) / coordScale
	flags := binary.BigEndian.Uint16(b[16:18])
	if flags&flagNorth == 0 {
		lat = -lat
	}
	if flags&flagWest != 0 {
		lon = -lon
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return protocol.Fix{}, err
	}

	return protocol.Fix{
		Timestamp:  ts,
		Satellites: int(b[6] & 0x0F),
		Latitude:   lat,
		Longitude:  lon,
		SpeedKmh:   float64(b[15]),
		CourseDeg:  float64(flags & courseMask),
		GPSValid:   flags&flagPositioned != 0,
	}, nil
}

func decodeHeartbeat(h protocol.Header, body []byte) *protocol.HeartbeatPacket {
	p := &protocol.HeartbeatPacket{Header: h}
	if len(body) >= 1 {
		p.TerminalInfo = body[0]
		p.EngineOn = body[0]&0x02 != 0
		p.Charging = body[0]&0x04 != 0
	}
	if len(body) >= 2 {
		p.Voltage = int(body[1])
	}
	if len(body) >= 3 {
		p.GSMSignal = int(body[2])
	}
	return p
}

// decodeAlarm accepts three layouts: the bare alarm code, a GPS block followed
// by the code, and the full field layout where the code sits after the LBS
// and status blocks.
func decodeAlarm(h protocol.Header, body []byte) (*protocol.AlarmPacket, error) {
	p := &protocol.AlarmPacket{Header: h}
	switch {
	case len(body) == 0:
		return nil, fmt.Errorf("%w: alarm without code", ErrPacketTooShort)
	case len(body) < gpsBlockLength:
		p.Code = body[0]
	default:
		fix, err := decodeGPS(body)
		if err != nil {
			return nil, err
		}
		p.Fix = &fix
		if len(body) > fullAlarmCodeOffset {
			p.Code = body[fullAlarmCodeOffset]
		} else if len(body) > gpsBlockLength {
			p.Code = body[gpsBlockLength]
		} else {
			return nil, fmt.Errorf("%w: alarm without code", ErrMalformedPacket)
		}
	}
	p.Name = alarmName(p.Code)
	return p, nil
}

func decodeCommandReply(h protocol.Header, body []byte) (*protocol.CommandReplyPacket, error) {
	if len(body) < 5 {
		return nil, fmt.Errorf("%w: command reply needs 5 bytes", ErrPacketTooShort)
	}
	cmdLen := int(body[0])
	if cmdLen < 4 || len(body) < 1+cmdLen {
		return nil, fmt.Errorf("%w: command length %d, body %d", ErrInvalidLength, cmdLen, len(body))
	}
	return &protocol.CommandReplyPacket{
		Header:     h,
		ServerFlag: binary.BigEndian.Uint32(body[1:5]),
		Content:    string(body[5 : 1+cmdLen]),
	}, nil
}

func encodeCoordinate(v float64) uint32 {
	return uint32(math.Round(math.Abs(v) * coordScale))
}
