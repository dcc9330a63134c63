// Package h02 implements the ASCII H02 tracker protocol. Frames look like
//
//	*HQ,<identity>,<type>,<fields...>#
//
// and carry the device identity on every frame, so there is no login step.
package h02

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fleettrack/internal/protocol"
)

// H02 protocol constants
const (
	startSequence = "*HQ"
	minLength     = 12
	maxFrame      = 512

	// H02 protocol message types
	infoReport   = "V1"
	alarmReport  = "V2"
	statusReport = "V3"
	replyReport  = "V4"

	// H02 alarm types
	sosAlarm        = "0"
	powerCutAlarm   = "1"
	lowBatteryAlarm = "2"
	overspeedAlarm  = "3"
	geoFenceAlarm   = "4"

	knotsToKmh = 1.852
)

// Common errors
var (
	ErrInvalidHeader      = errors.New("invalid H02 protocol header")
	ErrPacketTooShort     = errors.New("data too short for H02 protocol")
	ErrInvalidFormat      = errors.New("invalid H02 data format")
	ErrInvalidCoordinate  = errors.New("invalid coordinate value")
	ErrInvalidTimestamp   = errors.New("invalid timestamp values")
	ErrInvalidMessageType = errors.New("unsupported message type")
)

// Decoder is the H02 codec.
type Decoder struct {
	// Now stamps outbound commands. Defaults to time.Now.
	Now func() time.Time
}

var _ protocol.Codec = (*Decoder)(nil)

func NewDecoder() *Decoder {
	return &Decoder{Now: time.Now}
}

func (d *Decoder) Name() string { return "h02" }

func (d *Decoder) Match(prefix []byte) bool {
	return bytes.HasPrefix(prefix, []byte(startSequence))
}

// Split returns the next '*'..'#' frame. Oversized frames without a
// terminator are abandoned one byte at a time.
func (d *Decoder) Split(buf []byte) ([]byte, int) {
	i := bytes.IndexByte(buf, '*')
	if i < 0 {
		return nil, len(buf)
	}
	end := bytes.IndexByte(buf[i:], '#')
	if end < 0 {
		if len(buf)-i > maxFrame {
			return nil, i + 1
		}
		return nil, i
	}
	return buf[i : i+end+1], i + end + 1
}

func (d *Decoder) Decode(data []byte) (protocol.Packet, error) {
	p, err := d.decode(data)
	if err != nil {
		return nil, &protocol.DecodeError{Protocol: d.Name(), Frame: data, Err: err}
	}
	return p, nil
}

func (d *Decoder) decode(data []byte) (protocol.Packet, error) {
	if len(data) < minLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrPacketTooShort, len(data))
	}
	if !bytes.HasPrefix(data, []byte(startSequence)) {
		return nil, ErrInvalidHeader
	}

	parts := strings.Split(strings.TrimSuffix(string(data), "#"), ",")
	if len(parts) < 3 {
		return nil, ErrInvalidFormat
	}
	h := protocol.Header{Identity: parts[1]}
	if h.Identity == "" || strings.Trim(h.Identity, "0123456789") != "" {
		return nil, fmt.Errorf("%w: identity %q", ErrInvalidFormat, parts[1])
	}

	switch parts[2] {
	case infoReport:
		fix, err := decodeFix(parts)
		if err != nil {
			return nil, err
		}
		return &protocol.LocationPacket{Header: h, Fix: fix}, nil
	case alarmReport:
		return decodeAlarmReport(h, parts)
	case statusReport:
		return decodeStatusReport(h, parts)
	case replyReport:
		return &protocol.CommandReplyPacket{Header: h, Content: strings.Join(parts[3:], ",")}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMessageType, parts[2])
	}
}

// decodeFix reads fields 3..11: time, validity, lat, N/S, lon, E/W, speed
// in knots, course, date.
func decodeFix(parts []string) (protocol.Fix, error) {
	if len(parts) < 12 {
		return protocol.Fix{}, fmt.Errorf("%w: location needs 12 fields, got %d", ErrInvalidFormat, len(parts))
	}
	ts, err := time.Parse("150405 020106", parts[3]+" "+parts[11])
	if err != nil {
		return protocol.Fix{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}

	lat, err := parseCoordinate(parts[5], 2)
	if err != nil {
		return protocol.Fix{}, err
	}
	if parts[6] == "S" {
		lat = -lat
	}
	lon, err := parseCoordinate(parts[7], 3)
	if err != nil {
		return protocol.Fix{}, err
	}
	if parts[8] == "W" {
		lon = -lon
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return protocol.Fix{}, fmt.Errorf("%w: lat=%.6f, lon=%.6f", ErrInvalidCoordinate, lat, lon)
	}

	fix := protocol.Fix{
		Timestamp: ts.UTC(),
		Latitude:  lat,
		Longitude: lon,
		GPSValid:  parts[4] == "A",
	}
	if speed, err := strconv.ParseFloat(parts[9], 64); err == nil {
		fix.SpeedKmh = speed * knotsToKmh
	}
	if course, err := strconv.ParseFloat(parts[10], 64); err == nil {
		fix.CourseDeg = course
	}
	return fix, nil
}

func decodeAlarmReport(h protocol.Header, parts []string) (*protocol.AlarmPacket, error) {
	fix, err := decodeFix(parts)
	if err != nil {
		return nil, err
	}
	if len(parts) < 13 {
		return nil, fmt.Errorf("%w: alarm without code", ErrInvalidFormat)
	}
	code, err := strconv.ParseUint(parts[12], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: alarm code %q", ErrInvalidFormat, parts[12])
	}
	return &protocol.AlarmPacket{
		Header: h,
		Code:   byte(code),
		Name:   alarmName(parts[12]),
		Fix:    &fix,
	}, nil
}

func decodeStatusReport(h protocol.Header, parts []string) (*protocol.HeartbeatPacket, error) {
	p := &protocol.HeartbeatPacket{Header: h}
	if len(parts) > 4 {
		p.GSMSignal = int(parseGSMSignal(parts[3]))
		p.Voltage = int(parseBatteryLevel(parts[4]))
	}
	if len(parts) > 5 {
		p.Charging = strings.Contains(parts[5], "C")
		p.EngineOn = strings.Contains(parts[5], "E")
	}
	return p, nil
}

func alarmName(code string) string {
	switch code {
	case sosAlarm:
		return protocol.AlarmSOS
	case powerCutAlarm:
		return protocol.AlarmPowerCut
	case lowBatteryAlarm:
		return protocol.AlarmLowBattery
	case overspeedAlarm:
		return protocol.AlarmOverspeed
	case geoFenceAlarm:
		return "geofence"
	default:
		return fmt.Sprintf("unknown_%s", code)
	}
}

// Parse GSM signal strength (0-31)
func parseGSMSignal(signal string) uint8 {
	if val, err := strconv.ParseUint(signal, 10, 8); err == nil {
		if val > 31 {
			val = 31
		}
		return uint8(val)
	}
	return 0
}

// Parse battery level (0-100)
func parseBatteryLevel(battery string) uint8 {
	if val, err := strconv.ParseUint(battery, 10, 8); err == nil {
		if val > 100 {
			val = 100
		}
		return uint8(val)
	}
	return 0
}

// parseCoordinate converts DDMM.MMMM (degLen 2) or DDDMM.MMMM (degLen 3) to
// decimal degrees.
func parseCoordinate(coord string, degLen int) (float64, error) {
	if len(coord) < degLen+2 {
		return 0, fmt.Errorf("%w: %q too short", ErrInvalidCoordinate, coord)
	}
	degrees, err := strconv.ParseFloat(coord[:degLen], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
	}
	minutes, err := strconv.ParseFloat(coord[degLen:], 64)
	if err != nil || minutes >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
	}
	return degrees + minutes/60.0, nil
}

// EncodeAck returns nil: H02 terminals do not expect acknowledgements.
func (d *Decoder) EncodeAck(protocol.Packet) []byte { return nil }

// EncodeCommand builds a *HQ,<identity>,<cmd>,<hhmmss>[,args]# frame.
func (d *Decoder) EncodeCommand(req protocol.CommandRequest) ([]byte, error) {
	if req.Identity == "" {
		return nil, fmt.Errorf("%w: h02 command needs an identity", ErrInvalidFormat)
	}
	var body string
	switch req.Kind {
	case protocol.CommandLocate:
		body = "R1"
	case protocol.CommandLock:
		body = "S20,%s,1,1"
	case protocol.CommandUnlock:
		body = "S20,%s,1,0"
	case protocol.CommandRestart:
		body = "R7"
	case protocol.CommandSetInterval:
		if req.IntervalSec <= 0 {
			return nil, fmt.Errorf("%w: interval must be positive, got %d",
				protocol.ErrUnknownCommand, req.IntervalSec)
		}
		body = "D1,%s," + strconv.Itoa(req.IntervalSec)
	default:
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, req.Kind)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	stamp := now().UTC().Format("150405")
	if strings.Contains(body, "%s") {
		body = fmt.Sprintf(body, stamp)
	} else {
		body += "," + stamp
	}
	return []byte(fmt.Sprintf("*HQ,%s,%s#", req.Identity, body)), nil
}

// EncodeLocation builds a V1 frame the way a terminal sends it. Used by the
// simulator and tests.
func EncodeLocation(identity string, fix protocol.Fix) []byte {
	return []byte(fmt.Sprintf("*HQ,%s,%s,%s#", identity, infoReport, fixFields(fix)))
}

// EncodeAlarm builds a V2 frame.
func EncodeAlarm(identity string, fix protocol.Fix, code int) []byte {
	return []byte(fmt.Sprintf("*HQ,%s,%s,%s,%d#", identity, alarmReport, fixFields(fix), code))
}

func fixFields(fix protocol.Fix) string {
	valid, ns, ew := "V", "N", "E"
	if fix.GPSValid {
		valid = "A"
	}
	lat, lon := fix.Latitude, fix.Longitude
	if lat < 0 {
		ns, lat = "S", -lat
	}
	if lon < 0 {
		ew, lon = "W", -lon
	}
	ts := fix.Timestamp.UTC()
	return fmt.Sprintf("%s,%s,%s,%s,%s,%s,%.2f,%.0f,%s",
		ts.Format("150405"), valid,
		formatCoordinate(lat, 2), ns,
		formatCoordinate(lon, 3), ew,
		fix.SpeedKmh/knotsToKmh, fix.CourseDeg,
		ts.Format("020106"))
}

func formatCoordinate(v float64, degLen int) string {
	deg := int(v)
	minutes := (v - float64(deg)) * 60
	return fmt.Sprintf("%0*d%07.4f", degLen, deg, minutes)
}
