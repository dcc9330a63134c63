package gt06

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleettrack/internal/protocol"
)

// Common errors
var (
	ErrInvalidHeader      = errors.New("invalid GT06 protocol header")
	ErrPacketTooShort     = errors.New("data too short for GT06 protocol")
	ErrInvalidChecksum    = errors.New("invalid checksum")
	ErrInvalidCoordinate  = errors.New("invalid coordinate value")
	ErrInvalidTimestamp   = errors.New("invalid timestamp values")
	ErrInvalidLength      = errors.New("packet length mismatch")
	ErrInvalidMessageType = errors.New("unsupported message type")
	ErrMalformedPacket    = errors.New("malformed packet structure")
)

// parseTimestamp reads the 6-byte YY MM DD hh mm ss block. Values are plain
// binary, not BCD.
func parseTimestamp(b []byte) (time.Time, error) {
	if len(b) < 6 {
		return time.Time{}, ErrPacketTooShort
	}
	year := 2000 + int(b[0])
	month := int(b[1])
	day := int(b[2])
	hour := int(b[3])
	minute := int(b[4])
	second := int(b[5])

	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: %02d-%02d-%02d %02d:%02d:%02d",
			ErrInvalidTimestamp, b[0], month, day, hour, minute, second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

func appendTimestamp(dst []byte, t time.Time) []byte {
	t = t.UTC()
	return append(dst,
		byte(t.Year()-2000), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
}

// decodeIdentity turns the 8-byte BCD terminal id into the 15-digit identity.
func decodeIdentity(b []byte) (string, error) {
	if len(b) < 8 {
		return "", ErrPacketTooShort
	}
	s := hex.EncodeToString(b[:8])
	if strings.Trim(s, "0123456789") != "" {
		return "", fmt.Errorf("%w: non-decimal terminal id %s", ErrMalformedPacket, s)
	}
	if len(s) == 16 && s[0] == '0' {
		s = s[1:]
	}
	return s, nil
}

func encodeIdentity(identity string) ([]byte, error) {
	if len(identity) > 16 || strings.Trim(identity, "0123456789") != "" {
		return nil, fmt.Errorf("%w: identity %q", ErrMalformedPacket, identity)
	}
	padded := strings.Repeat("0", 16-len(identity)) + identity
	return hex.DecodeString(padded)
}

// alarmName returns a human-readable name for alarm types
func alarmName(code byte) string {
	switch code {
	case sosAlarm:
		return protocol.AlarmSOS
	case powerCutAlarm:
		return protocol.AlarmPowerCut
	case vibrationAlarm:
		return protocol.AlarmVibration
	case fenceInAlarm:
		return protocol.AlarmGeofenceEnter
	case fenceOutAlarm:
		return protocol.AlarmGeofenceExit
	case lowBatteryAlarm:
		return protocol.AlarmLowBattery
	case overspeedAlarm:
		return protocol.AlarmOverspeed
	default:
		return fmt.Sprintf("unknown_%02x", code)
	}
}

// ValidateCoordinates checks if coordinates are within valid ranges
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lat=%.6f, lon=%.6f",
			ErrInvalidCoordinate, lat, lon)
	}
	return nil
}
