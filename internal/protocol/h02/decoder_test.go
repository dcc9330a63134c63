package h02

import (
	"errors"
	"testing"
	"time"

	"fleettrack/internal/protocol"
)

func TestH02Decoder(t *testing.T) {
	ts := time.Date(2022, 10, 15, 12, 34, 56, 0, time.UTC)

	tests := []struct {
		name    string
		data    []byte
		check   func(t *testing.T, p protocol.Packet)
		wantErr error
	}{
		{
			name: "valid info report",
			data: []byte("*HQ,123456789012345,V1,123456,A,2237.7514,N,11408.6214,E,6,2,151022,FFFFFBFF#"),
			check: func(t *testing.T, p protocol.Packet) {
				loc, ok := p.(*protocol.LocationPacket)
				if !ok {
					t.Fatalf("got %T, want *protocol.LocationPacket", p)
				}
				if loc.DeviceIdentity() != "123456789012345" {
					t.Errorf("identity = %q", loc.DeviceIdentity())
				}
				if !almostEqual(loc.Fix.Latitude, 22.62919, 0.0001) || !almostEqual(loc.Fix.Longitude, 114.14369, 0.0001) {
					t.Errorf("position = %f,%f", loc.Fix.Latitude, loc.Fix.Longitude)
				}
				if !almostEqual(loc.Fix.SpeedKmh, 11.112, 0.1) {
					t.Errorf("Speed = %v, want 11.112", loc.Fix.SpeedKmh)
				}
				if !loc.Fix.Timestamp.Equal(ts) {
					t.Errorf("Timestamp = %v, want %v", loc.Fix.Timestamp, ts)
				}
				if !loc.Fix.GPSValid {
					t.Error("GPSValid should be true")
				}
			},
		},
		{
			name: "southern and western hemisphere",
			data: []byte("*HQ,42,V1,123456,V,3352.1280,S,07037.5000,W,0,0,151022#"),
			check: func(t *testing.T, p protocol.Packet) {
				fix := p.(*protocol.LocationPacket).Fix
				if fix.Latitude >= 0 || fix.Longitude >= 0 || fix.GPSValid {
					t.Errorf("fix = %+v", fix)
				}
			},
		},
		{
			name: "valid alarm report",
			data: []byte("*HQ,123456789012345,V2,123456,A,2237.7514,N,11408.6214,E,6,2,151022,0#"),
			check: func(t *testing.T, p protocol.Packet) {
				alarm := p.(*protocol.AlarmPacket)
				if alarm.Name != protocol.AlarmSOS || alarm.Fix == nil {
					t.Errorf("alarm = %+v", alarm)
				}
			},
		},
		{
			name: "valid status report",
			data: []byte("*HQ,123456789012345,V3,5,45,CE#"),
			check: func(t *testing.T, p protocol.Packet) {
				hb := p.(*protocol.HeartbeatPacket)
				if hb.GSMSignal != 5 || hb.Voltage != 45 || !hb.Charging || !hb.EngineOn {
					t.Errorf("heartbeat = %+v", hb)
				}
			},
		},
		{
			name: "command reply",
			data: []byte("*HQ,123456789012345,V4,S20,OK#"),
			check: func(t *testing.T, p protocol.Packet) {
				if reply := p.(*protocol.CommandReplyPacket); reply.Content != "S20,OK" {
					t.Errorf("Content = %q", reply.Content)
				}
			},
		},
		{
			name:    "invalid header",
			data:    []byte("*XX,123456789012345,V1#"),
			wantErr: ErrInvalidHeader,
		},
		{
			name:    "packet too short",
			data:    []byte("*HQ#"),
			wantErr: ErrPacketTooShort,
		},
		{
			name:    "invalid message type",
			data:    []byte("*HQ,123456789012345,V9,A,2237.7514#"),
			wantErr: ErrInvalidMessageType,
		},
		{
			name:    "invalid coordinate format",
			data:    []byte("*HQ,123456789012345,V1,123456,A,INVALID,N,11408.6214,E,6,2,151022#"),
			wantErr: ErrInvalidCoordinate,
		},
		{
			name:    "invalid latitude range",
			data:    []byte("*HQ,123456789012345,V1,123456,A,9237.7514,N,11408.6214,E,6,2,151022#"),
			wantErr: ErrInvalidCoordinate,
		},
		{
			name:    "invalid timestamp",
			data:    []byte("*HQ,123456789012345,V1,253456,A,2237.7514,N,11408.6214,E,6,2,151022#"),
			wantErr: ErrInvalidTimestamp,
		},
		{
			name:    "malformed packet",
			data:    []byte("*HQ,123456789012345,V1,123456#"),
			wantErr: ErrInvalidFormat,
		},
	}

	decoder := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decoder.Decode(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				if !protocol.IsDecodeError(err) {
					t.Errorf("error %v should be a *protocol.DecodeError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestH02RoundTrip(t *testing.T) {
	fix := protocol.Fix{
		Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Latitude:  -33.8688,
		Longitude: 151.2093,
		SpeedKmh:  37.04,
		CourseDeg: 90,
		GPSValid:  true,
	}
	p, err := NewDecoder().Decode(EncodeLocation("868120145233604", fix))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := p.(*protocol.LocationPacket).Fix
	if !almostEqual(got.Latitude, fix.Latitude, 0.0001) || !almostEqual(got.Longitude, fix.Longitude, 0.0001) {
		t.Errorf("position = %f,%f", got.Latitude, got.Longitude)
	}
	if !almostEqual(got.SpeedKmh, fix.SpeedKmh, 0.05) || got.CourseDeg != 90 {
		t.Errorf("motion = %f km/h %f deg", got.SpeedKmh, got.CourseDeg)
	}
	if !got.Timestamp.Equal(fix.Timestamp) {
		t.Errorf("Timestamp = %v", got.Timestamp)
	}
}

func TestH02Split(t *testing.T) {
	d := NewDecoder()
	buf := []byte("junk*HQ,1,V3,5,45,C#*HQ,2,V3")
	frame, adv := d.Split(buf)
	if string(frame) != "*HQ,1,V3,5,45,C#" {
		t.Fatalf("frame = %q", frame)
	}
	frame, adv2 := d.Split(buf[adv:])
	if frame != nil || adv2 != 0 {
		t.Errorf("partial frame = %q, advance %d", frame, adv2)
	}
	if !d.Match([]byte("*HQ,")) || d.Match([]byte{0x78, 0x78}) {
		t.Error("Match() misidentifies protocol")
	}
}

func TestH02EncodeCommand(t *testing.T) {
	d := &Decoder{Now: func() time.Time { return time.Date(2024, 1, 1, 10, 20, 30, 0, time.UTC) }}
	tests := []struct {
		req  protocol.CommandRequest
		want string
	}{
		{protocol.CommandRequest{Kind: protocol.CommandLocate, Identity: "42"}, "*HQ,42,R1,102030#"},
		{protocol.CommandRequest{Kind: protocol.CommandLock, Identity: "42"}, "*HQ,42,S20,102030,1,1#"},
		{protocol.CommandRequest{Kind: protocol.CommandUnlock, Identity: "42"}, "*HQ,42,S20,102030,1,0#"},
		{protocol.CommandRequest{Kind: protocol.CommandRestart, Identity: "42"}, "*HQ,42,R7,102030#"},
		{protocol.CommandRequest{Kind: protocol.CommandSetInterval, Identity: "42", IntervalSec: 60}, "*HQ,42,D1,102030,60#"},
	}
	for _, tt := range tests {
		got, err := d.EncodeCommand(tt.req)
		if err != nil {
			t.Fatalf("EncodeCommand(%s) error = %v", tt.req.Kind, err)
		}
		if string(got) != tt.want {
			t.Errorf("EncodeCommand(%s) = %q, want %q", tt.req.Kind, got, tt.want)
		}
	}
	if d.EncodeAck(&protocol.LocationPacket{}) != nil {
		t.Error("h02 does not acknowledge frames")
	}
}

// Helper function for floating point comparison
func almostEqual(a, b, epsilon float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}
