// Package teltonika implements the binary Teltonika FM protocol: the IMEI
// handshake, Codec 8 AVL record batches and Codec 12 GPRS commands.
package teltonika

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"fleettrack/internal/protocol"
)

const (
	codec8  = 0x08
	codec12 = 0x0C

	commandType  = 0x05
	responseType = 0x06

	minIMEI = 8
	maxIMEI = 17

	// preamble(4) + data length(4) ahead of the data field, CRC(4) after it.
	avlHeader  = 8
	avlTrailer = 4
	maxData    = 1280

	coordScale = 1e7
)

var (
	ErrPacketTooShort   = errors.New("data too short for Teltonika protocol")
	ErrInvalidLength    = errors.New("data length mismatch")
	ErrInvalidChecksum  = errors.New("invalid checksum")
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrInvalidIMEI      = errors.New("invalid IMEI handshake")
	ErrRecordCount      = errors.New("record counts disagree")
)

// Decoder is the Teltonika codec. It is stateless and safe for concurrent use.
type Decoder struct {
	VerifyChecksum bool
}

var _ protocol.Codec = (*Decoder)(nil)

func NewDecoder() *Decoder {
	return &Decoder{VerifyChecksum: true}
}

func (d *Decoder) Name() string { return "teltonika" }

// Match recognises the IMEI handshake every Teltonika session opens with.
func (d *Decoder) Match(prefix []byte) bool {
	return len(prefix) >= 3 && prefix[0] == 0 &&
		prefix[1] >= minIMEI && prefix[1] <= maxIMEI && isDigit(prefix[2])
}

// Split returns either an IMEI handshake or a complete AVL/GPRS packet.
// Unrecognised bytes are skipped one at a time.
func (d *Decoder) Split(buf []byte) ([]byte, int) {
	if len(buf) < 2 {
		return nil, 0
	}
	if buf[0] == 0 && buf[1] == 0 {
		if len(buf) < avlHeader {
			if !allZero(buf[:min(len(buf), 4)]) {
				return nil, 1
			}
			return nil, 0
		}
		if !allZero(buf[:4]) {
			return nil, 1
		}
		n := int(binary.BigEndian.Uint32(buf[4:8]))
		if n < 3 || n > maxData {
			return nil, 1
		}
		total := avlHeader + n + avlTrailer
		if len(buf) < total {
			return nil, 0
		}
		return buf[:total], total
	}

	n := int(binary.BigEndian.Uint16(buf[:2]))
	if n < minIMEI || n > maxIMEI {
		return nil, 1
	}
	for _, b := range buf[2:min(len(buf), 2+n)] {
		if !isDigit(b) {
			return nil, 1
		}
	}
	if len(buf) < 2+n {
		return nil, 0
	}
	return buf[:2+n], 2 + n
}

func (d *Decoder) Decode(data []byte) (protocol.Packet, error) {
	p, err := d.decode(data)
	if err != nil {
		return nil, &protocol.DecodeError{Protocol: d.Name(), Frame: data, Err: err}
	}
	return p, nil
}

// ChecksumOK reports whether the CRC of an AVL packet matches. Handshakes
// carry no checksum.
func (d *Decoder) ChecksumOK(frame []byte) bool {
	if len(frame) < avlHeader+avlTrailer || !allZero(frame[:4]) {
		return true
	}
	n := len(frame)
	return binary.BigEndian.Uint32(frame[n-4:]) == uint32(crc16IBM(frame[avlHeader:n-avlTrailer]))
}

func (d *Decoder) decode(data []byte) (protocol.Packet, error) {
	if len(data) < 2 {
		return nil, ErrPacketTooShort
	}
	if data[0] != 0 || data[1] != 0 {
		return decodeIMEI(data)
	}

	if len(data) < avlHeader+avlTrailer+3 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrPacketTooShort, len(data))
	}
	n := len(data)
	body := data[avlHeader : n-avlTrailer]
	if int(binary.BigEndian.Uint32(data[4:8])) != len(body) {
		return nil, fmt.Errorf("%w: header says %d, got %d", ErrInvalidLength, binary.BigEndian.Uint32(data[4:8]), len(body))
	}
	if d.VerifyChecksum && !d.ChecksumOK(data) {
		return nil, ErrInvalidChecksum
	}

	switch body[0] {
	case codec8:
		return decodeAVL(body)
	case codec12:
		return decodeResponse(body)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCodec, body[0])
	}
}

func decodeIMEI(data []byte) (*protocol.LoginPacket, error) {
	n := int(binary.BigEndian.Uint16(data[:2]))
	if n < minIMEI || n > maxIMEI || len(data) != 2+n {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidIMEI, n)
	}
	imei := data[2:]
	for _, b := range imei {
		if !isDigit(b) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIMEI, imei)
		}
	}
	return &protocol.LoginPacket{Header: protocol.Header{Identity: string(imei)}}, nil
}

// decodeAVL reads a Codec 8 data field. Records are reordered oldest first.
func decodeAVL(body []byte) (*protocol.LocationPacket, error) {
	count := int(body[1])
	if count == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrRecordCount)
	}
	if int(body[len(body)-1]) != count {
		return nil, fmt.Errorf("%w: %d and %d", ErrRecordCount, count, body[len(body)-1])
	}

	r := bytes.NewReader(body[2 : len(body)-1])
	fixes := make([]protocol.Fix, 0, count)
	for i := 0; i < count; i++ {
		fix, err := readRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		fixes = append(fixes, fix)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLength, r.Len())
	}

	sort.SliceStable(fixes, func(i, j int) bool { return fixes[i].Timestamp.Before(fixes[j].Timestamp) })
	return &protocol.LocationPacket{Fix: fixes[len(fixes)-1], History: fixes[:len(fixes)-1]}, nil
}

func readRecord(r *bytes.Reader) (protocol.Fix, error) {
	var head struct {
		TimestampMs uint64
		Priority    uint8
		Longitude   int32
		Latitude    int32
		Altitude    int16
		Angle       uint16
		Satellites  uint8
		Speed       uint16
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return protocol.Fix{}, fmt.Errorf("%w: gps element", ErrPacketTooShort)
	}
	if err := skipIO(r); err != nil {
		return protocol.Fix{}, err
	}

	lat := float64(head.Latitude) / coordScale
	lon := float64(head.Longitude) / coordScale
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return protocol.Fix{}, fmt.Errorf("invalid coordinate: lat=%.6f, lon=%.6f", lat, lon)
	}
	return protocol.Fix{
		Timestamp:  time.UnixMilli(int64(head.TimestampMs)).UTC(),
		Latitude:   lat,
		Longitude:  lon,
		SpeedKmh:   float64(head.Speed),
		CourseDeg:  float64(head.Angle),
		Satellites: int(head.Satellites),
		GPSValid:   head.Satellites > 0,
	}, nil
}

// skipIO steps over the IO element: event id, total count, then groups of
// 1, 2, 4 and 8 byte values each prefixed by its own count.
func skipIO(r *bytes.Reader) error {
	var hdr [2]byte
	if _, err := r.Read(hdr[:]); err != nil {
		return fmt.Errorf("%w: io header", ErrPacketTooShort)
	}
	for _, size := range []int{1, 2, 4, 8} {
		n, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: io count", ErrPacketTooShort)
		}
		skip := int(n) * (1 + size)
		if skip > r.Len() {
			return fmt.Errorf("%w: io values", ErrPacketTooShort)
		}
		if _, err := r.Seek(int64(skip), io.SeekCurrent); err != nil {
			return err
		}
	}
	return nil
}

func decodeResponse(body []byte) (*protocol.CommandReplyPacket, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("%w: codec 12 needs 8 bytes", ErrPacketTooShort)
	}
	if body[2] != responseType {
		return nil, fmt.Errorf("%w: codec 12 type 0x%02x", ErrUnsupportedCodec, body[2])
	}
	size := int(binary.BigEndian.Uint32(body[3:7]))
	if 7+size+1 != len(body) {
		return nil, fmt.Errorf("%w: response size %d", ErrInvalidLength, size)
	}
	return &protocol.CommandReplyPacket{Content: string(body[7 : 7+size])}, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
