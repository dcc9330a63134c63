package gt06

import "encoding/binary"

// crcITU computes CRC-16/X-25, the checksum GT06 terminals put on every frame.
func crcITU(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}

// ValidChecksum reports whether the 2-byte trailer of frame matches the CRC
// of its length..serial span. The frame must already be length-checked.
func ValidChecksum(frame []byte) bool {
	n := len(frame)
	if n < frameOverhead {
		return false
	}
	want := binary.BigEndian.Uint16(frame[n-4 : n-2])
	return crcITU(frame[2:n-4]) == want
}
