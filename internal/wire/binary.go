package wire

import (
	"encoding/binary"
	"fmt"
)

// Checksum16 returns the additive checksum of b: the sum of all bytes
// modulo 2^16. The agent uses this in place of a polynomial CRC.
func Checksum16(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

// AppendUint16 appends v in little-endian order.
func AppendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

// AppendUint32 appends v in little-endian order.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// AppendUint64 appends v in little-endian order.
func AppendUint64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

// Uint16At reads a little-endian u16 at off.
func Uint16At(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

// Uint32At reads a little-endian u32 at off.
func Uint32At(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

// Uint64At reads a little-endian u64 at off.
func Uint64At(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}

// Int64From assembles a signed 64-bit value from its halves. The low word
// is taken as-is; only the high word is shifted.
func Int64From(lo, hi uint32) int64 {
	return int64(uint64(lo) | uint64(hi)<<32)
}

// WireStringSize returns the encoded size of s as a wire string:
// len:u16 + crc:u16 + bytes + NUL.
func WireStringSize(s string) int {
	return 4 + len(s) + 1
}

// AppendWireString appends s framed as the agent expects:
// len:u16 | crc16:u16 | utf8 bytes | 0x00. The CRC is the additive sum of
// the string bytes.
func AppendWireString(b []byte, s string) []byte {
	b = AppendUint16(b, uint16(len(s)))
	b = AppendUint16(b, Checksum16([]byte(s)))
	b = append(b, s...)
	return append(b, 0)
}

// ParseWireString parses a wire string at the start of b and returns the
// string and the number of bytes consumed.
func ParseWireString(b []byte) (string, int, error) {
	if len(b) < 5 {
		return "", 0, fmt.Errorf("wire string: truncated header (%d bytes)", len(b))
	}
	n := int(Uint16At(b, 0))
	total := 4 + n + 1
	if len(b) < total {
		return "", 0, fmt.Errorf("wire string: need %d bytes, have %d", total, len(b))
	}
	s := b[4 : 4+n]
	if got, want := Checksum16(s), Uint16At(b, 2); got != want {
		return "", 0, fmt.Errorf("wire string: checksum 0x%04X, want 0x%04X", got, want)
	}
	if b[4+n] != 0 {
		return "", 0, fmt.Errorf("wire string: missing terminator")
	}
	return string(s), total, nil
}

// ParsePaddedString parses the len:u16 | pad:u16 | bytes layout used in
// stack-trace and exception responses. When nulTerminated is set a trailing
// 0x00 is consumed as well. Returns the string and bytes consumed.
func ParsePaddedString(b []byte, nulTerminated bool) (string, int, error) {
	if len(b) < 4 {
		return "", 0, fmt.Errorf("padded string: truncated header (%d bytes)", len(b))
	}
	n := int(Uint16At(b, 0))
	total := 4 + n
	if nulTerminated {
		total++
	}
	if len(b) < total {
		return "", 0, fmt.Errorf("padded string: need %d bytes, have %d", total, len(b))
	}
	return string(b[4 : 4+n]), total, nil
}
