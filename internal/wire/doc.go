// Package wire implements the framed binary protocol spoken by the Flint
// debug agent: command codes, status flags, the CRC-summed packet codec and
// the little-endian field helpers shared by every request builder.
package wire
