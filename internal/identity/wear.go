package identity

import (
	"encoding/binary"
	"math"
)

// WearFromUint32 reinterprets the 4 bytes of a GC-reported wear integer,
// packed big-endian, as a big-endian IEEE-754 single.
func WearFromUint32(raw uint32) float32 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], raw)
	bits := binary.BigEndian.Uint32(buf[:])
	return math.Float32frombits(bits)
}

// SignedToUnsigned reinterprets a signed 64-bit integer as unsigned via
// (signed + 2^63) XOR 2^63, the convention under which the `ms` column
// (owner steam-id or market-listing id) is stored.
func SignedToUnsigned(signed int64) uint64 {
	const bias = uint64(1) << 63
	return (uint64(signed) + bias) ^ bias
}
