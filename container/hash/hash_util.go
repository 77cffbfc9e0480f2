package hash

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// HashFunc maps a key to a 64 bit hash. The table downcasts the result
// to 32 bits before masking directory bits off it.
type HashFunc func(key uint32) uint64

// DefaultHashFunc hashes the little endian bytes of the key with murmur3.
func DefaultHashFunc(key uint32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], key)
	return murmur3.Sum64(buf[:])
}

// DefaultKeyComparator orders keys as unsigned integers.
func DefaultKeyComparator(a uint32, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
