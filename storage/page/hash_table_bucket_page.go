package page

import (
	pair "github.com/notEpsilon/go-pair"

	"github.com/medakadb/medaka/common"
)

// KeyComparator compares two keys and returns a value less than, equal
// to, or greater than zero.
type KeyComparator func(a uint32, b uint32) int

type HashTablePair struct {
	Key   uint32
	Value uint32
}

const sizeOfHashTablePair = 8
const BucketArraySize = 4 * common.PageSize / (4*sizeOfHashTablePair + 1)

/**
 * Store indexed key and value together within bucket page. Supports
 * non-unique keys.
 *
 * Bucket page format (pairs sit in whichever slot Insert picked; the
 * slots are not sorted by key):
 *  ----------------------------------------------------------------
 * | KEY(1) + VALUE(1) | KEY(2) + VALUE(2) | ... | KEY(n) + VALUE(n)
 *  ----------------------------------------------------------------
 *
 *  Here '+' means concatenation.
 * The above is prefixed by the occupied bitmap and the readable bitmap.
 * An occupied slot has held a pair at some point since the last reset;
 * a readable slot holds a live pair right now.
 */
type HashTableBucketPage struct {
	occupied [(BucketArraySize-1)/8 + 1]byte
	readable [(BucketArraySize-1)/8 + 1]byte
	array    [BucketArraySize]HashTablePair
}

// GetValue collects the values of every readable pair whose key compares
// equal to key. Duplicate keys are allowed, so the result is a multi-set.
func (page *HashTableBucketPage) GetValue(key uint32, cmp KeyComparator) []uint32 {
	result := make([]uint32, 0)
	for i := uint32(0); i < BucketArraySize; i++ {
		if page.IsReadable(i) && cmp(key, page.array[i].Key) == 0 {
			result = append(result, page.array[i].Value)
		}
	}
	return result
}

// Insert puts the (key, value) pair into the first slot that is not
// readable, tombstones included. An exact duplicate pair is rejected.
func (page *HashTableBucketPage) Insert(key uint32, value uint32, cmp KeyComparator) bool {
	freeSlot := int64(-1)
	for i := uint32(0); i < BucketArraySize; i++ {
		if page.IsReadable(i) {
			if cmp(key, page.array[i].Key) == 0 && value == page.array[i].Value {
				return false
			}
		} else if freeSlot == -1 {
			freeSlot = int64(i)
		}
	}

	if freeSlot == -1 {
		return false
	}
	page.array[freeSlot] = HashTablePair{key, value}
	page.SetOccupied(uint32(freeSlot))
	page.SetReadable(uint32(freeSlot))
	return true
}

// Remove clears the readable bit of the first readable slot holding the
// exact (key, value) pair. The occupied bit stays set as a tombstone.
func (page *HashTableBucketPage) Remove(key uint32, value uint32, cmp KeyComparator) bool {
	for i := uint32(0); i < BucketArraySize; i++ {
		if page.IsReadable(i) {
			if cmp(key, page.array[i].Key) == 0 && value == page.array[i].Value {
				page.RemoveAt(i)
				return true
			}
		}
	}
	return false
}

// KeyAt returns the key at the index in the bucket
func (page *HashTableBucketPage) KeyAt(bucketIdx uint32) uint32 {
	return page.array[bucketIdx].Key
}

// ValueAt returns the value at the index in the bucket
func (page *HashTableBucketPage) ValueAt(bucketIdx uint32) uint32 {
	return page.array[bucketIdx].Value
}

// RemoveAt clears the readable bit of the slot, leaving occupied set
func (page *HashTableBucketPage) RemoveAt(bucketIdx uint32) {
	page.readable[bucketIdx/8] &= ^(1 << (bucketIdx % 8))
}

// IsOccupied checks whether the slot has held a pair since the last reset
func (page *HashTableBucketPage) IsOccupied(bucketIdx uint32) bool {
	return (page.occupied[bucketIdx/8] & (1 << (bucketIdx % 8))) != 0
}

func (page *HashTableBucketPage) SetOccupied(bucketIdx uint32) {
	page.occupied[bucketIdx/8] |= (1 << (bucketIdx % 8))
}

// IsReadable checks whether the slot holds a live pair
func (page *HashTableBucketPage) IsReadable(bucketIdx uint32) bool {
	return (page.readable[bucketIdx/8] & (1 << (bucketIdx % 8))) != 0
}

func (page *HashTableBucketPage) SetReadable(bucketIdx uint32) {
	page.readable[bucketIdx/8] |= (1 << (bucketIdx % 8))
}

// IsFull checks whether every slot in the bucket is readable. Whole
// bytes of the bitmap are checked first, then the tail bits.
func (page *HashTableBucketPage) IsFull() bool {
	numFullBytes := BucketArraySize / 8
	for i := 0; i < numFullBytes; i++ {
		if page.readable[i] != 0xff {
			return false
		}
	}

	numRemainBits := BucketArraySize % 8
	if numRemainBits > 0 {
		c := page.readable[numFullBytes]
		for i := 0; i < numRemainBits; i++ {
			if (c & 1) != 1 {
				return false
			}
			c >>= 1
		}
	}

	return true
}

// NumReadable returns the number of live pairs in the bucket
func (page *HashTableBucketPage) NumReadable() uint32 {
	cnt := uint32(0)

	numFullBytes := BucketArraySize / 8
	for i := 0; i < numFullBytes; i++ {
		c := page.readable[i]
		for j := 0; j < 8; j++ {
			if (c & 1) == 1 {
				cnt++
			}
			c >>= 1
		}
	}

	numRemainBits := BucketArraySize % 8
	if numRemainBits > 0 {
		c := page.readable[numFullBytes]
		for i := 0; i < numRemainBits; i++ {
			if (c & 1) == 1 {
				cnt++
			}
			c >>= 1
		}
	}

	return cnt
}

// IsEmpty checks whether the bucket holds no live pair
func (page *HashTableBucketPage) IsEmpty() bool {
	for i := 0; i < len(page.readable); i++ {
		if page.readable[i] != 0 {
			return false
		}
	}
	return true
}

// GetArrayCopy snapshots the live pairs of the bucket. The copy is what
// a split redistributes after the bucket is reset.
func (page *HashTableBucketPage) GetArrayCopy() []pair.Pair[uint32, uint32] {
	copied := make([]pair.Pair[uint32, uint32], 0, page.NumReadable())
	for i := uint32(0); i < BucketArraySize; i++ {
		if page.IsReadable(i) {
			copied = append(copied, pair.Pair[uint32, uint32]{First: page.array[i].Key, Second: page.array[i].Value})
		}
	}
	return copied
}

// Reset clears the bitmaps and the pair array
func (page *HashTableBucketPage) Reset() {
	for i := 0; i < len(page.occupied); i++ {
		page.occupied[i] = 0
	}
	for i := 0; i < len(page.readable); i++ {
		page.readable[i] = 0
	}
	for i := 0; i < len(page.array); i++ {
		page.array[i] = HashTablePair{}
	}
}

func (page *HashTableBucketPage) PrintBucket() {
	size := uint32(0)
	taken := uint32(0)
	free := uint32(0)
	for bucketIdx := uint32(0); bucketIdx < BucketArraySize; bucketIdx++ {
		if !page.IsOccupied(bucketIdx) {
			break
		}

		size++

		if page.IsReadable(bucketIdx) {
			taken++
		} else {
			free++
		}
	}

	common.MdPrintf(common.DEBUG_INFO, "Bucket Capacity: %d, Size: %d, Taken: %d, Free: %d\n", BucketArraySize, size, taken, free)
}
