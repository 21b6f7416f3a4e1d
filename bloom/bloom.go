// Package bloom implements the approximate-membership filter used for the
// internal nodes of a sequence Bloom tree. A filter never under-approximates
// the hash set it was built from: false positives are expected, false
// negatives are forbidden.
package bloom

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// Filter is a Bloom filter keyed directly by 64-bit sketch hashes.
type Filter struct {
	m    uint64 // number of bits
	k    uint32 // number of hash functions
	bits *bitset.BitSet
}

// New creates a filter with m bits and k hash functions.
func New(m uint64, k uint32) (*Filter, error) {
	if m == 0 || k == 0 {
		return nil, fmt.Errorf("bloom: m and k must be positive (m=%d k=%d)", m, k)
	}
	return &Filter{m: m, k: k, bits: bitset.New(uint(m))}, nil
}

// NewForCapacity sizes a filter for n elements at the target false-positive
// rate.
func NewForCapacity(n uint64, fpRate float64) (*Filter, error) {
	if n == 0 {
		n = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		return nil, fmt.Errorf("bloom: fp rate must be in (0,1), got %g", fpRate)
	}
	m := uint64(math.Ceil(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	k := uint32(math.Round(float64(m) / float64(n) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return New(m, k)
}

// NumBits returns the filter size in bits.
func (f *Filter) NumBits() uint64 { return f.m }

// NumHashes returns the number of hash functions.
func (f *Filter) NumHashes() uint32 { return f.k }

// mix is splitmix64; it derives the second index stream for double hashing.
func mix(h uint64) uint64 {
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return h
}

func (f *Filter) indexes(h uint64, visit func(uint)) {
	h2 := mix(h) | 1
	for i := uint64(0); i < uint64(f.k); i++ {
		visit(uint((h + i*h2) % f.m))
	}
}

// Add inserts a hash.
func (f *Filter) Add(h uint64) {
	f.indexes(h, func(i uint) { f.bits.Set(i) })
}

// AddMany inserts every hash.
func (f *Filter) AddMany(hashes []uint64) {
	for _, h := range hashes {
		f.Add(h)
	}
}

// Contains reports whether h may be present. A false result is definite.
func (f *Filter) Contains(h uint64) bool {
	ok := true
	f.indexes(h, func(i uint) {
		if !f.bits.Test(i) {
			ok = false
		}
	})
	return ok
}

// ContainsCount returns how many of the given hashes may be present. It is
// an upper bound on the true intersection size, which makes it a sound
// pruning predicate for tree search.
func (f *Filter) ContainsCount(hashes []uint64) int {
	n := 0
	for _, h := range hashes {
		if f.Contains(h) {
			n++
		}
	}
	return n
}

// Union folds other into f. Both filters must share m and k.
func (f *Filter) Union(other *Filter) error {
	if f.m != other.m || f.k != other.k {
		return fmt.Errorf("bloom: cannot union filters with different shapes (m=%d/%d k=%d/%d)", f.m, other.m, f.k, other.k)
	}
	f.bits.InPlaceUnion(other.bits)
	return nil
}

// Clone returns a deep copy.
func (f *Filter) Clone() *Filter {
	return &Filter{m: f.m, k: f.k, bits: f.bits.Clone()}
}

// MarshalBinary encodes m, k and the bit array.
func (f *Filter) MarshalBinary() ([]byte, error) {
	bits, err := f.bits.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 12, 12+len(bits))
	binary.LittleEndian.PutUint64(out[0:8], f.m)
	binary.LittleEndian.PutUint32(out[8:12], f.k)
	return append(out, bits...), nil
}

// UnmarshalBinary decodes a filter written by MarshalBinary.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("bloom: truncated filter (%d bytes)", len(data))
	}
	f.m = binary.LittleEndian.Uint64(data[0:8])
	f.k = binary.LittleEndian.Uint32(data[8:12])
	if f.m == 0 || f.k == 0 {
		return fmt.Errorf("bloom: invalid filter header (m=%d k=%d)", f.m, f.k)
	}
	f.bits = new(bitset.BitSet)
	return f.bits.UnmarshalBinary(data[12:])
}
