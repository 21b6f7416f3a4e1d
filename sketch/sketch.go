// Package sketch implements compact probabilistic sketches of sequence
// collections: FracMinHash ("scaled") sketches that keep every hash below a
// fixed modulo threshold, and classic bottom-k ("num") MinHash sketches that
// keep the n smallest hashes.
package sketch

import (
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// DefaultSeed is the murmur seed shared by all sketches unless overridden.
// It must match the seed used by the k-mer hasher that produced the hashes.
const DefaultSeed = 42

// Molecule identifies the alphabet a sketch was built over.
type Molecule uint8

const (
	MoleculeDNA Molecule = iota
	MoleculeProtein
	MoleculeDayhoff
	MoleculeHP
)

// String returns the canonical lowercase name used in signature files.
func (m Molecule) String() string {
	switch m {
	case MoleculeDNA:
		return "DNA"
	case MoleculeProtein:
		return "protein"
	case MoleculeDayhoff:
		return "dayhoff"
	case MoleculeHP:
		return "hp"
	default:
		return "unknown"
	}
}

// ParseMolecule parses a molecule name as found in signature files.
func ParseMolecule(s string) (Molecule, error) {
	switch s {
	case "DNA", "dna":
		return MoleculeDNA, nil
	case "protein":
		return MoleculeProtein, nil
	case "dayhoff":
		return MoleculeDayhoff, nil
	case "hp":
		return MoleculeHP, nil
	default:
		return 0, fmt.Errorf("sketch: unknown molecule %q", s)
	}
}

// Params are the comparability parameters of a sketch. Two sketches can only
// be compared or combined when Ksize, Molecule and Seed match and both use
// the same mode family (num or scaled).
type Params struct {
	Ksize    uint32
	Molecule Molecule
	Seed     uint32

	// Num is the bottom-k capacity. Exactly one of Num and Scaled is set.
	Num uint32

	// Scaled is the FracMinHash denominator: the sketch keeps hashes
	// h <= 2^64/Scaled, an expected 1/Scaled fraction of all hashes.
	Scaled uint64

	TrackAbundance bool
}

// Validate checks structural validity of the parameter set.
func (p Params) Validate() error {
	if p.Ksize == 0 {
		return fmt.Errorf("sketch: ksize must be positive")
	}
	if (p.Num == 0) == (p.Scaled == 0) {
		return fmt.Errorf("sketch: exactly one of num and scaled must be set (num=%d scaled=%d)", p.Num, p.Scaled)
	}
	return nil
}

// MaxHash returns the largest hash value the sketch retains, or 0 for num
// sketches (which bound by count, not value). The bound is inclusive: a
// hash equal to MaxHash is kept. Existing signature corpora were produced
// with the inclusive bound, so it is preserved over an exclusive
// 2^64/scaled cutoff.
func (p Params) MaxHash() uint64 {
	return maxHashForScaled(p.Scaled)
}

func maxHashForScaled(scaled uint64) uint64 {
	switch scaled {
	case 0:
		return 0
	case 1:
		return math.MaxUint64
	default:
		return math.MaxUint64 / scaled
	}
}

func scaledForMaxHash(maxHash uint64) uint64 {
	if maxHash == 0 {
		return 0
	}
	return math.MaxUint64 / maxHash
}

// compatibleWith reports the first comparability mismatch between p and o.
func (p Params) compatibleWith(o Params) error {
	if p.Ksize != o.Ksize {
		return &ErrIncompatible{Param: "ksize", A: fmt.Sprint(p.Ksize), B: fmt.Sprint(o.Ksize)}
	}
	if p.Molecule != o.Molecule {
		return &ErrIncompatible{Param: "molecule", A: p.Molecule.String(), B: o.Molecule.String()}
	}
	if p.Seed != o.Seed {
		return &ErrIncompatible{Param: "seed", A: fmt.Sprint(p.Seed), B: fmt.Sprint(o.Seed)}
	}
	if (p.Num == 0) != (o.Num == 0) {
		return &ErrIncompatible{Param: "mode", A: p.modeString(), B: o.modeString()}
	}
	return nil
}

func (p Params) modeString() string {
	if p.Num > 0 {
		return fmt.Sprintf("num=%d", p.Num)
	}
	return fmt.Sprintf("scaled=%d", p.Scaled)
}

// Sketch is a single MinHash sketch. It is safe for concurrent readers as
// long as no goroutine mutates it (Add, Merge, Downsample, Subtract,
// Flatten); mutation requires exclusive access.
type Sketch struct {
	params Params

	// scaled holds the hash set for scaled mode.
	scaled *roaring64.Bitmap

	// mins holds the bottom-k hashes for num mode, ascending, len <= Num.
	mins []uint64

	// abund maps hash -> occurrence count when abundance is tracked.
	abund map[uint64]uint32
}

// New creates an empty sketch with the given parameters.
func New(p Params) (*Sketch, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Seed == 0 {
		p.Seed = DefaultSeed
	}
	s := &Sketch{params: p}
	if p.Scaled > 0 {
		s.scaled = roaring64.New()
	}
	if p.TrackAbundance {
		s.abund = make(map[uint64]uint32)
	}
	return s, nil
}

// Params returns a copy of the sketch parameters.
func (s *Sketch) Params() Params { return s.params }

func (s *Sketch) Ksize() uint32         { return s.params.Ksize }
func (s *Sketch) Molecule() Molecule    { return s.params.Molecule }
func (s *Sketch) Seed() uint32          { return s.params.Seed }
func (s *Sketch) Num() uint32           { return s.params.Num }
func (s *Sketch) Scaled() uint64        { return s.params.Scaled }
func (s *Sketch) TracksAbundance() bool { return s.params.TrackAbundance }
func (s *Sketch) IsScaled() bool        { return s.params.Scaled > 0 }
func (s *Sketch) MaxHash() uint64       { return s.params.MaxHash() }

// Len returns the number of hashes currently in the sketch.
func (s *Sketch) Len() int {
	if s.IsScaled() {
		return int(s.scaled.GetCardinality())
	}
	return len(s.mins)
}

// Hashes returns all hashes in ascending order.
func (s *Sketch) Hashes() []uint64 {
	if s.IsScaled() {
		return s.scaled.ToArray()
	}
	return slices.Clone(s.mins)
}

// Contains reports whether h is in the sketch.
func (s *Sketch) Contains(h uint64) bool {
	if s.IsScaled() {
		return s.scaled.Contains(h)
	}
	_, ok := slices.BinarySearch(s.mins, h)
	return ok
}

// Add inserts a single hash with abundance 1.
func (s *Sketch) Add(h uint64) { s.AddWithAbundance(h, 1) }

// AddMany inserts each hash with abundance 1.
func (s *Sketch) AddMany(hashes []uint64) {
	for _, h := range hashes {
		s.AddWithAbundance(h, 1)
	}
}

// AddWithAbundance inserts a hash, counting it as observed count times.
//
// In scaled mode the hash is kept iff it falls below the modulo bound; in
// num mode it is kept iff it is smaller than the current maximum (or the
// sketch is not yet full), evicting the largest hash to stay within Num.
func (s *Sketch) AddWithAbundance(h uint64, count uint32) {
	if count == 0 {
		return
	}
	if s.IsScaled() {
		if h > s.params.MaxHash() {
			return
		}
		s.scaled.Add(h)
		s.bumpAbundance(h, count)
		return
	}

	i, found := slices.BinarySearch(s.mins, h)
	switch {
	case found:
		s.bumpAbundance(h, count)
	case uint32(len(s.mins)) < s.params.Num:
		s.mins = slices.Insert(s.mins, i, h)
		s.bumpAbundance(h, count)
	case h < s.mins[len(s.mins)-1]:
		evicted := s.mins[len(s.mins)-1]
		s.mins = slices.Insert(s.mins[:len(s.mins)-1], i, h)
		if s.abund != nil {
			delete(s.abund, evicted)
		}
		s.bumpAbundance(h, count)
	}
}

func (s *Sketch) bumpAbundance(h uint64, count uint32) {
	if s.abund != nil {
		s.abund[h] += count
	}
}

// Abundance returns the recorded abundance for h, or 0.
func (s *Sketch) Abundance(h uint64) uint32 {
	if s.abund == nil {
		return 0
	}
	return s.abund[h]
}

// Abundances returns a copy of the hash -> abundance map, or nil when
// abundance is not tracked.
func (s *Sketch) Abundances() map[uint64]uint32 {
	if s.abund == nil {
		return nil
	}
	out := make(map[uint64]uint32, len(s.abund))
	for h, c := range s.abund {
		out[h] = c
	}
	return out
}

// Merge unions other into s. Scaled sketches are first downsampled to the
// coarser of the two resolutions (required for sound estimation); num
// sketches keep s's capacity and the smallest hashes of the union. The
// other sketch is never modified.
func (s *Sketch) Merge(other *Sketch) error {
	if err := s.params.compatibleWith(other.params); err != nil {
		return err
	}

	if s.IsScaled() {
		coarser := max(s.params.Scaled, other.params.Scaled)
		if err := s.DownsampleScaled(coarser); err != nil {
			return err
		}
		src := other
		if other.params.Scaled < coarser {
			src = other.Clone()
			if err := src.DownsampleScaled(coarser); err != nil {
				return err
			}
		}
		s.scaled.Or(src.scaled)
		s.mergeAbundances(src)
		return nil
	}

	for _, h := range other.mins {
		count := uint32(1)
		if other.abund != nil {
			count = other.abund[h]
		}
		s.AddWithAbundance(h, count)
	}
	return nil
}

func (s *Sketch) mergeAbundances(other *Sketch) {
	if s.abund == nil {
		return
	}
	it := other.scaled.Iterator()
	for it.HasNext() {
		h := it.Next()
		count := uint32(1)
		if other.abund != nil {
			count = other.abund[h]
		}
		s.abund[h] += count
	}
}

// DownsampleScaled shrinks the sketch in place to the coarser resolution
// scaled. Shrinking is irreversible; asking for a finer resolution returns
// ErrCannotUpsample.
func (s *Sketch) DownsampleScaled(scaled uint64) error {
	if !s.IsScaled() {
		return ErrNoScaled
	}
	if scaled < s.params.Scaled {
		return fmt.Errorf("%w: have scaled=%d, requested scaled=%d", ErrCannotUpsample, s.params.Scaled, scaled)
	}
	if scaled == s.params.Scaled {
		return nil
	}

	newMax := maxHashForScaled(scaled)
	filtered := roaring64.New()
	it := s.scaled.Iterator()
	for it.HasNext() {
		h := it.Next()
		if h <= newMax {
			filtered.Add(h)
		} else if s.abund != nil {
			delete(s.abund, h)
		}
	}
	s.scaled = filtered
	s.params.Scaled = scaled
	return nil
}

// DownsampleNum shrinks a num sketch in place to capacity num, keeping the
// num smallest hashes. Growing the capacity returns ErrCannotUpsample.
func (s *Sketch) DownsampleNum(num uint32) error {
	if s.IsScaled() {
		return &ErrIncompatible{Param: "mode", A: s.params.modeString(), B: fmt.Sprintf("num=%d", num)}
	}
	if num == 0 {
		return fmt.Errorf("sketch: num must be positive")
	}
	if num > s.params.Num {
		return fmt.Errorf("%w: have num=%d, requested num=%d", ErrCannotUpsample, s.params.Num, num)
	}
	if int(num) < len(s.mins) {
		if s.abund != nil {
			for _, h := range s.mins[num:] {
				delete(s.abund, h)
			}
		}
		s.mins = slices.Clone(s.mins[:num])
	}
	s.params.Num = num
	return nil
}

// Subtract removes other's hashes from s. Both sketches must be scaled and
// at the same resolution; gather relies on this to peel matches off a query.
func (s *Sketch) Subtract(other *Sketch) error {
	if err := s.params.compatibleWith(other.params); err != nil {
		return err
	}
	if !s.IsScaled() {
		return ErrNoScaled
	}
	if s.params.Scaled != other.params.Scaled {
		return &ErrIncompatible{Param: "mode", A: s.params.modeString(), B: other.params.modeString()}
	}
	if s.abund != nil {
		it := other.scaled.Iterator()
		for it.HasNext() {
			delete(s.abund, it.Next())
		}
	}
	s.scaled.AndNot(other.scaled)
	return nil
}

// Flatten drops abundance tracking in place.
func (s *Sketch) Flatten() {
	s.abund = nil
	s.params.TrackAbundance = false
}

// Clone returns a deep copy.
func (s *Sketch) Clone() *Sketch {
	out := &Sketch{params: s.params}
	if s.scaled != nil {
		out.scaled = s.scaled.Clone()
	}
	out.mins = slices.Clone(s.mins)
	if s.abund != nil {
		out.abund = make(map[uint64]uint32, len(s.abund))
		for h, c := range s.abund {
			out.abund[h] = c
		}
	}
	return out
}

// Cardinality estimates the number of distinct hashes (unique k-mers) in the
// sketched collection. Only meaningful for scaled sketches; returns 0 for
// num mode.
func (s *Sketch) Cardinality() uint64 {
	if !s.IsScaled() {
		return 0
	}
	return s.scaled.GetCardinality() * s.params.Scaled
}
