// Package kmer turns sequence text into the 64-bit hashes consumed by
// sketches. It is the pluggable hasher collaborator: the sketch core never
// imports it.
package kmer

import (
	"fmt"
	"iter"

	"github.com/twmb/murmur3"

	"github.com/hupe1980/sketchgo/sketch"
)

// Hasher yields canonical k-mer hashes for sequence text.
type Hasher struct {
	ksize    int
	seed     uint32
	molecule sketch.Molecule
	force    bool
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithForce makes invalid characters skip their k-mer windows instead of
// failing the whole sequence.
func WithForce() Option {
	return func(h *Hasher) { h.force = true }
}

// New creates a Hasher for the given molecule and k-mer size. For DNA the
// hashed k-mer is the lexicographically smaller of the k-mer and its
// reverse complement; for protein alphabets the (possibly reduced) k-mer is
// hashed as-is.
func New(ksize uint32, molecule sketch.Molecule, seed uint32, opts ...Option) (*Hasher, error) {
	if ksize == 0 {
		return nil, fmt.Errorf("kmer: ksize must be positive")
	}
	if seed == 0 {
		seed = sketch.DefaultSeed
	}
	h := &Hasher{ksize: int(ksize), seed: seed, molecule: molecule}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Hash returns the murmur3-x64-128 low word of data, matching the hash
// function named "0.murmur64" in signature files.
func (h *Hasher) Hash(data []byte) uint64 {
	lo, _ := murmur3.SeedSum128(uint64(h.seed), uint64(h.seed), data)
	return lo
}

// Hashes iterates the hashes of all valid k-mers in seq. The returned error
// (second value of the pull form) is non-nil when an invalid character is
// seen and WithForce was not set.
func (h *Hasher) Hashes(seq []byte) iter.Seq2[uint64, error] {
	switch h.molecule {
	case sketch.MoleculeDNA:
		return h.dnaHashes(seq)
	default:
		return h.proteinHashes(seq)
	}
}

// AddSequence hashes seq and feeds every hash into s.
func (h *Hasher) AddSequence(s *sketch.Sketch, seq []byte) error {
	for hash, err := range h.Hashes(seq) {
		if err != nil {
			return err
		}
		s.Add(hash)
	}
	return nil
}

func (h *Hasher) dnaHashes(seq []byte) iter.Seq2[uint64, error] {
	return func(yield func(uint64, error) bool) {
		if len(seq) < h.ksize {
			return
		}
		upper := toUpperDNA(seq)
		// lastBad is the index of the most recent invalid base, so a
		// window is clean iff it starts after lastBad.
		lastBad := -1
		for i, c := range upper {
			if !validBase(c) {
				lastBad = i
				if !h.force {
					if !yield(0, fmt.Errorf("kmer: invalid DNA character %q at position %d", seq[i], i)) {
						return
					}
				}
			}
			if i+1 < h.ksize {
				continue
			}
			start := i + 1 - h.ksize
			if start <= lastBad {
				continue
			}
			fwd := upper[start : i+1]
			rc := reverseComplement(fwd)
			canon := fwd
			if lessBytes(rc, fwd) {
				canon = rc
			}
			if !yield(h.Hash(canon), nil) {
				return
			}
		}
	}
}

func (h *Hasher) proteinHashes(seq []byte) iter.Seq2[uint64, error] {
	return func(yield func(uint64, error) bool) {
		if len(seq) < h.ksize {
			return
		}
		reduced := make([]byte, len(seq))
		lastBad := -1
		for i, c := range seq {
			r, ok := h.reduce(upperByte(c))
			if !ok {
				lastBad = i
				if !h.force {
					if !yield(0, fmt.Errorf("kmer: invalid %s character %q at position %d", h.molecule, c, i)) {
						return
					}
				}
			}
			reduced[i] = r
			if i+1 < h.ksize {
				continue
			}
			start := i + 1 - h.ksize
			if start <= lastBad {
				continue
			}
			if !yield(h.Hash(reduced[start:i+1]), nil) {
				return
			}
		}
	}
}

func (h *Hasher) reduce(c byte) (byte, bool) {
	if c < 'A' || c > 'Z' || !validAmino(c) {
		return 0, false
	}
	switch h.molecule {
	case sketch.MoleculeDayhoff:
		return dayhoffTable[c-'A'], true
	case sketch.MoleculeHP:
		return hpTable[c-'A'], true
	default:
		return c, true
	}
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 32
	}
	return c
}

func toUpperDNA(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, c := range seq {
		out[i] = upperByte(c)
	}
	return out
}

func validBase(c byte) bool {
	return c == 'A' || c == 'C' || c == 'G' || c == 'T'
}

func complement(c byte) byte {
	switch c {
	case 'A':
		return 'T'
	case 'T':
		return 'A'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	default:
		return 'N'
	}
}

func reverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, c := range seq {
		out[len(seq)-1-i] = complement(c)
	}
	return out
}

func lessBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// validAmino accepts the 20 standard residues.
func validAmino(c byte) bool {
	switch c {
	case 'B', 'J', 'O', 'U', 'X', 'Z':
		return false
	default:
		return true
	}
}

// Dayhoff six-class reduction, indexed by letter - 'A'. Letters outside the
// standard residues never reach the table.
var dayhoffTable = [26]byte{
	'A' - 'A': 'b', // A
	'C' - 'A': 'a', // C
	'D' - 'A': 'c', // D
	'E' - 'A': 'c', // E
	'F' - 'A': 'f', // F
	'G' - 'A': 'b', // G
	'H' - 'A': 'd', // H
	'I' - 'A': 'e', // I
	'K' - 'A': 'd', // K
	'L' - 'A': 'e', // L
	'M' - 'A': 'e', // M
	'N' - 'A': 'c', // N
	'P' - 'A': 'b', // P
	'Q' - 'A': 'c', // Q
	'R' - 'A': 'd', // R
	'S' - 'A': 'b', // S
	'T' - 'A': 'b', // T
	'V' - 'A': 'e', // V
	'W' - 'A': 'f', // W
	'Y' - 'A': 'f', // Y
}

// Hydrophobic/polar two-class reduction.
var hpTable = [26]byte{
	'A' - 'A': 'h',
	'C' - 'A': 'h',
	'D' - 'A': 'p',
	'E' - 'A': 'p',
	'F' - 'A': 'h',
	'G' - 'A': 'p',
	'H' - 'A': 'p',
	'I' - 'A': 'h',
	'K' - 'A': 'p',
	'L' - 'A': 'h',
	'M' - 'A': 'h',
	'N' - 'A': 'p',
	'P' - 'A': 'h',
	'Q' - 'A': 'p',
	'R' - 'A': 'p',
	'S' - 'A': 'p',
	'T' - 'A': 'p',
	'V' - 'A': 'h',
	'W' - 'A': 'h',
	'Y' - 'A': 'p',
}
