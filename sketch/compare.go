package sketch

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// commonResolution returns views of a and b at a directly comparable
// resolution, downsampling clones as needed. The inputs are not modified.
func commonResolution(a, b *Sketch) (*Sketch, *Sketch, error) {
	if err := a.params.compatibleWith(b.params); err != nil {
		return nil, nil, err
	}

	if a.IsScaled() {
		coarser := max(a.params.Scaled, b.params.Scaled)
		if a.params.Scaled < coarser {
			a = a.Clone()
			if err := a.DownsampleScaled(coarser); err != nil {
				return nil, nil, err
			}
		}
		if b.params.Scaled < coarser {
			b = b.Clone()
			if err := b.DownsampleScaled(coarser); err != nil {
				return nil, nil, err
			}
		}
		return a, b, nil
	}

	smaller := min(a.params.Num, b.params.Num)
	if a.params.Num > smaller {
		a = a.Clone()
		if err := a.DownsampleNum(smaller); err != nil {
			return nil, nil, err
		}
	}
	if b.params.Num > smaller {
		b = b.Clone()
		if err := b.DownsampleNum(smaller); err != nil {
			return nil, nil, err
		}
	}
	return a, b, nil
}

func intersectMins(a, b []uint64) uint64 {
	var n uint64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}

// Intersection returns the number of hashes shared by s and other over the
// comparable range.
func (s *Sketch) Intersection(other *Sketch) (uint64, error) {
	a, b, err := commonResolution(s, other)
	if err != nil {
		return 0, err
	}
	if a.IsScaled() {
		return roaring64.And(a.scaled, b.scaled).GetCardinality(), nil
	}
	return intersectMins(a.mins, b.mins), nil
}

// Similarity estimates the Jaccard index of the two sketched collections.
//
// For scaled sketches this is |A∩B|/|A∪B| at the common resolution. For num
// sketches of unequal size this deliberately divides by the smaller
// sketch's size rather than the union size; existing result corpora were
// produced with that divisor and it is preserved here as the legacy
// behavior. JaccardUnion gives the textbook formula.
func (s *Sketch) Similarity(other *Sketch) (float64, error) {
	a, b, err := commonResolution(s, other)
	if err != nil {
		return 0, err
	}

	if a.IsScaled() {
		inter := roaring64.And(a.scaled, b.scaled).GetCardinality()
		union := roaring64.Or(a.scaled, b.scaled).GetCardinality()
		if union == 0 {
			return 0, nil
		}
		return float64(inter) / float64(union), nil
	}

	denom := min(len(a.mins), len(b.mins))
	if denom == 0 {
		return 0, nil
	}
	return float64(intersectMins(a.mins, b.mins)) / float64(denom), nil
}

// JaccardUnion is the textbook Jaccard index |A∩B|/|A∪B| for both modes.
func (s *Sketch) JaccardUnion(other *Sketch) (float64, error) {
	a, b, err := commonResolution(s, other)
	if err != nil {
		return 0, err
	}

	var inter, union uint64
	if a.IsScaled() {
		inter = roaring64.And(a.scaled, b.scaled).GetCardinality()
		union = roaring64.Or(a.scaled, b.scaled).GetCardinality()
	} else {
		inter = intersectMins(a.mins, b.mins)
		union = uint64(len(a.mins)) + uint64(len(b.mins)) - inter
	}
	if union == 0 {
		return 0, nil
	}
	return float64(inter) / float64(union), nil
}

// Containment returns the fraction of s's hashes also present in other.
// Defined only for scaled sketches; num sketches return ErrNoContainment.
func (s *Sketch) Containment(other *Sketch) (float64, error) {
	if !s.IsScaled() || !other.IsScaled() {
		return 0, ErrNoContainment
	}
	a, b, err := commonResolution(s, other)
	if err != nil {
		return 0, err
	}
	size := a.scaled.GetCardinality()
	if size == 0 {
		return 0, nil
	}
	inter := roaring64.And(a.scaled, b.scaled).GetCardinality()
	return float64(inter) / float64(size), nil
}

// MaxContainment returns max(containment(s in other), containment(other in s)).
func (s *Sketch) MaxContainment(other *Sketch) (float64, error) {
	ab, err := s.Containment(other)
	if err != nil {
		return 0, err
	}
	ba, err := other.Containment(s)
	if err != nil {
		return 0, err
	}
	return max(ab, ba), nil
}

// AngularSimilarity is the abundance-weighted cosine similarity over the
// union of hashes, mapped to [0,1] as 1 - 2*acos(cos)/pi. Hashes without a
// recorded abundance count as 1, so flat sketches degrade to a set cosine.
func (s *Sketch) AngularSimilarity(other *Sketch) (float64, error) {
	a, b, err := commonResolution(s, other)
	if err != nil {
		return 0, err
	}

	abundOf := func(sk *Sketch, h uint64) float64 {
		if sk.abund != nil {
			return float64(sk.abund[h])
		}
		return 1
	}

	var dot, normA, normB float64
	for _, h := range a.Hashes() {
		va := abundOf(a, h)
		normA += va * va
		if b.Contains(h) {
			dot += va * abundOf(b, h)
		}
	}
	for _, h := range b.Hashes() {
		vb := abundOf(b, h)
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	cos = min(max(cos, -1), 1)
	return 1 - 2*math.Acos(cos)/math.Pi, nil
}
