package sketch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustScaled(t *testing.T, scaled uint64, hashes ...uint64) *Sketch {
	t.Helper()
	s, err := New(Params{Ksize: 31, Scaled: scaled})
	require.NoError(t, err)
	s.AddMany(hashes)
	return s
}

func mustNum(t *testing.T, num uint32, hashes ...uint64) *Sketch {
	t.Helper()
	s, err := New(Params{Ksize: 31, Num: num})
	require.NoError(t, err)
	s.AddMany(hashes)
	return s
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"Scaled", Params{Ksize: 31, Scaled: 1000}, false},
		{"Num", Params{Ksize: 31, Num: 500}, false},
		{"Neither", Params{Ksize: 31}, true},
		{"Both", Params{Ksize: 31, Num: 500, Scaled: 1000}, true},
		{"ZeroKsize", Params{Scaled: 1000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParamsMaxHash(t *testing.T) {
	assert.Equal(t, uint64(0), Params{Ksize: 31, Num: 500}.MaxHash())
	assert.Equal(t, uint64(math.MaxUint64), Params{Ksize: 31, Scaled: 1}.MaxHash())
	assert.Equal(t, uint64(math.MaxUint64)/1000, Params{Ksize: 31, Scaled: 1000}.MaxHash())
}

func TestNewDefaultSeed(t *testing.T) {
	s, err := New(Params{Ksize: 31, Scaled: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultSeed), s.Seed())
}

func TestScaledAddFiltersByMaxHash(t *testing.T) {
	s, err := New(Params{Ksize: 31, Scaled: 1000})
	require.NoError(t, err)

	// The bound is inclusive: MaxHash itself stays, MaxHash+1 does not.
	keep := s.MaxHash()
	s.Add(keep)
	s.Add(keep + 1)
	s.Add(42)

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(keep))
	assert.False(t, s.Contains(keep+1))
	assert.True(t, s.Contains(42))
}

func TestNumAddKeepsSmallest(t *testing.T) {
	s := mustNum(t, 3, 50, 10, 30)
	assert.Equal(t, []uint64{10, 30, 50}, s.Hashes())

	// Smaller hash evicts the current maximum.
	s.Add(20)
	assert.Equal(t, []uint64{10, 20, 30}, s.Hashes())

	// Larger hash is ignored at capacity.
	s.Add(99)
	assert.Equal(t, []uint64{10, 20, 30}, s.Hashes())

	// Duplicates do not grow the sketch.
	s.Add(20)
	assert.Equal(t, 3, s.Len())
}

func TestNumEvictionDropsAbundance(t *testing.T) {
	s, err := New(Params{Ksize: 31, Num: 2, TrackAbundance: true})
	require.NoError(t, err)

	s.AddWithAbundance(10, 5)
	s.AddWithAbundance(30, 7)
	s.Add(20) // evicts 30

	assert.Equal(t, uint32(5), s.Abundance(10))
	assert.Equal(t, uint32(1), s.Abundance(20))
	assert.Equal(t, uint32(0), s.Abundance(30))
}

func TestAbundanceAccumulates(t *testing.T) {
	s, err := New(Params{Ksize: 31, Scaled: 1, TrackAbundance: true})
	require.NoError(t, err)

	s.Add(7)
	s.Add(7)
	s.AddWithAbundance(7, 3)

	assert.Equal(t, uint32(5), s.Abundance(7))
	assert.Equal(t, 1, s.Len())
}

func TestDownsampleScaled(t *testing.T) {
	t.Run("SubsetOfOriginal", func(t *testing.T) {
		s := mustScaled(t, 1, 1, 2, 3, math.MaxUint64/2, math.MaxUint64-1)
		require.NoError(t, s.DownsampleScaled(2))

		assert.Equal(t, uint64(2), s.Scaled())
		for _, h := range s.Hashes() {
			assert.LessOrEqual(t, h, s.MaxHash())
		}
		assert.Equal(t, []uint64{1, 2, 3, math.MaxUint64 / 2}, s.Hashes())
	})

	t.Run("Idempotent", func(t *testing.T) {
		s := mustScaled(t, 1, 1, 2, 3)
		require.NoError(t, s.DownsampleScaled(100))
		before := s.Hashes()
		require.NoError(t, s.DownsampleScaled(100))
		assert.Equal(t, before, s.Hashes())
	})

	t.Run("UpsampleFails", func(t *testing.T) {
		s := mustScaled(t, 1000, 1, 2, 3)
		err := s.DownsampleScaled(10)
		assert.ErrorIs(t, err, ErrCannotUpsample)
	})

	t.Run("NumModeFails", func(t *testing.T) {
		s := mustNum(t, 3, 1, 2, 3)
		assert.ErrorIs(t, s.DownsampleScaled(1000), ErrNoScaled)
	})
}

func TestDownsampleNum(t *testing.T) {
	s := mustNum(t, 5, 10, 20, 30, 40, 50)
	require.NoError(t, s.DownsampleNum(3))

	assert.Equal(t, []uint64{10, 20, 30}, s.Hashes())
	assert.Equal(t, uint32(3), s.Num())

	err := s.DownsampleNum(5)
	assert.ErrorIs(t, err, ErrCannotUpsample)
}

func TestMerge(t *testing.T) {
	t.Run("ScaledUnion", func(t *testing.T) {
		a := mustScaled(t, 1, 1, 2, 3)
		b := mustScaled(t, 1, 3, 4, 5)
		require.NoError(t, a.Merge(b))
		assert.Equal(t, []uint64{1, 2, 3, 4, 5}, a.Hashes())
	})

	t.Run("MixedResolutionCoarsens", func(t *testing.T) {
		a := mustScaled(t, 1, 1, 2, math.MaxUint64-1)
		b := mustScaled(t, 2, 3)
		require.NoError(t, a.Merge(b))

		// a adopts the coarser resolution; its out-of-range hash is gone.
		assert.Equal(t, uint64(2), a.Scaled())
		assert.Equal(t, []uint64{1, 2, 3}, a.Hashes())

		// b is untouched.
		assert.Equal(t, uint64(2), b.Scaled())
		assert.Equal(t, []uint64{3}, b.Hashes())
	})

	t.Run("Commutative", func(t *testing.T) {
		a1 := mustScaled(t, 1, 1, 2, 3)
		b1 := mustScaled(t, 1, 3, 4)
		a2 := mustScaled(t, 1, 1, 2, 3)
		b2 := mustScaled(t, 1, 3, 4)

		require.NoError(t, a1.Merge(b1))
		require.NoError(t, b2.Merge(a2))
		assert.Equal(t, a1.Hashes(), b2.Hashes())
	})

	t.Run("AssociativeAcrossResolutions", func(t *testing.T) {
		// Three resolutions, each sketch carrying a hash that only the
		// finer resolutions keep, so the grouping decides when the
		// coarsening filter is applied.
		mk := func() (a, b, c *Sketch) {
			a = mustScaled(t, 1, 1, 2, math.MaxUint64-1)
			b = mustScaled(t, 2, 3, uint64(math.MaxUint64)/4+5)
			c = mustScaled(t, 4, 4)
			return a, b, c
		}

		a1, b1, c1 := mk()
		require.NoError(t, a1.Merge(b1))
		require.NoError(t, a1.Merge(c1))

		a2, b2, c2 := mk()
		require.NoError(t, b2.Merge(c2))
		require.NoError(t, a2.Merge(b2))

		assert.Equal(t, uint64(4), a1.Scaled())
		assert.Equal(t, uint64(4), a2.Scaled())
		assert.Equal(t, []uint64{1, 2, 3, 4}, a1.Hashes())
		assert.Equal(t, a1.Hashes(), a2.Hashes())
	})

	t.Run("NumKeepsCapacity", func(t *testing.T) {
		a := mustNum(t, 3, 10, 20, 30)
		b := mustNum(t, 3, 5, 40)
		require.NoError(t, a.Merge(b))
		assert.Equal(t, []uint64{5, 10, 20}, a.Hashes())
	})

	t.Run("IncompatibleKsize", func(t *testing.T) {
		a := mustScaled(t, 1, 1)
		b, err := New(Params{Ksize: 21, Scaled: 1})
		require.NoError(t, err)

		err = a.Merge(b)
		var incompat *ErrIncompatible
		require.ErrorAs(t, err, &incompat)
		assert.Equal(t, "ksize", incompat.Param)
	})
}

func TestSubtract(t *testing.T) {
	t.Run("RemovesHashes", func(t *testing.T) {
		a := mustScaled(t, 1, 1, 2, 3, 4, 5)
		b := mustScaled(t, 1, 2, 4, 99)
		require.NoError(t, a.Subtract(b))
		assert.Equal(t, []uint64{1, 3, 5}, a.Hashes())
	})

	t.Run("ResolutionMismatchFails", func(t *testing.T) {
		a := mustScaled(t, 1, 1)
		b := mustScaled(t, 2, 1)
		assert.Error(t, a.Subtract(b))
	})

	t.Run("NumModeFails", func(t *testing.T) {
		a := mustNum(t, 3, 1)
		b := mustNum(t, 3, 1)
		assert.ErrorIs(t, a.Subtract(b), ErrNoScaled)
	})
}

func TestCloneIsDeep(t *testing.T) {
	s, err := New(Params{Ksize: 31, Scaled: 1, TrackAbundance: true})
	require.NoError(t, err)
	s.AddWithAbundance(1, 2)

	c := s.Clone()
	c.Add(99)
	c.AddWithAbundance(1, 10)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, uint32(2), s.Abundance(1))
	assert.Equal(t, 2, c.Len())
}

func TestFlatten(t *testing.T) {
	s, err := New(Params{Ksize: 31, Scaled: 1, TrackAbundance: true})
	require.NoError(t, err)
	s.AddWithAbundance(1, 5)

	s.Flatten()
	assert.False(t, s.TracksAbundance())
	assert.Equal(t, uint32(0), s.Abundance(1))
	assert.Equal(t, 1, s.Len())
}

func TestCardinality(t *testing.T) {
	s := mustScaled(t, 1000, 1, 2, 3)
	assert.Equal(t, uint64(3000), s.Cardinality())

	n := mustNum(t, 3, 1, 2, 3)
	assert.Equal(t, uint64(0), n.Cardinality())
}
