package lca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/lineage"
	"github.com/hupe1980/sketchgo/sketch"
)

func newScaled(t *testing.T, scaled uint64, hashes ...uint64) *sketch.Sketch {
	t.Helper()
	s, err := sketch.New(sketch.Params{Ksize: 31, Scaled: scaled})
	require.NoError(t, err)
	s.AddMany(hashes)
	return s
}

func TestNew(t *testing.T) {
	_, err := New("db", 0, 1000, sketch.MoleculeDNA)
	assert.Error(t, err)

	db, err := New("db", 31, 1000, sketch.MoleculeDNA)
	require.NoError(t, err)
	assert.Equal(t, "db", db.Location())
	assert.Equal(t, uint32(31), db.Ksize())
	assert.Equal(t, uint64(1000), db.Scaled())
	assert.Equal(t, 0, db.Len())
}

func TestInsert(t *testing.T) {
	db, err := New("db", 31, 1, sketch.MoleculeDNA)
	require.NoError(t, err)

	idx, err := db.Insert(newScaled(t, 1, 10, 20), "g1", lineage.Parse("a;b;c"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)
	assert.Equal(t, 1, db.Len())

	t.Run("DuplicateIdent", func(t *testing.T) {
		_, err := db.Insert(newScaled(t, 1, 30), "g1", nil)
		assert.Error(t, err)
	})

	t.Run("NumModeRejected", func(t *testing.T) {
		n, err := sketch.New(sketch.Params{Ksize: 31, Num: 500})
		require.NoError(t, err)
		_, err = db.Insert(n, "num", nil)
		assert.Error(t, err)
	})

	t.Run("WrongKsize", func(t *testing.T) {
		s, err := sketch.New(sketch.Params{Ksize: 21, Scaled: 1})
		require.NoError(t, err)
		_, err = db.Insert(s, "k21", nil)
		assert.Error(t, err)
	})

	t.Run("LineageLookup", func(t *testing.T) {
		lin, err := db.Lineage("g1")
		require.NoError(t, err)
		assert.Equal(t, "a;b;c", lin.String())

		_, err = db.Lineage("unknown")
		assert.Error(t, err)
	})
}

func TestAssignments(t *testing.T) {
	db, err := New("db", 31, 1, sketch.MoleculeDNA)
	require.NoError(t, err)

	_, err = db.Insert(newScaled(t, 1, 10, 20), "g1", lineage.Parse("a;b;c"))
	require.NoError(t, err)
	_, err = db.Insert(newScaled(t, 1, 10, 30), "g2", lineage.Parse("a;b;d"))
	require.NoError(t, err)
	_, err = db.Insert(newScaled(t, 1, 10), "g3", nil) // unassigned
	require.NoError(t, err)

	t.Run("SharedHash", func(t *testing.T) {
		lins := db.Assignments(10)
		require.Len(t, lins, 2)
		assert.Equal(t, "a;b;c", lins[0].String())
		assert.Equal(t, "a;b;d", lins[1].String())
	})

	t.Run("ExclusiveHash", func(t *testing.T) {
		lins := db.Assignments(20)
		require.Len(t, lins, 1)
		assert.Equal(t, "a;b;c", lins[0].String())
	})

	t.Run("UnknownHash", func(t *testing.T) {
		assert.Empty(t, db.Assignments(999))
	})

	t.Run("DuplicateLineagesCollapse", func(t *testing.T) {
		_, err := db.Insert(newScaled(t, 1, 20), "g4", lineage.Parse("a;b;c"))
		require.NoError(t, err)
		assert.Len(t, db.Assignments(20), 1)
	})
}

func TestClassify(t *testing.T) {
	db, err := New("db", 31, 1, sketch.MoleculeDNA)
	require.NoError(t, err)

	_, err = db.Insert(newScaled(t, 1, 10, 20, 30), "g1", lineage.Parse("a;b;c"))
	require.NoError(t, err)
	_, err = db.Insert(newScaled(t, 1, 10, 40), "g2", lineage.Parse("a;b;d"))
	require.NoError(t, err)

	// Hash 10 is ambiguous (consensus a;b); 20 and 30 are clean a;b;c.
	counts, err := db.Classify(newScaled(t, 1, 10, 20, 30, 999))
	require.NoError(t, err)
	require.Len(t, counts, 2)

	assert.Equal(t, "a;b;c", counts[0].Lineage.String())
	assert.Equal(t, 2, counts[0].Count)
	assert.Equal(t, "a;b", counts[1].Lineage.String())
	assert.Equal(t, 1, counts[1].Count)
}

func TestResolutionHandling(t *testing.T) {
	t.Run("FinerInsertIsDownsampled", func(t *testing.T) {
		db, err := New("db", 31, 1000, sketch.MoleculeDNA)
		require.NoError(t, err)

		fine := newScaled(t, 10)
		over := fine.MaxHash() // above the database bound at scaled=1000
		fine.AddMany([]uint64{1, 2, over})

		_, err = db.Insert(fine, "g1", nil)
		require.NoError(t, err)

		member, err := db.Member("g1")
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2}, member.Hashes())

		// The caller's sketch is untouched.
		assert.Equal(t, 3, fine.Len())
	})

	t.Run("CoarserInsertCoarsensDatabase", func(t *testing.T) {
		db, err := New("db", 31, 10, sketch.MoleculeDNA)
		require.NoError(t, err)

		first := newScaled(t, 10)
		high := first.MaxHash()
		first.AddMany([]uint64{1, high})
		_, err = db.Insert(first, "g1", nil)
		require.NoError(t, err)

		_, err = db.Insert(newScaled(t, 1000, 2), "g2", nil)
		require.NoError(t, err)

		assert.Equal(t, uint64(1000), db.Scaled())

		// g1's high hash fell out when the database coarsened.
		member, err := db.Member("g1")
		require.NoError(t, err)
		assert.Equal(t, []uint64{1}, member.Hashes())
	})

	t.Run("FinerQueryIsDownsampled", func(t *testing.T) {
		db, err := New("db", 31, 1000, sketch.MoleculeDNA)
		require.NoError(t, err)
		_, err = db.Insert(newScaled(t, 1000, 1, 2), "g1", lineage.Parse("a"))
		require.NoError(t, err)

		q := newScaled(t, 10)
		over := q.MaxHash()
		q.AddMany([]uint64{1, 2, over})

		counts, err := db.Classify(q)
		require.NoError(t, err)
		require.Len(t, counts, 1)
		assert.Equal(t, 2, counts[0].Count)
	})
}

func TestSearch(t *testing.T) {
	db, err := New("db", 31, 1, sketch.MoleculeDNA)
	require.NoError(t, err)

	_, err = db.Insert(newScaled(t, 1, 1, 2, 3, 4), "close", lineage.Parse("a"))
	require.NoError(t, err)
	_, err = db.Insert(newScaled(t, 1, 100, 101), "far", lineage.Parse("b"))
	require.NoError(t, err)

	q := newScaled(t, 1, 1, 2, 3, 5)

	t.Run("Jaccard", func(t *testing.T) {
		results, err := db.Search(q, index.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "close", results[0].Record.Name)
		assert.InDelta(t, 3.0/5.0, results[0].Score, 1e-12)
		assert.Equal(t, "db", results[0].Location)
	})

	t.Run("Containment", func(t *testing.T) {
		results, err := db.Search(q, index.SearchOptions{DoContainment: true})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 3.0/4.0, results[0].Score, 1e-12)
	})

	t.Run("ThresholdFilters", func(t *testing.T) {
		results, err := db.Search(q, index.SearchOptions{Threshold: 0.9})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestGatherLCA(t *testing.T) {
	db, err := New("db", 31, 1, sketch.MoleculeDNA)
	require.NoError(t, err)

	_, err = db.Insert(newScaled(t, 1, 1, 2, 3, 4, 5), "a", nil)
	require.NoError(t, err)
	_, err = db.Insert(newScaled(t, 1, 4, 5), "b", nil)
	require.NoError(t, err)

	q := newScaled(t, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	results, err := db.Gather(q, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Record.Name)
	assert.InDelta(t, 0.5, results[0].Score, 1e-12)

	t.Run("ThresholdExcludes", func(t *testing.T) {
		results, err := db.Gather(q, 3)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].Record.Name)
	})
}
