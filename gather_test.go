package sketchgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/sketch"
)

func TestGatherSingleMatch(t *testing.T) {
	query := newScaled(t, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	db := newDatabase(t, "refs",
		index.Record{Name: "a", Sketch: newScaled(t, 1, 1, 2, 3, 4, 5)},
	)
	engine := New([]index.Database{db})

	results, err := engine.Gather(query, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "a", res.Match.Name)
	assert.Equal(t, "refs", res.Location)
	assert.Equal(t, uint64(5), res.IntersectBP)
	assert.InDelta(t, 0.5, res.FUniqueToQuery, 1e-9)
	assert.InDelta(t, 0.5, res.FOrigQuery, 1e-9)
	assert.InDelta(t, 1.0, res.FMatch, 1e-9)
	assert.InDelta(t, 0.5, res.FUniqueWeighted, 1e-9)
	assert.Equal(t, uint64(5), res.RemainingBP)
	assert.Equal(t, 1, res.TieCount)
}

func TestGatherGreedyRounds(t *testing.T) {
	query := newScaled(t, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	db := newDatabase(t, "refs",
		index.Record{Name: "big", Sketch: newScaled(t, 1, 1, 2, 3, 4, 5, 6)},
		index.Record{Name: "small", Sketch: newScaled(t, 1, 5, 6, 7, 8)},
	)
	engine := New([]index.Database{db})

	results, err := engine.Gather(query, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The best-containing reference wins the first round; the second round
	// only credits the hashes the first one did not already explain.
	assert.Equal(t, "big", results[0].Match.Name)
	assert.Equal(t, uint64(6), results[0].IntersectBP)
	assert.InDelta(t, 0.6, results[0].FUniqueToQuery, 1e-9)
	assert.Equal(t, uint64(4), results[0].RemainingBP)

	assert.Equal(t, "small", results[1].Match.Name)
	assert.Equal(t, uint64(2), results[1].IntersectBP)
	assert.InDelta(t, 0.2, results[1].FUniqueToQuery, 1e-9)
	assert.InDelta(t, 0.4, results[1].FOrigQuery, 1e-9)
	assert.InDelta(t, 1.0, results[1].FMatch, 1e-9)
	assert.Equal(t, uint64(2), results[1].RemainingBP)
}

func TestGatherThresholdBP(t *testing.T) {
	query := newScaled(t, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	db := newDatabase(t, "refs",
		index.Record{Name: "a", Sketch: newScaled(t, 1, 1, 2, 3, 4, 5)},
		index.Record{Name: "b", Sketch: newScaled(t, 1, 6, 7, 8)},
		index.Record{Name: "c", Sketch: newScaled(t, 1, 9, 10)},
	)
	engine := New([]index.Database{db})

	results, err := engine.Gather(query, 3)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// c overlaps by only 2 hashes and never clears the threshold.
	assert.Equal(t, "a", results[0].Match.Name)
	assert.Equal(t, "b", results[1].Match.Name)
	assert.Equal(t, uint64(2), results[1].RemainingBP)
}

func TestGatherTieBreaksToAscendingName(t *testing.T) {
	query := newScaled(t, 1, 1, 2, 3, 4, 5, 6)
	db := newDatabase(t, "refs",
		index.Record{Name: "b", Sketch: newScaled(t, 1, 1, 2, 3)},
		index.Record{Name: "a", Sketch: newScaled(t, 1, 1, 2, 3)},
	)
	engine := New([]index.Database{db})

	results, err := engine.Gather(query, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "a", results[0].Match.Name)
	assert.Equal(t, 2, results[0].TieCount)
}

func TestGatherNoDatabases(t *testing.T) {
	engine := New(nil)

	results, err := engine.Gather(newScaled(t, 1, 1, 2, 3), 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGatherRejectsNumQuery(t *testing.T) {
	q, err := sketch.New(sketch.Params{
		Ksize:    31,
		Molecule: sketch.MoleculeDNA,
		Num:      4,
	})
	require.NoError(t, err)
	q.Add(1)

	engine := New([]index.Database{newDatabase(t, "refs")})

	_, err = engine.Gather(q, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, sketch.ErrNoScaled)
}

func TestGatherAbundanceWeighting(t *testing.T) {
	q, err := sketch.New(sketch.Params{
		Ksize:          31,
		Molecule:       sketch.MoleculeDNA,
		Scaled:         1,
		TrackAbundance: true,
	})
	require.NoError(t, err)
	for h := uint64(1); h <= 5; h++ {
		q.AddWithAbundance(h, 2)
	}
	for h := uint64(6); h <= 10; h++ {
		q.AddWithAbundance(h, 1)
	}

	db := newDatabase(t, "refs",
		index.Record{Name: "a", Sketch: newScaled(t, 1, 1, 2, 3, 4, 5)},
	)
	engine := New([]index.Database{db})

	results, err := engine.Gather(q, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.InDelta(t, 0.5, res.FUniqueToQuery, 1e-9)
	assert.InDelta(t, 10.0/15.0, res.FUniqueWeighted, 1e-9)
	assert.InDelta(t, 2.0, res.AverageAbund, 1e-9)
	assert.InDelta(t, 2.0, res.MedianAbund, 1e-9)
	assert.InDelta(t, 0.0, res.StdAbund, 1e-9)
}

func TestGatherCoarserMatchCoarsensRun(t *testing.T) {
	query := newScaled(t, 1, 2, 4, 6, 8)
	db := newDatabase(t, "refs",
		index.Record{Name: "coarse", Sketch: newScaled(t, 2, 2, 4)},
	)
	engine := New([]index.Database{db})

	results, err := engine.Gather(query, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The match is at scaled=2, so base pair estimates for the rest of
	// the run use that resolution.
	res := results[0]
	assert.Equal(t, uint64(4), res.IntersectBP)
	assert.InDelta(t, 0.5, res.FUniqueToQuery, 1e-9)
	assert.InDelta(t, 1.0, res.FMatch, 1e-9)
	assert.Equal(t, uint64(4), res.RemainingBP)
}
