package sbt

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sketchgo/blobstore"
	"github.com/hupe1980/sketchgo/codec"
	"github.com/hupe1980/sketchgo/index"
)

func buildTree(t *testing.T) *SBT {
	t.Helper()
	tree := New("test", WithDegree(2), WithBloomShape(1<<12, 3))
	for i := 0; i < 7; i++ {
		base := uint64(i * 10)
		require.NoError(t, tree.Insert(record(t, fmt.Sprintf("leaf-%d", i),
			base+1, base+2, base+3)))
	}
	return tree
}

func searchNames(t *testing.T, db index.Database, hashes []uint64, threshold float64) []string {
	t.Helper()
	results, err := db.Search(newScaled(t, hashes...), index.SearchOptions{Threshold: threshold})
	require.NoError(t, err)
	names := make([]string, 0, len(results))
	for _, res := range results {
		names = append(names, res.Record.Name)
	}
	return names
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	tree := buildTree(t)

	for _, comp := range []codec.Compressor{nil, codec.None{}, codec.Gzip{}, codec.LZ4{}} {
		name := "default"
		if comp != nil {
			name = comp.Name()
		}
		t.Run(name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			require.NoError(t, tree.Save(ctx, store, "db", SaveOptions{Compressor: comp}))

			loaded, err := Load(ctx, store, "db")
			require.NoError(t, err)

			assert.Equal(t, tree.Len(), loaded.Len())
			assert.Equal(t, tree.Params(), loaded.Params())

			query := []uint64{11, 12, 13}
			assert.Equal(t,
				searchNames(t, tree, query, 0.5),
				searchNames(t, loaded, query, 0.5))
		})
	}
}

// Omitting internal filters on disk loses pruning, never answers: a fully
// sparse tree must return exactly what the dense tree returns.
func TestSparseSaveKeepsAnswers(t *testing.T) {
	ctx := context.Background()
	tree := buildTree(t)

	for _, sparseness := range []float64{0.5, 1.0} {
		t.Run(fmt.Sprintf("Sparseness%.1f", sparseness), func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			require.NoError(t, tree.Save(ctx, store, "db", SaveOptions{Sparseness: sparseness}))

			loaded, err := Load(ctx, store, "db")
			require.NoError(t, err)

			for _, query := range [][]uint64{{1, 2, 3}, {21, 22, 23}, {999}} {
				assert.Equal(t,
					searchNames(t, tree, query, 0.3),
					searchNames(t, loaded, query, 0.3))
			}
		})
	}

	t.Run("FullSparsenessWritesNoFilters", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		require.NoError(t, tree.Save(ctx, store, "db", SaveOptions{Sparseness: 1.0}))

		blobs, err := store.List(ctx, "db.sbt/")
		require.NoError(t, err)
		for _, b := range blobs {
			assert.NotContains(t, b, ".bf")
		}
	})

	t.Run("OutOfRangeSparseness", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		assert.Error(t, tree.Save(ctx, store, "db", SaveOptions{Sparseness: 1.5}))
	})
}

func TestLoadRejectsMalformed(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingManifest", func(t *testing.T) {
		_, err := Load(ctx, blobstore.NewMemoryStore(), "nope")
		assert.Error(t, err)
	})

	t.Run("GarbageManifest", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		require.NoError(t, store.Put(ctx, "db.sbt.json", []byte("not json")))

		_, err := Load(ctx, store, "db")
		assert.ErrorIs(t, err, index.ErrMalformed)
	})

	t.Run("UnsupportedVersion", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		require.NoError(t, store.Put(ctx, "db.sbt.json",
			[]byte(`{"version":99,"codec":"json","compressor":"none","params":{"ksize":31,"molecule":"DNA","scaled":1}}`)))

		_, err := Load(ctx, store, "db")
		assert.ErrorIs(t, err, index.ErrMalformed)
	})

	t.Run("BadChildIndex", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		require.NoError(t, store.Put(ctx, "db.sbt.json",
			[]byte(`{"version":1,"codec":"json","compressor":"none",
				"params":{"ksize":31,"molecule":"DNA","scaled":1},
				"nodes":[{"type":"internal","children":[0]}]}`)))

		_, err := Load(ctx, store, "db")
		assert.ErrorIs(t, err, index.ErrMalformed)
	})
}
