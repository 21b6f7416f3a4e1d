package lca

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sketchgo/blobstore"
	"github.com/hupe1980/sketchgo/codec"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/lineage"
	"github.com/hupe1980/sketchgo/sketch"
)

func buildDB(t *testing.T) *DB {
	t.Helper()
	db, err := New("db", 31, 1, sketch.MoleculeDNA)
	require.NoError(t, err)

	_, err = db.Insert(newScaled(t, 1, 10, 20, 30), "g1", lineage.Parse("a;b;c"))
	require.NoError(t, err)
	_, err = db.Insert(newScaled(t, 1, 10, 40), "g2", lineage.Parse("a;b;d"))
	require.NoError(t, err)
	_, err = db.Insert(newScaled(t, 1, 50), "g3", nil)
	require.NoError(t, err)
	return db
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t)

	for _, comp := range []codec.Compressor{nil, codec.None{}, codec.Gzip{}} {
		name := "default"
		if comp != nil {
			name = comp.Name()
		}
		t.Run(name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			require.NoError(t, db.Save(ctx, store, "tax", SaveOptions{Compressor: comp}))

			loaded, err := Load(ctx, store, "tax")
			require.NoError(t, err)

			assert.Equal(t, db.Len(), loaded.Len())
			assert.Equal(t, db.Ksize(), loaded.Ksize())
			assert.Equal(t, db.Scaled(), loaded.Scaled())
			assert.Equal(t, db.Molecule(), loaded.Molecule())
			assert.Equal(t, db.Identifiers(), loaded.Identifiers())

			// Assignment equality over every indexed hash.
			for _, h := range []uint64{10, 20, 30, 40, 50, 999} {
				want := db.Assignments(h)
				got := loaded.Assignments(h)
				require.Len(t, got, len(want), "hash %d", h)
				for i := range want {
					assert.True(t, want[i].Equal(got[i]), "hash %d", h)
				}
			}

			// The unassigned member survives as unassigned.
			lin, err := loaded.Lineage("g3")
			require.NoError(t, err)
			assert.Empty(t, lin)

			// Classification agrees.
			q := newScaled(t, 1, 10, 20, 30)
			want, err := db.Classify(q)
			require.NoError(t, err)
			got, err := loaded.Classify(q)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	ctx := context.Background()

	put := func(t *testing.T, manifest, data string) blobstore.Store {
		t.Helper()
		store := blobstore.NewMemoryStore()
		if manifest != "" {
			require.NoError(t, store.Put(ctx, "tax.lca.json", []byte(manifest)))
		}
		if data != "" {
			require.NoError(t, store.Put(ctx, "tax.lca/data", []byte(data)))
		}
		return store
	}

	valid := `{"version":1,"codec":"json","compressor":"none","ksize":31,"scaled":1,"seed":42,"molecule":"DNA"}`

	tests := []struct {
		name     string
		manifest string
		data     string
	}{
		{"MissingManifest", "", ""},
		{"GarbageManifest", "not json", ""},
		{"UnsupportedVersion", `{"version":9,"codec":"json","compressor":"none","ksize":31,"scaled":1,"molecule":"DNA"}`, ""},
		{"UnknownCompressor", `{"version":1,"codec":"json","compressor":"brotli","ksize":31,"scaled":1,"molecule":"DNA"}`, ""},
		{"MissingData", valid, ""},
		{"GarbageData", valid, "not json"},
		{"PostingsLengthMismatch", valid, `{"idents":["a"],"idx_to_lid":[-1],"hashes":[1,2],"postings":[[0]]}`},
		{"IdentsLengthMismatch", valid, `{"idents":["a"],"idx_to_lid":[-1,-1],"hashes":[],"postings":[]}`},
		{"DuplicateIdent", valid, `{"idents":["a","a"],"idx_to_lid":[-1,-1],"hashes":[],"postings":[]}`},
		{"PostingOutOfRange", valid, `{"idents":["a"],"idx_to_lid":[-1],"hashes":[1],"postings":[[5]]}`},
		{"LineageIDOutOfRange", valid, `{"idents":["a"],"idx_to_lid":[3],"hashes":[],"postings":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := put(t, tt.manifest, tt.data)
			_, err := Load(ctx, store, "tax")
			assert.Error(t, err)
		})
	}

	t.Run("MarksMalformed", func(t *testing.T) {
		store := put(t, "not json", "")
		_, err := Load(ctx, store, "tax")
		assert.ErrorIs(t, err, index.ErrMalformed)
	})
}
