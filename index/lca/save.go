package lca

import (
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/sketchgo/blobstore"
	"github.com/hupe1980/sketchgo/codec"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/lineage"
	"github.com/hupe1980/sketchgo/sketch"
)

const manifestVersion = 1

type manifestJSON struct {
	Version    int    `json:"version"`
	Codec      string `json:"codec"`
	Compressor string `json:"compressor"`
	Ksize      uint32 `json:"ksize"`
	Scaled     uint64 `json:"scaled"`
	Seed       uint32 `json:"seed"`
	Molecule   string `json:"molecule"`
}

// dataJSON holds the index payload. Hashes and postings are parallel
// arrays sorted by hash, so files diff and compress deterministically.
type dataJSON struct {
	Idents   []string         `json:"idents"`
	IdxToLid []int32          `json:"idx_to_lid"`
	Lineages [][]lineage.Pair `json:"lineages"`
	Hashes   []uint64         `json:"hashes"`
	Postings [][]uint32       `json:"postings"`
}

// SaveOptions control persistence.
type SaveOptions struct {
	// Codec encodes the payload; nil uses codec.Default.
	Codec codec.Codec

	// Compressor compresses the payload blob; nil uses
	// codec.DefaultCompressor.
	Compressor codec.Compressor
}

// Save writes the database under the given name: a manifest blob
// "<name>.lca.json" plus the compressed payload "<name>.lca/data".
func (db *DB) Save(ctx context.Context, store blobstore.Store, name string, opts SaveOptions) error {
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}
	comp := opts.Compressor
	if comp == nil {
		comp = codec.DefaultCompressor
	}

	data := dataJSON{
		Idents:   db.idents,
		IdxToLid: db.idxToLid,
	}
	for _, lin := range db.lineages {
		data.Lineages = append(data.Lineages, lin)
	}

	hashes := make([]uint64, 0, len(db.hashToIdx))
	for h := range db.hashToIdx {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	data.Hashes = hashes
	data.Postings = make([][]uint32, len(hashes))
	for i, h := range hashes {
		data.Postings[i] = db.hashToIdx[h].ToArray()
	}

	payload, err := c.Marshal(data)
	if err != nil {
		return err
	}
	compressed, err := comp.Compress(payload)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, name+".lca/data", compressed); err != nil {
		return err
	}

	m := manifestJSON{
		Version:    manifestVersion,
		Codec:      c.Name(),
		Compressor: comp.Name(),
		Ksize:      db.ksize,
		Scaled:     db.scaled,
		Seed:       db.seed,
		Molecule:   db.molecule.String(),
	}
	raw, err := (codec.JSON{}).Marshal(m)
	if err != nil {
		return err
	}
	return store.Put(ctx, name+".lca.json", raw)
}

// Load reads a database saved by Save. Corrupt or unsupported files fail
// with index.ErrMalformed naming the file; nothing partial is returned.
func Load(ctx context.Context, store blobstore.Store, name string) (*DB, error) {
	manifestName := name + ".lca.json"
	raw, err := blobstore.ReadAll(ctx, store, manifestName)
	if err != nil {
		return nil, fmt.Errorf("lca: reading %s: %w", manifestName, err)
	}
	var m manifestJSON
	if err := (codec.JSON{}).Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, manifestName, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", index.ErrMalformed, manifestName, m.Version)
	}
	c, ok := codec.ByName(m.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown codec %q", index.ErrMalformed, manifestName, m.Codec)
	}
	comp, ok := codec.CompressorByName(m.Compressor)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown compressor %q", index.ErrMalformed, manifestName, m.Compressor)
	}
	mol, err := sketch.ParseMolecule(m.Molecule)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, manifestName, err)
	}

	dataName := name + ".lca/data"
	compressed, err := blobstore.ReadAll(ctx, store, dataName)
	if err != nil {
		return nil, fmt.Errorf("lca: reading %s: %w", dataName, err)
	}
	payload, err := comp.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, dataName, err)
	}
	var data dataJSON
	if err := c.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, dataName, err)
	}
	if len(data.Hashes) != len(data.Postings) {
		return nil, fmt.Errorf("%w: %s: %d hashes but %d postings", index.ErrMalformed, dataName, len(data.Hashes), len(data.Postings))
	}
	if len(data.Idents) != len(data.IdxToLid) {
		return nil, fmt.Errorf("%w: %s: %d idents but %d lineage ids", index.ErrMalformed, dataName, len(data.Idents), len(data.IdxToLid))
	}

	db, err := New(manifestName, m.Ksize, m.Scaled, mol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, manifestName, err)
	}
	db.seed = m.Seed

	for idx, ident := range data.Idents {
		if _, dup := db.identToIdx[ident]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate identifier %q", index.ErrMalformed, dataName, ident)
		}
		db.identToIdx[ident] = uint32(idx)
	}
	db.idents = data.Idents
	db.idxToLid = data.IdxToLid
	for _, pairs := range data.Lineages {
		lin := lineage.Lineage(pairs).Trim()
		db.lineages = append(db.lineages, lin)
		db.lidByKey[lin.String()] = int32(len(db.lineages) - 1)
	}
	for _, lid := range db.idxToLid {
		if lid != noLineage && (lid < 0 || int(lid) >= len(db.lineages)) {
			return nil, fmt.Errorf("%w: %s: lineage id %d out of range", index.ErrMalformed, dataName, lid)
		}
	}

	for i, h := range data.Hashes {
		bm := roaring.New()
		for _, idx := range data.Postings[i] {
			if int(idx) >= len(db.idents) {
				return nil, fmt.Errorf("%w: %s: member index %d out of range", index.ErrMalformed, dataName, idx)
			}
			bm.Add(idx)
		}
		db.hashToIdx[h] = bm
	}
	return db, nil
}
