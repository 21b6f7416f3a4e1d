// Package lca implements the hash-to-lineage database: an inverted index
// from sketch hashes to the identifiers (and taxonomic lineages) of the
// sketches containing them, with lowest-common-ancestor classification on
// top.
package lca

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/lineage"
	"github.com/hupe1980/sketchgo/sketch"
)

// Compile-time check.
var _ index.Database = (*DB)(nil)

// ErrMissingTaxonomy marks an identifier with no lineage assignment. It is
// recoverable: caller policy decides whether to skip, fail, or record the
// identifier as unassigned.
var ErrMissingTaxonomy = errors.New("lca: identifier has no lineage")

const noLineage = int32(-1)

// DB is an LCA database over scaled sketches sharing ksize and molecule.
// Build it with Insert, then query concurrently; Insert and queries must
// not overlap.
type DB struct {
	location string
	ksize    uint32
	molecule sketch.Molecule
	seed     uint32

	// scaled is the coarsest resolution ever inserted. Finer sketches are
	// downsampled on the way in; a coarser insert coarsens the whole
	// database. Coarsening is irreversible.
	scaled uint64

	hashToIdx  map[uint64]*roaring.Bitmap
	idents     []string
	identToIdx map[string]uint32

	// idxToLid maps each member to its interned lineage, or noLineage.
	idxToLid []int32
	lineages []lineage.Lineage
	lidByKey map[string]int32

	// members caches reconstructed member sketches; built on first use,
	// dropped when the database coarsens.
	members map[uint32]*sketch.Sketch
}

// New creates an empty database. location names it in results.
func New(location string, ksize uint32, scaled uint64, molecule sketch.Molecule) (*DB, error) {
	if ksize == 0 {
		return nil, fmt.Errorf("lca: ksize must be positive")
	}
	if scaled == 0 {
		return nil, fmt.Errorf("lca: scaled must be positive")
	}
	return &DB{
		location:   location,
		ksize:      ksize,
		molecule:   molecule,
		seed:       sketch.DefaultSeed,
		scaled:     scaled,
		hashToIdx:  make(map[uint64]*roaring.Bitmap),
		identToIdx: make(map[string]uint32),
		lidByKey:   make(map[string]int32),
	}, nil
}

// Location returns the database location.
func (db *DB) Location() string { return db.location }

// Ksize returns the shared k-mer size.
func (db *DB) Ksize() uint32 { return db.ksize }

// Scaled returns the current (coarsest) resolution.
func (db *DB) Scaled() uint64 { return db.scaled }

// Molecule returns the shared molecule.
func (db *DB) Molecule() sketch.Molecule { return db.molecule }

// Len returns the number of inserted sketches.
func (db *DB) Len() int { return len(db.idents) }

// Identifiers returns all inserted identifiers in insertion order.
func (db *DB) Identifiers() []string {
	out := make([]string, len(db.idents))
	copy(out, db.idents)
	return out
}

// Lineage returns the lineage recorded for ident, or ErrMissingTaxonomy.
func (db *DB) Lineage(ident string) (lineage.Lineage, error) {
	idx, ok := db.identToIdx[ident]
	if !ok {
		return nil, fmt.Errorf("lca: unknown identifier %q", ident)
	}
	lid := db.idxToLid[idx]
	if lid == noLineage {
		return nil, fmt.Errorf("%w: %q", ErrMissingTaxonomy, ident)
	}
	return db.lineages[lid], nil
}

func (db *DB) checkCompatible(s *sketch.Sketch) error {
	if !s.IsScaled() {
		return &sketch.ErrIncompatible{Param: "mode", A: "scaled", B: fmt.Sprintf("num=%d", s.Num())}
	}
	if s.Ksize() != db.ksize {
		return &sketch.ErrIncompatible{Param: "ksize", A: fmt.Sprint(db.ksize), B: fmt.Sprint(s.Ksize())}
	}
	if s.Molecule() != db.molecule {
		return &sketch.ErrIncompatible{Param: "molecule", A: db.molecule.String(), B: s.Molecule().String()}
	}
	if s.Seed() != db.seed {
		return &sketch.ErrIncompatible{Param: "seed", A: fmt.Sprint(db.seed), B: fmt.Sprint(s.Seed())}
	}
	return nil
}

// internLineage returns the id of lin, interning it on first sight.
func (db *DB) internLineage(lin lineage.Lineage) int32 {
	if len(lin) == 0 {
		return noLineage
	}
	key := lin.String()
	if lid, ok := db.lidByKey[key]; ok {
		return lid
	}
	lid := int32(len(db.lineages))
	db.lineages = append(db.lineages, lin)
	db.lidByKey[key] = lid
	return lid
}

// coarsen irreversibly downsamples the whole database to scaled.
func (db *DB) coarsen(scaled uint64) {
	maxHash := sketch.Params{Scaled: scaled}.MaxHash()
	for h := range db.hashToIdx {
		if h > maxHash {
			delete(db.hashToIdx, h)
		}
	}
	db.scaled = scaled
	db.members = nil
}

// Insert indexes a sketch under the given identifier and lineage. A nil
// lineage records the member as unassigned. The sketch is downsampled to
// the database resolution on the way in; a coarser sketch first coarsens
// the database itself.
func (db *DB) Insert(s *sketch.Sketch, ident string, lin lineage.Lineage) (uint32, error) {
	if err := db.checkCompatible(s); err != nil {
		return 0, err
	}
	if _, ok := db.identToIdx[ident]; ok {
		return 0, fmt.Errorf("lca: duplicate identifier %q", ident)
	}

	if s.Scaled() > db.scaled {
		db.coarsen(s.Scaled())
	}
	if s.Scaled() < db.scaled {
		s = s.Clone()
		if err := s.DownsampleScaled(db.scaled); err != nil {
			return 0, err
		}
	}

	idx := uint32(len(db.idents))
	db.idents = append(db.idents, ident)
	db.identToIdx[ident] = idx
	db.idxToLid = append(db.idxToLid, db.internLineage(lin))

	for _, h := range s.Hashes() {
		bm, ok := db.hashToIdx[h]
		if !ok {
			bm = roaring.New()
			db.hashToIdx[h] = bm
		}
		bm.Add(idx)
	}
	db.members = nil
	return idx, nil
}

// Assignments returns the distinct lineages of all members containing the
// hash. Unassigned members contribute nothing.
func (db *DB) Assignments(h uint64) []lineage.Lineage {
	bm, ok := db.hashToIdx[h]
	if !ok {
		return nil
	}

	seen := make(map[int32]bool)
	var out []lineage.Lineage
	it := bm.Iterator()
	for it.HasNext() {
		lid := db.idxToLid[it.Next()]
		if lid == noLineage || seen[lid] {
			continue
		}
		seen[lid] = true
		out = append(out, db.lineages[lid])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// AssignmentsMany maps each hash to its distinct lineages, skipping hashes
// with none; the result feeds lineage.CountLCA.
func (db *DB) AssignmentsMany(hashes []uint64) map[uint64][]lineage.Lineage {
	out := make(map[uint64][]lineage.Lineage)
	for _, h := range hashes {
		if lins := db.Assignments(h); len(lins) > 0 {
			out[h] = lins
		}
	}
	return out
}

// Classify computes the consensus lineage of a query sketch: the LCA counts
// over all of its hashes' assignments, best supported first.
func (db *DB) Classify(q *sketch.Sketch) ([]lineage.Count, error) {
	qq, err := db.queryView(q)
	if err != nil {
		return nil, err
	}
	return lineage.CountLCA(db.AssignmentsMany(qq.Hashes())), nil
}

// queryView downsamples q to database resolution as needed.
func (db *DB) queryView(q *sketch.Sketch) (*sketch.Sketch, error) {
	if err := db.checkCompatible(q); err != nil {
		return nil, err
	}
	if q.Scaled() < db.scaled {
		q = q.Clone()
		if err := q.DownsampleScaled(db.scaled); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// buildMembers reconstructs every member sketch from the inverted index in
// one pass.
func (db *DB) buildMembers() error {
	if db.members != nil {
		return nil
	}
	members := make(map[uint32]*sketch.Sketch, len(db.idents))
	for idx := range db.idents {
		s, err := sketch.New(sketch.Params{
			Ksize:    db.ksize,
			Molecule: db.molecule,
			Seed:     db.seed,
			Scaled:   db.scaled,
		})
		if err != nil {
			return err
		}
		members[uint32(idx)] = s
	}
	for h, bm := range db.hashToIdx {
		it := bm.Iterator()
		for it.HasNext() {
			members[it.Next()].Add(h)
		}
	}
	db.members = members
	return nil
}

// Member returns the reconstructed sketch of the given identifier.
func (db *DB) Member(ident string) (*sketch.Sketch, error) {
	idx, ok := db.identToIdx[ident]
	if !ok {
		return nil, fmt.Errorf("lca: unknown identifier %q", ident)
	}
	if err := db.buildMembers(); err != nil {
		return nil, err
	}
	return db.members[idx], nil
}

// commonCounts returns, per member, how many of the query's hashes it
// shares.
func (db *DB) commonCounts(qq *sketch.Sketch) map[uint32]uint64 {
	counts := make(map[uint32]uint64)
	for _, h := range qq.Hashes() {
		bm, ok := db.hashToIdx[h]
		if !ok {
			continue
		}
		it := bm.Iterator()
		for it.HasNext() {
			counts[it.Next()]++
		}
	}
	return counts
}

func (db *DB) record(idx uint32) index.Record {
	return index.Record{Name: db.idents[idx], Sketch: db.members[idx]}
}

// Search implements index.Database. Scores are flat (abundance is not
// stored in the inverted index).
func (db *DB) Search(q *sketch.Sketch, opts index.SearchOptions) ([]index.Result, error) {
	qq, err := db.queryView(q)
	if err != nil {
		return nil, err
	}
	if err := db.buildMembers(); err != nil {
		return nil, err
	}

	qlen := uint64(qq.Len())
	var results []index.Result
	for idx, common := range db.commonCounts(qq) {
		var score float64
		if opts.DoContainment {
			if qlen > 0 {
				score = float64(common) / float64(qlen)
			}
		} else {
			union := qlen + uint64(db.members[idx].Len()) - common
			if union > 0 {
				score = float64(common) / float64(union)
			}
		}
		if score < opts.Threshold || score == 0 {
			continue
		}
		results = append(results, index.Result{Score: score, Record: db.record(idx), Location: db.location})
	}
	index.SortResults(results)
	if opts.BestOnly && len(results) > 1 {
		results = results[:1]
	}
	return results, nil
}

// Gather implements index.Database: containment hits covering at least
// thresholdBP of the query, best first.
func (db *DB) Gather(q *sketch.Sketch, thresholdBP uint64) ([]index.Result, error) {
	qq, err := db.queryView(q)
	if err != nil {
		return nil, err
	}
	minHashes, err := index.GatherThresholdHashes(qq, thresholdBP)
	if err != nil {
		return nil, err
	}
	if err := db.buildMembers(); err != nil {
		return nil, err
	}

	qlen := uint64(qq.Len())
	if qlen == 0 {
		return nil, nil
	}
	var results []index.Result
	for idx, common := range db.commonCounts(qq) {
		if common < minHashes {
			continue
		}
		results = append(results, index.Result{
			Score:    float64(common) / float64(qlen),
			Record:   db.record(idx),
			Location: db.location,
		})
	}
	index.SortResults(results)
	return results, nil
}
