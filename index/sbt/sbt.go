// Package sbt implements the sequence Bloom tree: an n-ary tree whose
// internal nodes carry Bloom filters over the union of all descendant leaf
// hashes, enabling sublinear search by pruning subtrees the filter proves
// cannot match.
package sbt

import (
	"fmt"

	"github.com/hupe1980/sketchgo/bloom"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/sketch"
)

// Compile-time check.
var _ index.Database = (*SBT)(nil)

const (
	// DefaultDegree is the default arity of internal nodes.
	DefaultDegree = 2

	// DefaultBloomBits sizes internal filters. All filters in one tree
	// share a shape so they can be unioned.
	DefaultBloomBits = 1 << 22

	// DefaultBloomHashes is the number of Bloom hash functions.
	DefaultBloomHashes = 4
)

// Option configures an SBT.
type Option func(*SBT)

// WithDegree sets the maximum number of children per internal node.
func WithDegree(degree int) Option {
	return func(t *SBT) {
		if degree >= 2 {
			t.degree = degree
		}
	}
}

// WithBloomShape sets the size in bits and hash-function count of the
// internal Bloom filters.
func WithBloomShape(bits uint64, hashes uint32) Option {
	return func(t *SBT) {
		if bits > 0 {
			t.bloomBits = bits
		}
		if hashes > 0 {
			t.bloomHashes = hashes
		}
	}
}

type node struct {
	// filter is set on internal nodes. A nil filter on an internal node
	// (sparse load) disables pruning there; search recurses regardless.
	filter *bloom.Filter

	// record is set on leaves.
	record *index.Record

	children []*node

	// leaves counts the leaf records in this subtree.
	leaves int
}

func (n *node) isLeaf() bool { return n.record != nil }

// SBT is a sequence Bloom tree. Build it with Insert, then query
// concurrently; Insert and queries must not overlap.
type SBT struct {
	location    string
	degree      int
	bloomBits   uint64
	bloomHashes uint32

	// params are fixed by the first inserted sketch; every later insert
	// must match exactly, including resolution.
	params sketch.Params
	root   *node
	size   int
}

// New creates an empty tree. location names the tree in results.
func New(location string, opts ...Option) *SBT {
	t := &SBT{
		location:    location,
		degree:      DefaultDegree,
		bloomBits:   DefaultBloomBits,
		bloomHashes: DefaultBloomHashes,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Len returns the number of leaves.
func (t *SBT) Len() int { return t.size }

// Location returns the tree location.
func (t *SBT) Location() string { return t.location }

// Params returns the comparability parameters shared by all leaves. The
// zero value is returned for an empty tree.
func (t *SBT) Params() sketch.Params { return t.params }

func (t *SBT) checkCompatible(s *sketch.Sketch) error {
	p := s.Params()
	if t.size == 0 {
		return nil
	}
	if t.params.Ksize != p.Ksize || t.params.Molecule != p.Molecule || t.params.Seed != p.Seed ||
		t.params.Num != p.Num || t.params.Scaled != p.Scaled {
		return &sketch.ErrIncompatible{
			Param: "tree parameters",
			A:     fmt.Sprintf("ksize=%d molecule=%s scaled=%d num=%d", t.params.Ksize, t.params.Molecule, t.params.Scaled, t.params.Num),
			B:     fmt.Sprintf("ksize=%d molecule=%s scaled=%d num=%d", p.Ksize, p.Molecule, p.Scaled, p.Num),
		}
	}
	return nil
}

func (t *SBT) newFilter() (*bloom.Filter, error) {
	return bloom.New(t.bloomBits, t.bloomHashes)
}

// Insert adds a record to the tree. The first insert fixes the tree
// parameters; inserting a sketch with different parameters fails.
func (t *SBT) Insert(rec index.Record) error {
	if rec.Sketch == nil {
		return fmt.Errorf("sbt: record %q has no sketch", rec.Name)
	}
	if err := t.checkCompatible(rec.Sketch); err != nil {
		return err
	}

	leaf := &node{record: &rec, leaves: 1}
	if t.root == nil {
		t.root = leaf
	} else if err := t.insert(t.root, leaf); err != nil {
		return err
	}

	if t.size == 0 {
		p := rec.Sketch.Params()
		p.TrackAbundance = false
		t.params = p
	}
	t.size++
	return nil
}

// insert places leaf under cur. cur is never a leaf except at the root,
// which the caller has already handled; a leaf hit here is split into an
// internal node over both leaves.
func (t *SBT) insert(cur, leaf *node) error {
	hashes := leaf.record.Sketch.Hashes()

	if cur.isLeaf() {
		// Split: cur becomes internal over the old and new leaf.
		old := &node{record: cur.record, leaves: 1}
		filter, err := t.newFilter()
		if err != nil {
			return err
		}
		filter.AddMany(old.record.Sketch.Hashes())
		filter.AddMany(hashes)
		cur.record = nil
		cur.filter = filter
		cur.children = []*node{old, leaf}
		cur.leaves = 2
		return nil
	}

	if cur.filter != nil {
		cur.filter.AddMany(hashes)
	}
	cur.leaves++

	if len(cur.children) < t.degree {
		cur.children = append(cur.children, leaf)
		return nil
	}

	// Descend into the least-loaded child; ties break to the lowest slot
	// so tree shapes are deterministic.
	best := 0
	for i, c := range cur.children[1:] {
		if c.leaves < cur.children[best].leaves {
			best = i + 1
		}
	}
	return t.insert(cur.children[best], leaf)
}

// Combine merges other into t by building a new root over both trees. The
// trees must share parameters, degree and Bloom shape.
func (t *SBT) Combine(other *SBT) error {
	if other.root == nil {
		return nil
	}
	if t.root == nil {
		t.root = other.root
		t.params = other.params
		t.size = other.size
		t.bloomBits = other.bloomBits
		t.bloomHashes = other.bloomHashes
		return nil
	}
	if t.params != other.params {
		return &sketch.ErrIncompatible{
			Param: "tree parameters",
			A:     fmt.Sprintf("ksize=%d molecule=%s scaled=%d num=%d", t.params.Ksize, t.params.Molecule, t.params.Scaled, t.params.Num),
			B:     fmt.Sprintf("ksize=%d molecule=%s scaled=%d num=%d", other.params.Ksize, other.params.Molecule, other.params.Scaled, other.params.Num),
		}
	}
	if t.bloomBits != other.bloomBits || t.bloomHashes != other.bloomHashes {
		return fmt.Errorf("sbt: cannot combine trees with different bloom shapes")
	}

	filter, err := t.newFilter()
	if err != nil {
		return err
	}
	for _, sub := range []*node{t.root, other.root} {
		if err := unionInto(filter, sub); err != nil {
			return err
		}
	}
	t.root = &node{
		filter:   filter,
		children: []*node{t.root, other.root},
		leaves:   t.size + other.size,
	}
	t.size += other.size
	return nil
}

// unionInto folds the content of sub into filter, preferring an existing
// child filter over walking all leaves.
func unionInto(filter *bloom.Filter, sub *node) error {
	if sub.isLeaf() {
		filter.AddMany(sub.record.Sketch.Hashes())
		return nil
	}
	if sub.filter != nil {
		return filter.Union(sub.filter)
	}
	for _, c := range sub.children {
		if err := unionInto(filter, c); err != nil {
			return err
		}
	}
	return nil
}

// Predicate decides whether a subtree with at most matched of the query's
// queryLen hashes can still satisfy the search. It must be monotone: if it
// rejects an upper bound, it must reject every smaller intersection.
type Predicate func(matched, queryLen int, threshold float64) bool

// SearchPredicate bounds scaled-mode Jaccard and containment scores: each
// is at most matched/queryLen, so a subtree failing this can be pruned. It
// does not bound the num-mode similarity, whose divisor is the smaller of
// the two sketches.
func SearchPredicate(matched, queryLen int, threshold float64) bool {
	if queryLen == 0 {
		return false
	}
	return float64(matched)/float64(queryLen) >= threshold
}

// queryView returns the query at the tree resolution plus its hash list.
func (t *SBT) queryView(q *sketch.Sketch) (*sketch.Sketch, []uint64, error) {
	qq := q
	if t.params.Scaled > 0 && q.Scaled() > 0 && q.Scaled() < t.params.Scaled {
		qq = q.Clone()
		if err := qq.DownsampleScaled(t.params.Scaled); err != nil {
			return nil, nil, err
		}
	}
	return qq, qq.Hashes(), nil
}

// Find runs a depth-first traversal, pruning internal nodes whose Bloom
// filter proves the predicate unsatisfiable, and returns the leaf records
// whose exact intersection with the query passes the predicate. An empty
// tree finds nothing.
func (t *SBT) Find(q *sketch.Sketch, threshold float64, pred Predicate) ([]index.Record, error) {
	if t.root == nil {
		return nil, nil
	}
	qq, hashes, err := t.queryView(q)
	if err != nil {
		return nil, err
	}

	var out []index.Record
	var walk func(n *node) error
	walk = func(n *node) error {
		if n.isLeaf() {
			inter, err := qq.Intersection(n.record.Sketch)
			if err != nil {
				return err
			}
			if pred(int(inter), len(hashes), threshold) {
				out = append(out, *n.record)
			}
			return nil
		}
		if n.filter != nil {
			matched := n.filter.ContainsCount(hashes)
			if !pred(matched, len(hashes), threshold) {
				return nil
			}
		}
		for _, c := range n.children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(t.root); err != nil {
		return nil, err
	}
	return out, nil
}

// Leaves returns all leaf records in insertion-independent tree order.
func (t *SBT) Leaves() []index.Record {
	var out []index.Record
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.isLeaf() {
			out = append(out, *n.record)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return out
}

// Search implements index.Database. Threshold pruning only applies where
// matched/queryLen bounds the final score: it is disabled for
// abundance-weighted queries (the angular score is not set-monotone) and
// for num-mode queries (the similarity divisor is the smaller sketch, so a
// small leaf can outscore the bound). Both cases still score every leaf
// exactly; only the sublinear traversal is lost.
func (t *SBT) Search(q *sketch.Sketch, opts index.SearchOptions) ([]index.Result, error) {
	pred := Predicate(SearchPredicate)
	if (!opts.IgnoreAbundance && q.TracksAbundance()) || !q.IsScaled() {
		pred = func(int, int, float64) bool { return true }
	}

	candidates, err := t.Find(q, opts.Threshold, pred)
	if err != nil {
		return nil, err
	}

	var results []index.Result
	for _, rec := range candidates {
		score, err := index.ScoreSearch(q, rec.Sketch, opts)
		if err != nil {
			return nil, err
		}
		if score < opts.Threshold || score == 0 {
			continue
		}
		results = append(results, index.Result{Score: score, Record: rec, Location: t.location})
	}
	index.SortResults(results)
	if opts.BestOnly && len(results) > 1 {
		results = results[:1]
	}
	return results, nil
}

// Gather implements index.Database: containment hits covering at least
// thresholdBP of the query, best first.
func (t *SBT) Gather(q *sketch.Sketch, thresholdBP uint64) ([]index.Result, error) {
	if t.root == nil {
		return nil, nil
	}
	minHashes, err := index.GatherThresholdHashes(q, thresholdBP)
	if err != nil {
		return nil, err
	}
	qq, hashes, err := t.queryView(q)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, nil
	}
	threshold := float64(minHashes) / float64(len(hashes))

	candidates, err := t.Find(q, threshold, SearchPredicate)
	if err != nil {
		return nil, err
	}

	var results []index.Result
	for _, rec := range candidates {
		containment, err := qq.Containment(rec.Sketch)
		if err != nil {
			return nil, err
		}
		if containment == 0 {
			continue
		}
		results = append(results, index.Result{Score: containment, Record: rec, Location: t.location})
	}
	index.SortResults(results)
	return results, nil
}
