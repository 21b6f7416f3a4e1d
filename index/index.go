// Package index defines the database contract shared by every sketch
// collection that can be searched or gathered against: flat lists, sequence
// Bloom trees and LCA databases.
package index

import (
	"errors"
	"sort"

	"github.com/hupe1980/sketchgo/sketch"
)

// ErrMalformed indicates a corrupt or unsupported on-disk index. Loading
// fails atomically: no partially-loaded database is ever returned.
var ErrMalformed = errors.New("index: malformed index")

// Record is one indexed sketch with its metadata.
type Record struct {
	Name     string
	Filename string
	Sketch   *sketch.Sketch
}

// Result is a single search or gather hit.
type Result struct {
	// Score is the similarity or containment, depending on the query.
	Score float64

	Record Record

	// Location names the database the hit came from.
	Location string
}

// SearchOptions control Database.Search scoring.
type SearchOptions struct {
	// Threshold is the minimum score for a hit to be reported.
	Threshold float64

	// DoContainment scores by containment of the query in the match
	// instead of Jaccard similarity.
	DoContainment bool

	// BestOnly returns at most the single best hit.
	BestOnly bool

	// IgnoreAbundance disables abundance weighting even when both
	// sketches track abundance.
	IgnoreAbundance bool
}

// Database is anything gather and search can run against.
//
// Gather returns containment hits of the query whose intersection covers at
// least thresholdBP estimated base pairs, best first. Implementations must
// never report a zero-containment hit; the gather engine treats that as a
// contract violation.
type Database interface {
	Search(q *sketch.Sketch, opts SearchOptions) ([]Result, error)
	Gather(q *sketch.Sketch, thresholdBP uint64) ([]Result, error)
	Location() string
}

// SortResults orders hits by descending score, ties by ascending name.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.Name < results[j].Record.Name
	})
}

// ScoreSearch computes the Search score of q against m per opts.
func ScoreSearch(q, m *sketch.Sketch, opts SearchOptions) (float64, error) {
	if opts.DoContainment {
		return q.Containment(m)
	}
	if !opts.IgnoreAbundance && q.TracksAbundance() && m.TracksAbundance() {
		return q.AngularSimilarity(m)
	}
	return q.Similarity(m)
}

// GatherThresholdHashes converts a base-pair threshold into a hash-count
// threshold at the query's resolution. A zero bp threshold still requires
// one shared hash.
func GatherThresholdHashes(q *sketch.Sketch, thresholdBP uint64) (uint64, error) {
	scaled := q.Scaled()
	if scaled == 0 {
		return 0, sketch.ErrNoScaled
	}
	n := thresholdBP / scaled
	if thresholdBP%scaled != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n, nil
}
