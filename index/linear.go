package index

import (
	"github.com/hupe1980/sketchgo/sketch"
)

// Compile-time check.
var _ Database = (*LinearIndex)(nil)

// LinearIndex is the degenerate database: a flat list of records scanned
// one by one. It is the reference against which tree indexes are tested.
type LinearIndex struct {
	location string
	records  []Record
}

// NewLinearIndex creates an empty linear index. location names the index in
// results (typically the file it was loaded from).
func NewLinearIndex(location string) *LinearIndex {
	return &LinearIndex{location: location}
}

// Insert appends a record.
func (l *LinearIndex) Insert(rec Record) {
	l.records = append(l.records, rec)
}

// Len returns the number of records.
func (l *LinearIndex) Len() int { return len(l.records) }

// Records returns the backing slice; callers must not mutate the sketches
// while the index is being queried elsewhere.
func (l *LinearIndex) Records() []Record { return l.records }

// Location returns the index location.
func (l *LinearIndex) Location() string { return l.location }

// Search scans every record and scores it against the query.
func (l *LinearIndex) Search(q *sketch.Sketch, opts SearchOptions) ([]Result, error) {
	var results []Result
	for _, rec := range l.records {
		score, err := ScoreSearch(q, rec.Sketch, opts)
		if err != nil {
			return nil, err
		}
		if score < opts.Threshold || score == 0 {
			continue
		}
		results = append(results, Result{Score: score, Record: rec, Location: l.location})
	}
	SortResults(results)
	if opts.BestOnly && len(results) > 1 {
		results = results[:1]
	}
	return results, nil
}

// Gather returns containment hits whose intersection with the query covers
// at least thresholdBP, best first.
func (l *LinearIndex) Gather(q *sketch.Sketch, thresholdBP uint64) ([]Result, error) {
	minHashes, err := GatherThresholdHashes(q, thresholdBP)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, rec := range l.records {
		inter, err := q.Intersection(rec.Sketch)
		if err != nil {
			return nil, err
		}
		if inter < minHashes {
			continue
		}
		containment, err := q.Containment(rec.Sketch)
		if err != nil {
			return nil, err
		}
		if containment == 0 {
			continue
		}
		results = append(results, Result{Score: containment, Record: rec, Location: l.location})
	}
	SortResults(results)
	return results, nil
}
