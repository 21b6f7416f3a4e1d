package sketchgo

import (
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/sketch"
)

// GatherResult is one round of the greedy decomposition: the best-containing
// reference found, how much of the query it newly explains, and what is
// left.
type GatherResult struct {
	// IntersectBP is the estimated base pairs shared between the match
	// and the not-yet-explained query.
	IntersectBP uint64

	// FUniqueToQuery is the fraction of the original query newly
	// explained by this match.
	FUniqueToQuery float64

	// FUniqueWeighted is FUniqueToQuery weighted by query abundance.
	// Equal to FUniqueToQuery when the query does not track abundance.
	FUniqueWeighted float64

	// FOrigQuery is the fraction of the original query contained in this
	// match, ignoring previous rounds.
	FOrigQuery float64

	// FMatch is the fraction of the match contained in the original
	// query.
	FMatch float64

	// AverageAbund, MedianAbund and StdAbund describe the query
	// abundances over the newly explained hashes; zero when the query
	// does not track abundance.
	AverageAbund float64
	MedianAbund  float64
	StdAbund     float64

	// Match is the matched reference record.
	Match index.Record

	// Location names the database the match came from.
	Location string

	// TieCount is the number of references (this one included) that
	// scored equally this round; the tie broke to the ascending name.
	TieCount int

	// RemainingBP is the estimated unexplained base pairs after removal.
	RemainingBP uint64
}

// Gather greedily decomposes the query: each round finds the reference with
// best containment of the remaining query across all databases, reports how
// much it explains, subtracts its hashes, and repeats. It stops when no
// database reports a match covering thresholdBP, or when the remaining
// query falls below thresholdBP.
//
// The query must be a scaled sketch: gather's accounting needs the
// deterministic modulo filter. When a match is coarser than the query, the
// run irreversibly coarsens to that resolution for all later accounting.
func (e *Engine) Gather(q *sketch.Sketch, thresholdBP uint64) ([]GatherResult, error) {
	if !q.IsScaled() {
		return nil, fmt.Errorf("gather: %w", sketch.ErrNoScaled)
	}

	orig := q.Clone() // keeps abundances for weighting
	origFlat := q.Clone()
	origFlat.Flatten()
	current := q.Clone()
	current.Flatten()
	currentScaled := q.Scaled()

	var out []GatherResult
	for current.Len() > 0 {
		best, tieCount, err := e.bestContainment(current, thresholdBP)
		if err != nil {
			return out, err
		}
		if best == nil {
			break
		}

		// Resolution reconciliation: a coarser match coarsens the rest
		// of the run.
		match := best.Record.Sketch
		if match.Scaled() > currentScaled {
			currentScaled = match.Scaled()
			if err := current.DownsampleScaled(currentScaled); err != nil {
				return out, err
			}
			if err := origFlat.DownsampleScaled(currentScaled); err != nil {
				return out, err
			}
		}
		matchAtRes := match
		if match.Scaled() < currentScaled {
			matchAtRes = match.Clone()
			matchAtRes.Flatten()
			if err := matchAtRes.DownsampleScaled(currentScaled); err != nil {
				return out, err
			}
		}

		interCurrent := intersectHashes(current, matchAtRes)
		if len(interCurrent) == 0 {
			break
		}
		interOrig := intersectHashes(origFlat, matchAtRes)

		origLen := origFlat.Len()
		res := GatherResult{
			IntersectBP:    uint64(len(interCurrent)) * currentScaled,
			FUniqueToQuery: float64(len(interCurrent)) / float64(origLen),
			FOrigQuery:     float64(len(interOrig)) / float64(origLen),
			FMatch:         float64(len(interOrig)) / float64(matchAtRes.Len()),
			Match:          best.Record,
			Location:       best.Location,
			TieCount:       tieCount,
		}
		res.FUniqueWeighted = res.FUniqueToQuery
		if orig.TracksAbundance() {
			res.AverageAbund, res.MedianAbund, res.StdAbund = abundStats(orig, interCurrent)
			res.FUniqueWeighted = weightedFraction(orig, interCurrent, origFlat.Hashes())
		}

		if err := current.Subtract(matchAtRes); err != nil {
			return out, err
		}
		res.RemainingBP = uint64(current.Len()) * currentScaled

		e.logger.WithDatabase(best.Location).Debug("gather round",
			"match", best.Record.Name,
			"intersect_bp", res.IntersectBP,
			"remaining_bp", res.RemainingBP,
		)
		out = append(out, res)

		if res.RemainingBP < thresholdBP {
			break
		}
	}
	return out, nil
}

// bestContainment asks every database for its best gather hit and picks the
// global best; ties count and break to the ascending name. A database
// reporting a zero-containment hit violates the contract and panics.
func (e *Engine) bestContainment(current *sketch.Sketch, thresholdBP uint64) (*index.Result, int, error) {
	var all []index.Result
	for _, db := range e.databases {
		hits, err := db.Gather(current, thresholdBP)
		if err != nil {
			return nil, 0, err
		}
		for _, hit := range hits {
			if hit.Score == 0 {
				panic(fmt.Sprintf("sketchgo: database %s returned a zero-containment gather match", db.Location()))
			}
		}
		all = append(all, hits...)
	}
	if len(all) == 0 {
		return nil, 0, nil
	}
	index.SortResults(all)
	best := all[0]
	tieCount := 0
	for _, hit := range all {
		if hit.Score == best.Score {
			tieCount++
		}
	}
	return &best, tieCount, nil
}

// intersectHashes returns the hashes of b present in a, ascending.
func intersectHashes(a, b *sketch.Sketch) []uint64 {
	var out []uint64
	for _, h := range b.Hashes() {
		if a.Contains(h) {
			out = append(out, h)
		}
	}
	return out
}

// abundStats summarizes the query abundances over the given hashes.
func abundStats(orig *sketch.Sketch, hashes []uint64) (mean, median, std float64) {
	if len(hashes) == 0 {
		return 0, 0, 0
	}
	counts := make([]float64, len(hashes))
	var sum float64
	for i, h := range hashes {
		c := float64(orig.Abundance(h))
		counts[i] = c
		sum += c
	}
	mean = sum / float64(len(counts))

	sort.Float64s(counts)
	mid := len(counts) / 2
	if len(counts)%2 == 0 {
		median = (counts[mid-1] + counts[mid]) / 2
	} else {
		median = counts[mid]
	}

	var sq float64
	for _, c := range counts {
		sq += (c - mean) * (c - mean)
	}
	std = math.Sqrt(sq / float64(len(counts)))
	return mean, median, std
}

// weightedFraction is the abundance-weighted share of the original query
// covered by the given hashes.
func weightedFraction(orig *sketch.Sketch, hashes, origHashes []uint64) float64 {
	var num, den float64
	for _, h := range origHashes {
		den += float64(orig.Abundance(h))
	}
	if den == 0 {
		return 0
	}
	for _, h := range hashes {
		num += float64(orig.Abundance(h))
	}
	return num / den
}
