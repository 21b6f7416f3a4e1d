// Package compare computes all-pairs similarity matrices. Each pairwise
// comparison only reads its two sketches, so the pairs are farmed out to a
// bounded worker pool.
package compare

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sketchgo/index"
)

// Options configure the matrix.
type Options struct {
	// Containment computes an asymmetric containment matrix instead of a
	// symmetric Jaccard matrix.
	Containment bool

	// Abundance uses abundance-weighted angular similarity when both
	// sketches track abundance.
	Abundance bool

	// Workers bounds concurrency; <= 0 uses GOMAXPROCS.
	Workers int
}

// Matrix computes the pairwise similarity matrix of the given records.
// Result[i][j] compares record i against record j.
func Matrix(ctx context.Context, records []index.Record, opts Options) ([][]float64, error) {
	n := len(records)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			i, j := i, j
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				a, b := records[i].Sketch, records[j].Sketch
				if i == j {
					out[i][j] = 1
					return nil
				}
				switch {
				case opts.Containment:
					ab, err := a.Containment(b)
					if err != nil {
						return err
					}
					ba, err := b.Containment(a)
					if err != nil {
						return err
					}
					out[i][j], out[j][i] = ab, ba
				case opts.Abundance && a.TracksAbundance() && b.TracksAbundance():
					score, err := a.AngularSimilarity(b)
					if err != nil {
						return err
					}
					out[i][j], out[j][i] = score, score
				default:
					score, err := a.Similarity(b)
					if err != nil {
						return err
					}
					out[i][j], out[j][i] = score, score
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
