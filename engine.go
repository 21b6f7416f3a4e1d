// Package sketchgo searches and decomposes sequence sketches against
// collections of reference sketches: flat lists, sequence Bloom trees and
// LCA databases, all behind the same database contract.
package sketchgo

import (
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/sketch"
)

type options struct {
	logger *Logger
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// Engine runs searches and gather decompositions across one or more
// databases. It is stateless between calls; the only mutable state during
// a gather run is the engine's private copy of the query.
type Engine struct {
	databases []index.Database
	logger    *Logger
}

// New creates an Engine over the given databases.
func New(databases []index.Database, opts ...Option) *Engine {
	o := options{logger: NoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{databases: databases, logger: o.logger}
}

// Search fans the query out to every database and returns the merged hits,
// best first, ties by ascending name.
func (e *Engine) Search(q *sketch.Sketch, opts index.SearchOptions) ([]index.Result, error) {
	var results []index.Result
	for _, db := range e.databases {
		hits, err := db.Search(q, opts)
		if err != nil {
			return nil, err
		}
		e.logger.WithDatabase(db.Location()).Debug("search", "hits", len(hits))
		results = append(results, hits...)
	}
	index.SortResults(results)
	if opts.BestOnly && len(results) > 1 {
		results = results[:1]
	}
	return results, nil
}
