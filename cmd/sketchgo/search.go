package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	sketchgo "github.com/hupe1980/sketchgo"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/sketch"
)

func cmdSearch(args []string) error {
	fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
	fs.Uint32P("ksize", "k", 31, "k-mer size")
	fs.String("molecule", "dna", "molecule type: dna, protein, dayhoff or hp")
	fs.Float64("threshold", 0.08, "minimum similarity to report")
	fs.Bool("containment", false, "score by containment instead of similarity")
	fs.Bool("best-only", false, "report only the best match")
	fs.Bool("ignore-abundance", false, "ignore abundances even when tracked")
	fs.IntP("num-results", "n", 0, "limit the number of results (0: all)")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("search: need a query signature and at least one database")
	}

	mol, err := sketch.ParseMolecule(v.GetString("molecule"))
	if err != nil {
		return err
	}
	ksize := v.GetUint32("ksize")

	q, qname, err := loadQuery(rest[0], ksize, mol)
	if err != nil {
		return err
	}

	ctx := context.Background()
	dbs, err := openDatabases(ctx, rest[1:], ksize, mol)
	if err != nil {
		return err
	}

	engine := sketchgo.New(dbs, sketchgo.WithLogger(newLogger(v)))

	results, err := engine.Search(q, index.SearchOptions{
		Threshold:       v.GetFloat64("threshold"),
		DoContainment:   v.GetBool("containment"),
		BestOnly:        v.GetBool("best-only"),
		IgnoreAbundance: v.GetBool("ignore-abundance"),
	})
	if err != nil {
		return err
	}

	if limit := v.GetInt("num-results"); limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		fmt.Printf("no matches for %s above threshold %.3f\n", qname, v.GetFloat64("threshold"))
		return nil
	}

	fmt.Printf("%d matches for %s:\n\n", len(results), qname)
	fmt.Println("similarity  match")
	fmt.Println("----------  -----")
	for _, res := range results {
		fmt.Printf("%9.1f%%  %s\n", res.Score*100, res.Record.Name)
	}
	return nil
}
