package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	sketchgo "github.com/hupe1980/sketchgo"
	"github.com/hupe1980/sketchgo/sketch"
)

func cmdGather(args []string) error {
	fs := pflag.NewFlagSet("gather", pflag.ContinueOnError)
	fs.Uint32P("ksize", "k", 31, "k-mer size")
	fs.String("molecule", "dna", "molecule type: dna, protein, dayhoff or hp")
	fs.Uint64("threshold-bp", 50000, "stop below this many estimated base pairs")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("gather: need a query signature and at least one database")
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

	results, err := engine.Gather(q, v.GetUint64("threshold-bp"))
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Printf("no matches for %s\n", qname)
		return nil
	}

	fmt.Printf("decomposition of %s:\n\n", qname)
	fmt.Println("overlap     p_query  p_match  match")
	fmt.Println("-------     -------  -------  -----")
	for _, res := range results {
		fmt.Printf("%8s  %7.1f%%  %6.1f%%  %s",
			formatBP(res.IntersectBP), res.FOrigQuery*100, res.FMatch*100, res.Match.Name)
		if res.TieCount > 1 {
			fmt.Printf("  (%d ties)", res.TieCount)
		}
		fmt.Println()
	}

	last := results[len(results)-1]
	fmt.Printf("\nremaining: %s unexplained\n", formatBP(last.RemainingBP))
	return nil
}

func formatBP(bp uint64) string {
	switch {
	case bp >= 1_000_000:
		return fmt.Sprintf("%.1f Mbp", float64(bp)/1_000_000)
	case bp >= 1_000:
		return fmt.Sprintf("%.1f kbp", float64(bp)/1_000)
	default:
		return fmt.Sprintf("%d bp", bp)
	}
}
