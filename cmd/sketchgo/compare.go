package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/hupe1980/sketchgo/compare"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/sketch"
)

func cmdCompare(args []string) error {
	fs := pflag.NewFlagSet("compare", pflag.ContinueOnError)
	fs.Uint32P("ksize", "k", 31, "k-mer size")
	fs.String("molecule", "dna", "molecule type: dna, protein, dayhoff or hp")
	fs.Bool("containment", false, "compute an asymmetric containment matrix")
	fs.Bool("abundance", false, "use abundance-weighted angular similarity")
	fs.IntP("processes", "p", 0, "number of workers (0: all CPUs)")
	fs.String("csv", "", "write the matrix as CSV to this file")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	paths := fs.Args()
	if len(paths) < 2 {
		return fmt.Errorf("compare: need at least two signature files")
	}

	mol, err := sketch.ParseMolecule(v.GetString("molecule"))
	if err != nil {
		return err
	}
	ksize := v.GetUint32("ksize")

	var records []index.Record
	for _, path := range paths {
		sigs, err := sketch.LoadSignaturesFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		for _, sig := range sigs {
			sk := selectSketch(sig, ksize, mol)
			if sk == nil {
				return fmt.Errorf("%s has no sketch with k=%d, molecule=%s", path, ksize, mol)
			}
			name := sig.Name
			if name == "" {
				name = filepath.Base(path)
			}
			records = append(records, index.Record{Name: name, Filename: path, Sketch: sk})
		}
	}

	matrix, err := compare.Matrix(context.Background(), records, compare.Options{
		Containment: v.GetBool("containment"),
		Abundance:   v.GetBool("abundance"),
		Workers:     v.GetInt("processes"),
	})
	if err != nil {
		return err
	}

	if out := v.GetString("csv"); out != "" {
		return writeMatrixCSV(out, records, matrix)
	}

	for i, row := range matrix {
		fmt.Printf("%s", records[i].Name)
		for _, score := range row {
			fmt.Printf("\t%.3f", score)
		}
		fmt.Println()
	}
	return nil
}

func writeMatrixCSV(path string, records []index.Record, matrix [][]float64) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	w := csv.NewWriter(fh)

	header := make([]string, len(records))
	for i, rec := range records {
		header[i] = rec.Name
	}
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, len(records))
	for _, scores := range matrix {
		for j, score := range scores {
			row[j] = strconv.FormatFloat(score, 'f', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
