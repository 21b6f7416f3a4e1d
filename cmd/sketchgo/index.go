package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hupe1980/sketchgo/blobstore"
	"github.com/hupe1980/sketchgo/codec"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/index/sbt"
	"github.com/hupe1980/sketchgo/sketch"
)

func cmdIndex(args []string) error {
	fs := pflag.NewFlagSet("index", pflag.ContinueOnError)
	fs.Uint32P("ksize", "k", 31, "k-mer size")
	fs.String("molecule", "dna", "molecule type: dna, protein, dayhoff or hp")
	fs.Int("degree", sbt.DefaultDegree, "maximum children per internal node")
	fs.Float64("sparseness", 0, "fraction of internal filters omitted on disk")
	fs.String("compressor", "", "blob compressor: none, gzip, zstd or lz4")
	fs.StringP("output", "o", "", "database name, e.g. refs or dir/refs (required)")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	paths := fs.Args()
	if len(paths) == 0 {
		return fmt.Errorf("index: no signature files given")
	}
	out := v.GetString("output")
	if out == "" {
		return fmt.Errorf("index: --output is required")
	}

	mol, err := sketch.ParseMolecule(v.GetString("molecule"))
	if err != nil {
		return err
	}
	ksize := v.GetUint32("ksize")
	logger := newLogger(v)

	dir, name := filepath.Split(out)
	if dir == "" {
		dir = "."
	}
	name = strings.TrimSuffix(name, ".sbt.json")

	tree := sbt.New(name, sbt.WithDegree(v.GetInt("degree")))

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
			sigName := sig.Name
			if sigName == "" {
				sigName = filepath.Base(path)
			}
			if err := tree.Insert(index.Record{Name: sigName, Filename: path, Sketch: sk}); err != nil {
				return fmt.Errorf("insert %s from %s: %w", sigName, path, err)
			}
		}
	}

	opts := sbt.SaveOptions{Sparseness: v.GetFloat64("sparseness")}
	if cn := v.GetString("compressor"); cn != "" {
		comp, ok := codec.CompressorByName(cn)
		if !ok {
			return fmt.Errorf("index: unknown compressor %q", cn)
		}
		opts.Compressor = comp
	}

	ctx := context.Background()
	if err := tree.Save(ctx, blobstore.NewLocalStore(dir), name, opts); err != nil {
		return err
	}

	logger.Info("indexed", "leaves", tree.Len(), "manifest", filepath.Join(dir, name+".sbt.json"))
	return nil
}
