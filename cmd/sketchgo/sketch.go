package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/hupe1980/sketchgo/fasta"
	"github.com/hupe1980/sketchgo/kmer"
	"github.com/hupe1980/sketchgo/sketch"
)

func cmdSketch(args []string) error {
	fs := pflag.NewFlagSet("sketch", pflag.ContinueOnError)
	fs.Uint32P("ksize", "k", 31, "k-mer size")
	fs.Uint64("scaled", 1000, "keep hashes below max-hash/scaled (0 disables)")
	fs.Uint32P("num", "n", 0, "keep the n smallest hashes (0 disables)")
	fs.String("molecule", "dna", "molecule type: dna, protein, dayhoff or hp")
	fs.Uint32("seed", sketch.DefaultSeed, "murmur hash seed")
	fs.Bool("track-abundance", false, "track k-mer abundances")
	fs.BoolP("force", "f", false, "skip invalid k-mers instead of failing")
	fs.String("name", "", "signature name (default: input file basename)")
	fs.StringP("output", "o", "", "write all signatures to one file")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	inputs := fs.Args()
	if len(inputs) == 0 {
		return fmt.Errorf("sketch: no sequence files given")
	}

	logger := newLogger(v)

	scaled := v.GetUint64("scaled")
	num := v.GetUint32("num")
	if num > 0 {
		scaled = 0
	}

	mol, err := sketch.ParseMolecule(v.GetString("molecule"))
	if err != nil {
		return err
	}

	params := sketch.Params{
		Ksize:          v.GetUint32("ksize"),
		Molecule:       mol,
		Seed:           v.GetUint32("seed"),
		Num:            num,
		Scaled:         scaled,
		TrackAbundance: v.GetBool("track-abundance"),
	}
	if err := params.Validate(); err != nil {
		return err
	}

	var hopts []kmer.Option
	if v.GetBool("force") {
		hopts = append(hopts, kmer.WithForce())
	}
	hasher, err := kmer.New(params.Ksize, params.Molecule, params.Seed, hopts...)
	if err != nil {
		return err
	}

	var all []*sketch.Signature

	for _, input := range inputs {
		sk, err := sketch.New(params)
		if err != nil {
			return err
		}

		records := 0
		err = fasta.WalkFile(input, func(rec fasta.Record) error {
			records++
			if err := hasher.AddSequence(sk, rec.Seq); err != nil {
				return fmt.Errorf("%s, record %s: %w", input, rec.ID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		name := v.GetString("name")
		if name == "" {
			name = filepath.Base(input)
		}

		sig := &sketch.Signature{Name: name, Filename: input, Sketches: []*sketch.Sketch{sk}}
		logger.Info("sketched", "file", input, "records", records, "hashes", sk.Len())

		if out := v.GetString("output"); out != "" {
			all = append(all, sig)
			continue
		}

		if err := sketch.SaveSignaturesFile(input+".sig", []*sketch.Signature{sig}); err != nil {
			return err
		}
	}

	if out := v.GetString("output"); out != "" {
		return sketch.SaveSignaturesFile(out, all)
	}
	return nil
}
