package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hupe1980/sketchgo/blobstore"
	"github.com/hupe1980/sketchgo/index/lca"
	"github.com/hupe1980/sketchgo/lineage"
	"github.com/hupe1980/sketchgo/sketch"
)

func cmdLCA(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("lca: need a subcommand: index, classify or summarize")
	}

	switch args[0] {
	case "index":
		return cmdLCAIndex(args[1:])
	case "classify":
		return cmdLCAClassify(args[1:])
	case "summarize":
		return cmdLCASummarize(args[1:])
	default:
		return fmt.Errorf("lca: unknown subcommand %q", args[0])
	}
}

func cmdLCAIndex(args []string) error {
	fs := pflag.NewFlagSet("lca index", pflag.ContinueOnError)
	fs.Uint32P("ksize", "k", 31, "k-mer size")
	fs.Uint64("scaled", 10000, "database resolution")
	fs.String("molecule", "dna", "molecule type: dna, protein, dayhoff or hp")
	fs.StringP("taxonomy", "t", "", "taxonomy CSV mapping identifiers to lineages (required)")
	fs.Bool("require-taxonomy", false, "fail on signatures missing from the taxonomy")
	fs.StringP("output", "o", "", "database name, e.g. taxdb or dir/taxdb (required)")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	paths := fs.Args()
	if len(paths) == 0 {
		return fmt.Errorf("lca index: no signature files given")
	}
	out := v.GetString("output")
	if out == "" {
		return fmt.Errorf("lca index: --output is required")
	}
	taxPath := v.GetString("taxonomy")
	if taxPath == "" {
		return fmt.Errorf("lca index: --taxonomy is required")
	}

	taxonomy, err := lineage.LoadCSVFile(taxPath)
	if err != nil {
		return err
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
	name = strings.TrimSuffix(name, ".lca.json")

	db, err := lca.New(name, ksize, v.GetUint64("scaled"), mol)
	if err != nil {
		return err
	}

	unassigned := 0
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
			ident := sig.Name
			if ident == "" {
				ident = filepath.Base(path)
			}

			lin, ok := taxonomy[ident]
			if !ok {
				if v.GetBool("require-taxonomy") {
					return fmt.Errorf("lca index: %s (%w)", ident, lca.ErrMissingTaxonomy)
				}
				logger.Warn("no taxonomy, inserting unassigned", "ident", ident, "file", path)
				unassigned++
			}

			if _, err := db.Insert(sk, ident, lin); err != nil {
				return fmt.Errorf("insert %s from %s: %w", ident, path, err)
			}
		}
	}

	ctx := context.Background()
	if err := db.Save(ctx, blobstore.NewLocalStore(dir), name, lca.SaveOptions{}); err != nil {
		return err
	}

	logger.Info("indexed", "members", db.Len(), "unassigned", unassigned,
		"manifest", filepath.Join(dir, name+".lca.json"))
	return nil
}

func cmdLCAClassify(args []string) error {
	fs := pflag.NewFlagSet("lca classify", pflag.ContinueOnError)
	fs.String("db", "", "LCA database manifest (required)")
	fs.Int("min-hashes", 3, "minimum hashes supporting a classification")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	queries := fs.Args()
	if v.GetString("db") == "" {
		return fmt.Errorf("lca classify: --db is required")
	}
	if len(queries) == 0 {
		return fmt.Errorf("lca classify: no query signatures given")
	}

	ctx := context.Background()
	db, err := loadLCA(ctx, v.GetString("db"))
	if err != nil {
		return err
	}

	fmt.Println("query\tstatus\tlineage")
	for _, path := range queries {
		q, qname, err := loadQuery(path, db.Ksize(), db.Molecule())
		if err != nil {
			return err
		}

		counts, err := db.Classify(q)
		if err != nil {
			return fmt.Errorf("classify %s: %w", path, err)
		}

		best := lineage.Count{}
		for _, c := range counts {
			if c.Count >= v.GetInt("min-hashes") {
				best = c
				break
			}
		}

		if len(best.Lineage) == 0 {
			fmt.Printf("%s\tnomatch\t\n", qname)
			continue
		}
		fmt.Printf("%s\tfound\t%s\n", qname, best.Lineage)
	}
	return nil
}

func cmdLCASummarize(args []string) error {
	fs := pflag.NewFlagSet("lca summarize", pflag.ContinueOnError)
	fs.String("db", "", "LCA database manifest (required)")
	fs.Int("min-hashes", 1, "minimum hashes supporting a reported lineage")

	v, err := newConfig(fs, args)
	if err != nil {
		return err
	}

	queries := fs.Args()
	if v.GetString("db") == "" {
		return fmt.Errorf("lca summarize: --db is required")
	}
	if len(queries) == 0 {
		return fmt.Errorf("lca summarize: no query signatures given")
	}

	ctx := context.Background()
	db, err := loadLCA(ctx, v.GetString("db"))
	if err != nil {
		return err
	}

	for _, path := range queries {
		q, qname, err := loadQuery(path, db.Ksize(), db.Molecule())
		if err != nil {
			return err
		}

		assignments := db.AssignmentsMany(q.Hashes())
		counts := lineage.SummarizeAtRanks(assignments)

		fmt.Printf("summary for %s:\n", qname)
		for _, c := range counts {
			if c.Count < v.GetInt("min-hashes") {
				continue
			}
			fmt.Printf("%8d  %s\n", c.Count, c.Lineage)
		}
	}
	return nil
}

func loadLCA(ctx context.Context, path string) (*lca.DB, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	db, err := lca.Load(ctx, blobstore.NewLocalStore(dir), strings.TrimSuffix(base, ".lca.json"))
	if err != nil {
		return nil, fmt.Errorf("load LCA database %s: %w", path, err)
	}
	return db, nil
}
