package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	sketchgo "github.com/hupe1980/sketchgo"
	"github.com/hupe1980/sketchgo/blobstore"
	miniostore "github.com/hupe1980/sketchgo/blobstore/minio"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/index/lca"
	"github.com/hupe1980/sketchgo/index/sbt"
	"github.com/hupe1980/sketchgo/sketch"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sketchgo: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	switch args[0] {
	case "sketch":
		return cmdSketch(args[1:])
	case "compare":
		return cmdCompare(args[1:])
	case "search":
		return cmdSearch(args[1:])
	case "gather":
		return cmdGather(args[1:])
	case "index":
		return cmdIndex(args[1:])
	case "lca":
		return cmdLCA(args[1:])
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Println(`Usage: sketchgo <command> [flags]

Commands:
  sketch    compute signatures from sequence files
  compare   compute a pairwise similarity matrix of signatures
  search    search databases for signatures similar to a query
  gather    greedily decompose a query against databases
  index     build a sequence Bloom tree from signatures
  lca       build and query an LCA taxonomy database

Run "sketchgo <command> --help" for command flags.`)
}

// newConfig parses the flag set and layers viper on top: flags beat
// SKETCHGO_* environment variables, which beat the optional config file.
func newConfig(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	fs.String("config", "", "path to a configuration file")
	fs.BoolP("verbose", "v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("SKETCHGO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cf := v.GetString("config"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cf, err)
		}
	}

	return v, nil
}

func newLogger(v *viper.Viper) *sketchgo.Logger {
	level := slog.LevelInfo
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return sketchgo.NewTextLogger(level)
}

// selectSketch picks the sketch matching ksize and molecule from a loaded
// signature, or nil.
func selectSketch(sig *sketch.Signature, ksize uint32, mol sketch.Molecule) *sketch.Sketch {
	for _, sk := range sig.Sketches {
		if sk.Ksize() == ksize && sk.Molecule() == mol {
			return sk
		}
	}
	return nil
}

// loadQuery loads a signature file and selects the single query sketch.
func loadQuery(path string, ksize uint32, mol sketch.Molecule) (*sketch.Sketch, string, error) {
	sigs, err := sketch.LoadSignaturesFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("load query %s: %w", path, err)
	}

	for _, sig := range sigs {
		if sk := selectSketch(sig, ksize, mol); sk != nil {
			name := sig.Name
			if name == "" {
				name = filepath.Base(path)
			}
			return sk, name, nil
		}
	}

	return nil, "", fmt.Errorf("query %s has no sketch with k=%d, molecule=%s", path, ksize, mol)
}

// openStore resolves a database location to the blob store holding it and
// the manifest name inside that store. s3:// URLs go through a whole-blob
// cache under the user cache directory, so repeated runs against a hosted
// reference database only download it once.
func openStore(location string) (blobstore.Store, string, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		dir, base := filepath.Split(location)
		if dir == "" {
			dir = "."
		}
		return blobstore.NewLocalStore(dir), base, nil
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return nil, "", fmt.Errorf("s3 database %s: expected s3://bucket/path", location)
	}
	prefix, base := path.Split(key)

	client, err := newS3Client()
	if err != nil {
		return nil, "", fmt.Errorf("s3 database %s: %w", location, err)
	}
	remote := miniostore.NewStore(client, bucket, prefix)

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, "", err
	}
	local := blobstore.NewLocalStore(filepath.Join(cacheDir, "sketchgo", bucket, filepath.FromSlash(prefix)))
	return blobstore.NewCachingStore(remote, local), base, nil
}

// newS3Client builds a client from SKETCHGO_S3_* environment variables,
// falling back to the usual AWS_* credentials.
func newS3Client() (*minio.Client, error) {
	endpoint := os.Getenv("SKETCHGO_S3_ENDPOINT")
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	creds := credentials.NewEnvAWS()
	if ak := os.Getenv("SKETCHGO_S3_ACCESS_KEY"); ak != "" {
		creds = credentials.NewStaticV4(ak, os.Getenv("SKETCHGO_S3_SECRET_KEY"), "")
	}
	return minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: os.Getenv("SKETCHGO_S3_INSECURE") == "",
	})
}

// openDatabase opens one database location. SBT and LCA manifests are
// detected by suffix and may live on local disk or behind an s3:// URL;
// anything else is treated as a local signature file and scanned linearly.
func openDatabase(ctx context.Context, location string, ksize uint32, mol sketch.Molecule) (index.Database, error) {
	switch {
	case strings.HasSuffix(location, ".sbt.json"):
		store, base, err := openStore(location)
		if err != nil {
			return nil, err
		}
		t, err := sbt.Load(ctx, store, strings.TrimSuffix(base, ".sbt.json"))
		if err != nil {
			return nil, fmt.Errorf("load SBT %s: %w", location, err)
		}
		return t, nil

	case strings.HasSuffix(location, ".lca.json"):
		store, base, err := openStore(location)
		if err != nil {
			return nil, err
		}
		db, err := lca.Load(ctx, store, strings.TrimSuffix(base, ".lca.json"))
		if err != nil {
			return nil, fmt.Errorf("load LCA database %s: %w", location, err)
		}
		return db, nil

	case strings.HasPrefix(location, "s3://"):
		return nil, fmt.Errorf("s3 database %s: only .sbt.json and .lca.json manifests can be opened remotely", location)

	default:
		sigs, err := sketch.LoadSignaturesFile(location)
		if err != nil {
			return nil, fmt.Errorf("load signatures %s: %w", location, err)
		}

		idx := index.NewLinearIndex(location)
		for _, sig := range sigs {
			sk := selectSketch(sig, ksize, mol)
			if sk == nil {
				continue
			}
			name := sig.Name
			if name == "" {
				name = filepath.Base(location)
			}
			idx.Insert(index.Record{Name: name, Filename: sig.Filename, Sketch: sk})
		}
		if idx.Len() == 0 {
			return nil, fmt.Errorf("%s has no sketch with k=%d, molecule=%s", location, ksize, mol)
		}
		return idx, nil
	}
}

func openDatabases(ctx context.Context, paths []string, ksize uint32, mol sketch.Molecule) ([]index.Database, error) {
	dbs := make([]index.Database, 0, len(paths))
	for _, path := range paths {
		db, err := openDatabase(ctx, path, ksize, mol)
		if err != nil {
			return nil, err
		}
		dbs = append(dbs, db)
	}
	return dbs, nil
}
