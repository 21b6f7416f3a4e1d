package sketch

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Signature files are a JSON array of entries, each carrying one or more
// sketches. The field layout below is a compatibility boundary: existing
// files must keep loading, and files written here must load elsewhere.

const (
	sigClass   = "sourmash_signature"
	sigHashFn  = "0.murmur64"
	sigLicense = "CC0"
	sigVersion = 0.4
)

type sigEntryJSON struct {
	Class      string       `json:"class"`
	Email      string       `json:"email"`
	HashFn     string       `json:"hash_function"`
	Filename   string       `json:"filename,omitempty"`
	Name       string       `json:"name,omitempty"`
	License    string       `json:"license"`
	Signatures []sketchJSON `json:"signatures"`
	Version    float64      `json:"version"`
}

type sketchJSON struct {
	Ksize      uint32   `json:"ksize"`
	Num        uint32   `json:"num"`
	Seed       uint32   `json:"seed"`
	MaxHash    uint64   `json:"max_hash"`
	Mins       []uint64 `json:"mins"`
	Abundances []uint32 `json:"abundances,omitempty"`
	MD5Sum     string   `json:"md5sum"`
	Molecule   string   `json:"molecule"`
}

func (s *Sketch) toJSON() sketchJSON {
	out := sketchJSON{
		Ksize:    s.params.Ksize,
		Num:      s.params.Num,
		Seed:     s.params.Seed,
		MaxHash:  s.params.MaxHash(),
		Mins:     s.Hashes(),
		MD5Sum:   s.MD5(),
		Molecule: s.params.Molecule.String(),
	}
	if s.abund != nil {
		out.Abundances = make([]uint32, len(out.Mins))
		for i, h := range out.Mins {
			out.Abundances[i] = s.abund[h]
		}
	}
	return out
}

func sketchFromJSON(in sketchJSON) (*Sketch, error) {
	mol, err := ParseMolecule(in.Molecule)
	if err != nil {
		return nil, err
	}
	p := Params{
		Ksize:          in.Ksize,
		Molecule:       mol,
		Seed:           in.Seed,
		Num:            in.Num,
		TrackAbundance: len(in.Abundances) > 0,
	}
	if in.Num == 0 {
		if in.MaxHash == 0 {
			return nil, fmt.Errorf("sketch: entry has neither num nor max_hash")
		}
		if in.MaxHash == math.MaxUint64 {
			p.Scaled = 1
		} else {
			p.Scaled = scaledForMaxHash(in.MaxHash)
		}
	}
	s, err := New(p)
	if err != nil {
		return nil, err
	}
	if len(in.Abundances) > 0 && len(in.Abundances) != len(in.Mins) {
		return nil, fmt.Errorf("sketch: %d abundances for %d mins", len(in.Abundances), len(in.Mins))
	}
	for i, h := range in.Mins {
		count := uint32(1)
		if len(in.Abundances) > 0 {
			count = in.Abundances[i]
		}
		s.AddWithAbundance(h, count)
	}
	return s, nil
}

// SaveSignatures writes signatures as JSON to w.
func SaveSignatures(w io.Writer, sigs []*Signature) error {
	entries := make([]sigEntryJSON, 0, len(sigs))
	for _, sig := range sigs {
		license := sig.License
		if license == "" {
			license = sigLicense
		}
		e := sigEntryJSON{
			Class:    sigClass,
			HashFn:   sigHashFn,
			Filename: sig.Filename,
			Name:     sig.Name,
			License:  license,
			Version:  sigVersion,
		}
		for _, sk := range sig.Sketches {
			e.Signatures = append(e.Signatures, sk.toJSON())
		}
		entries = append(entries, e)
	}
	return json.NewEncoder(w).Encode(entries)
}

// LoadSignatures reads a JSON signature stream from r.
func LoadSignatures(r io.Reader) ([]*Signature, error) {
	var entries []sigEntryJSON
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("sketch: decoding signatures: %w", err)
	}
	sigs := make([]*Signature, 0, len(entries))
	for _, e := range entries {
		sig := &Signature{
			Name:     e.Name,
			Filename: e.Filename,
			License:  e.License,
		}
		for _, sj := range e.Signatures {
			sk, err := sketchFromJSON(sj)
			if err != nil {
				return nil, err
			}
			sig.Sketches = append(sig.Sketches, sk)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// SaveSignaturesFile writes signatures to path, gzipping when the filename
// ends in .gz.
func SaveSignaturesFile(path string, sigs []*Signature) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	if err := SaveSignatures(w, sigs); err != nil {
		return fmt.Errorf("sketch: saving %s: %w", path, err)
	}
	return nil
}

// LoadSignaturesFile reads signatures from path, transparently gunzipping
// .gz files.
func LoadSignaturesFile(path string) ([]*Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("sketch: opening %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	sigs, err := LoadSignatures(r)
	if err != nil {
		return nil, fmt.Errorf("sketch: loading %s: %w", path, err)
	}
	return sigs, nil
}
