package sbt

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/sketchgo/blobstore"
	"github.com/hupe1980/sketchgo/bloom"
	"github.com/hupe1980/sketchgo/codec"
	"github.com/hupe1980/sketchgo/index"
	"github.com/hupe1980/sketchgo/sketch"
)

// manifestVersion is bumped on breaking layout changes; loads reject
// versions they do not understand.
const manifestVersion = 1

type manifestJSON struct {
	Version     int        `json:"version"`
	Codec       string     `json:"codec"`
	Compressor  string     `json:"compressor"`
	Degree      int        `json:"degree"`
	BloomBits   uint64     `json:"bloom_bits"`
	BloomHashes uint32     `json:"bloom_hashes"`
	Params      paramsJSON `json:"params"`
	Nodes       []nodeJSON `json:"nodes"`
}

type paramsJSON struct {
	Ksize    uint32 `json:"ksize"`
	Molecule string `json:"molecule"`
	Seed     uint32 `json:"seed"`
	Num      uint32 `json:"num"`
	Scaled   uint64 `json:"scaled"`
}

type nodeJSON struct {
	Type     string `json:"type"` // "internal" or "leaf"
	Filter   string `json:"filter,omitempty"`
	Blob     string `json:"blob,omitempty"`
	Name     string `json:"name,omitempty"`
	Filename string `json:"filename,omitempty"`
	Children []int  `json:"children,omitempty"`
}

// SaveOptions control persistence.
type SaveOptions struct {
	// Codec encodes the manifest and leaf signatures; nil uses
	// codec.Default.
	Codec codec.Codec

	// Compressor compresses node blobs; nil uses codec.DefaultCompressor.
	Compressor codec.Compressor

	// Sparseness in [0,1] is the fraction of internal filters omitted
	// from disk, deepest nodes first. Omitted filters cost pruning power
	// after a load, never correctness.
	Sparseness float64
}

// Save writes the tree under the given name in the store: a manifest blob
// "<name>.sbt.json" plus one blob per node under "<name>.sbt/".
func (t *SBT) Save(ctx context.Context, store blobstore.Store, name string, opts SaveOptions) error {
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}
	comp := opts.Compressor
	if comp == nil {
		comp = codec.DefaultCompressor
	}
	if opts.Sparseness < 0 || opts.Sparseness > 1 {
		return fmt.Errorf("sbt: sparseness must be in [0,1], got %g", opts.Sparseness)
	}

	// Flatten breadth-first so child indexes are stable.
	type flat struct {
		n     *node
		depth int
	}
	var order []flat
	idxOf := make(map[*node]int)
	if t.root != nil {
		queue := []flat{{t.root, 0}}
		for len(queue) > 0 {
			f := queue[0]
			queue = queue[1:]
			idxOf[f.n] = len(order)
			order = append(order, f)
			for _, child := range f.n.children {
				queue = append(queue, flat{child, f.depth + 1})
			}
		}
	}

	// Pick the internal nodes whose filters stay off disk.
	var internals []int
	for i, f := range order {
		if !f.n.isLeaf() {
			internals = append(internals, i)
		}
	}
	sort.SliceStable(internals, func(a, b int) bool {
		return order[internals[a]].depth > order[internals[b]].depth
	})
	omit := make(map[int]bool)
	for _, i := range internals[:int(math.Floor(opts.Sparseness*float64(len(internals))))] {
		omit[i] = true
	}

	m := manifestJSON{
		Version:     manifestVersion,
		Codec:       c.Name(),
		Compressor:  comp.Name(),
		Degree:      t.degree,
		BloomBits:   t.bloomBits,
		BloomHashes: t.bloomHashes,
		Params: paramsJSON{
			Ksize:    t.params.Ksize,
			Molecule: t.params.Molecule.String(),
			Seed:     t.params.Seed,
			Num:      t.params.Num,
			Scaled:   t.params.Scaled,
		},
	}

	put := func(blobName string, data []byte) error {
		compressed, err := comp.Compress(data)
		if err != nil {
			return err
		}
		return store.Put(ctx, blobName, compressed)
	}

	for i, f := range order {
		n := f.n
		if n.isLeaf() {
			blobName := fmt.Sprintf("%s.sbt/leaf.%d.sig", name, i)
			var buf bytes.Buffer
			sig := &sketch.Signature{
				Name:     n.record.Name,
				Filename: n.record.Filename,
				Sketches: []*sketch.Sketch{n.record.Sketch},
			}
			if err := sketch.SaveSignatures(&buf, []*sketch.Signature{sig}); err != nil {
				return err
			}
			if err := put(blobName, buf.Bytes()); err != nil {
				return err
			}
			m.Nodes = append(m.Nodes, nodeJSON{
				Type:     "leaf",
				Blob:     blobName,
				Name:     n.record.Name,
				Filename: n.record.Filename,
			})
			continue
		}

		nj := nodeJSON{Type: "internal"}
		for _, child := range n.children {
			nj.Children = append(nj.Children, idxOf[child])
		}
		if n.filter != nil && !omit[i] {
			blobName := fmt.Sprintf("%s.sbt/internal.%d.bf", name, i)
			data, err := n.filter.MarshalBinary()
			if err != nil {
				return err
			}
			if err := put(blobName, data); err != nil {
				return err
			}
			nj.Filter = blobName
		}
		m.Nodes = append(m.Nodes, nj)
	}

	data, err := c.Marshal(m)
	if err != nil {
		return err
	}
	return store.Put(ctx, name+".sbt.json", data)
}

// Load reads a tree saved by Save. Corrupt or unsupported manifests fail
// with index.ErrMalformed naming the file; nothing partial is returned.
func Load(ctx context.Context, store blobstore.Store, name string) (*SBT, error) {
	manifestName := name + ".sbt.json"
	raw, err := blobstore.ReadAll(ctx, store, manifestName)
	if err != nil {
		return nil, fmt.Errorf("sbt: reading %s: %w", manifestName, err)
	}

	// The manifest itself is always plain; try known codecs by name after
	// a JSON sniff of the codec field.
	var m manifestJSON
	if err := (codec.JSON{}).Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, manifestName, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", index.ErrMalformed, manifestName, m.Version)
	}
	comp, ok := codec.CompressorByName(m.Compressor)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown compressor %q", index.ErrMalformed, manifestName, m.Compressor)
	}
	mol, err := sketch.ParseMolecule(m.Params.Molecule)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, manifestName, err)
	}

	t := New(manifestName, WithDegree(m.Degree), WithBloomShape(m.BloomBits, m.BloomHashes))
	t.params = sketch.Params{
		Ksize:    m.Params.Ksize,
		Molecule: mol,
		Seed:     m.Params.Seed,
		Num:      m.Params.Num,
		Scaled:   m.Params.Scaled,
	}

	get := func(blobName string) ([]byte, error) {
		data, err := blobstore.ReadAll(ctx, store, blobName)
		if err != nil {
			return nil, fmt.Errorf("sbt: reading %s: %w", blobName, err)
		}
		return comp.Decompress(data)
	}

	nodes := make([]*node, len(m.Nodes))
	for i := range m.Nodes {
		nodes[i] = &node{}
	}
	for i, nj := range m.Nodes {
		switch nj.Type {
		case "leaf":
			data, err := get(nj.Blob)
			if err != nil {
				return nil, err
			}
			sigs, err := sketch.LoadSignatures(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, nj.Blob, err)
			}
			if len(sigs) != 1 || len(sigs[0].Sketches) != 1 {
				return nil, fmt.Errorf("%w: %s: expected exactly one sketch", index.ErrMalformed, nj.Blob)
			}
			nodes[i].record = &index.Record{
				Name:     nj.Name,
				Filename: nj.Filename,
				Sketch:   sigs[0].Sketches[0],
			}
			nodes[i].leaves = 1
			t.size++
		case "internal":
			for _, ci := range nj.Children {
				if ci <= i || ci >= len(nodes) {
					return nil, fmt.Errorf("%w: %s: bad child index %d", index.ErrMalformed, manifestName, ci)
				}
				nodes[i].children = append(nodes[i].children, nodes[ci])
			}
			if nj.Filter != "" {
				data, err := get(nj.Filter)
				if err != nil {
					return nil, err
				}
				f := new(bloom.Filter)
				if err := f.UnmarshalBinary(data); err != nil {
					return nil, fmt.Errorf("%w: %s: %v", index.ErrMalformed, nj.Filter, err)
				}
				nodes[i].filter = f
			}
		default:
			return nil, fmt.Errorf("%w: %s: unknown node type %q", index.ErrMalformed, manifestName, nj.Type)
		}
	}

	if len(nodes) > 0 {
		t.root = nodes[0]
		countLeaves(t.root)
	}
	return t, nil
}

func countLeaves(n *node) int {
	if n.isLeaf() {
		n.leaves = 1
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += countLeaves(c)
	}
	n.leaves = total
	return total
}
