package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	_, ok = ByName("xml")
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Name   string   `json:"name"`
		Hashes []uint64 `json:"hashes"`
	}

	in := payload{Name: "x", Hashes: []uint64{1, 2, 3}}
	data, err := (JSON{}).Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, (JSON{}).Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestCompressorByName(t *testing.T) {
	for _, name := range []string{"none", "gzip", "zstd", "lz4"} {
		comp, ok := CompressorByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, comp.Name())
	}

	_, ok := CompressorByName("brotli")
	assert.False(t, ok)
}

func TestCompressorRoundTrip(t *testing.T) {
	// Repetitive payload so real compressors actually shrink it.
	data := bytes.Repeat([]byte("sequence bloom tree "), 512)

	for _, comp := range []Compressor{None{}, Gzip{}, Zstd{}, LZ4{}} {
		t.Run(comp.Name(), func(t *testing.T) {
			compressed, err := comp.Compress(data)
			require.NoError(t, err)

			if comp.Name() != "none" {
				assert.Less(t, len(compressed), len(data))
			}

			out, err := comp.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	for _, comp := range []Compressor{Gzip{}, Zstd{}} {
		t.Run(comp.Name(), func(t *testing.T) {
			_, err := comp.Decompress([]byte("definitely not compressed"))
			assert.Error(t, err)
		})
	}
}
