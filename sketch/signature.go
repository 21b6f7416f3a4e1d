package sketch

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// Signature is a named container of sketches, the unit of signature-file
// I/O. One file entry may carry several sketches of the same input at
// different parameters (typically several ksizes).
type Signature struct {
	Name     string
	Filename string
	License  string
	Sketches []*Sketch
}

// Select returns the first sketch comparable with p (ksize, molecule, seed
// and mode family), or nil.
func (sig *Signature) Select(p Params) *Sketch {
	for _, sk := range sig.Sketches {
		if sk.params.compatibleWith(p) == nil {
			return sk
		}
	}
	return nil
}

// MD5 returns the content hash of the sketch: the md5 over the decimal
// ksize followed by each hash in ascending order, as decimal strings. This
// exact construction is required for interop with existing signature files.
func (s *Sketch) MD5() string {
	h := md5.New()
	h.Write([]byte(strconv.FormatUint(uint64(s.params.Ksize), 10)))
	for _, m := range s.Hashes() {
		h.Write([]byte(strconv.FormatUint(m, 10)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
