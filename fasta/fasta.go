// Package fasta reads FASTA formatted sequence files.
package fasta

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Record is a single FASTA sequence.
type Record struct {
	ID  string
	Seq []byte
}

// WalkFunc is called for every record. Returning an error stops the walk.
type WalkFunc func(rec Record) error

// WalkFile opens path ("-" for stdin, ".gz" suffixed files are
// decompressed) and calls fn for every record in it.
func WalkFile(path string, fn WalkFunc) error {
	rc, err := openReader(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	return Walk(rc, fn)
}

// Walk reads FASTA records from r and calls fn for each one.
func Walk(r io.Reader, fn WalkFunc) error {
	br := bufio.NewReader(r)

	var (
		id  string
		buf []byte
	)

	flush := func() error {
		if id == "" {
			return nil
		}
		return fn(Record{ID: id, Seq: bytes.Clone(buf)})
	}

	for {
		line, err := br.ReadBytes('\n')
		eof := err == io.EOF
		if err != nil && !eof {
			return err
		}

		line = bytes.TrimRight(line, "\r\n")
		if eof && len(line) == 0 {
			break
		}

		if len(line) > 0 && line[0] == '>' {
			if err := flush(); err != nil {
				return err
			}
			id = ""
			if fields := strings.Fields(string(line[1:])); len(fields) > 0 {
				id = fields[0]
			}
			buf = buf[:0]
			continue
		}

		buf = append(buf, bytes.ToUpper(line)...)

		if eof {
			break
		}
	}

	return flush()
}

func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, err
		}

		return struct {
			io.Reader
			io.Closer
		}{Reader: gr, Closer: fh}, nil
	}

	return fh, nil
}
