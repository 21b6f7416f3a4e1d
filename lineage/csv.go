package lineage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// identColumns are accepted header names for the identifier column.
var identColumns = []string{"ident", "identifier", "accession", "name"}

// LoadCSV reads a taxonomy table mapping identifiers to lineages. The header
// row must carry an identifier column and one column per assigned rank;
// unknown columns are ignored. Rows with a duplicate identifier are an error.
func LoadCSV(r io.Reader) (map[string]Lineage, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("lineage: read csv header: %w", err)
	}

	identCol := -1
	rankCols := map[int]Rank{}

	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		for _, name := range identColumns {
			if col == name && identCol < 0 {
				identCol = i
			}
		}
		if rank, err := ParseRank(col); err == nil {
			rankCols[i] = rank
		}
	}

	if identCol < 0 {
		return nil, fmt.Errorf("lineage: csv header has no identifier column (one of %s)", strings.Join(identColumns, ", "))
	}
	if len(rankCols) == 0 {
		return nil, fmt.Errorf("lineage: csv header has no rank columns")
	}

	out := map[string]Lineage{}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lineage: read csv row %d: %w", line, err)
		}

		ident := strings.TrimSpace(row[identCol])
		if ident == "" {
			return nil, fmt.Errorf("lineage: csv row %d has an empty identifier", line)
		}
		if _, ok := out[ident]; ok {
			return nil, fmt.Errorf("lineage: duplicate identifier %q at csv row %d", ident, line)
		}

		names := make([]string, len(Ranks))
		for i, rank := range rankCols {
			if i < len(row) {
				names[rank] = strings.TrimSpace(row[i])
			}
		}

		out[ident] = New(names...)
	}

	return out, nil
}

// LoadCSVFile reads a taxonomy table from path.
func LoadCSVFile(path string) (map[string]Lineage, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	return LoadCSV(fh)
}
