// Package lineage models taxonomic lineages over the fixed rank ladder and
// implements the lowest-common-ancestor consensus used for classification.
package lineage

import (
	"fmt"
	"strings"
)

// Rank is a level of the taxonomic ladder.
type Rank uint8

const (
	Superkingdom Rank = iota
	Phylum
	Class
	Order
	Family
	Genus
	Species
	Strain
)

// Ranks lists the ladder in canonical root-to-leaf order.
var Ranks = []Rank{Superkingdom, Phylum, Class, Order, Family, Genus, Species, Strain}

var rankNames = [...]string{"superkingdom", "phylum", "class", "order", "family", "genus", "species", "strain"}

func (r Rank) String() string {
	if int(r) < len(rankNames) {
		return rankNames[r]
	}
	return fmt.Sprintf("rank(%d)", uint8(r))
}

// ParseRank parses a canonical rank name.
func ParseRank(s string) (Rank, error) {
	for i, name := range rankNames {
		if name == s {
			return Rank(i), nil
		}
	}
	return 0, fmt.Errorf("lineage: unknown rank %q", s)
}

// Pair is one (rank, name) step of a lineage.
type Pair struct {
	Rank Rank   `json:"rank"`
	Name string `json:"name"`
}

// Lineage is an ordered run of pairs, contiguous from the root in canonical
// rank order, with trailing unassigned ranks trimmed.
type Lineage []Pair

// New builds a lineage from names assigned to successive ranks starting at
// superkingdom. Trailing empty names are trimmed; an empty name in the
// middle stays, preserving the contiguity invariant by position.
func New(names ...string) Lineage {
	l := make(Lineage, 0, len(names))
	for i, name := range names {
		if i >= len(Ranks) {
			break
		}
		l = append(l, Pair{Rank: Ranks[i], Name: name})
	}
	return l.Trim()
}

// Parse splits a semicolon-separated lineage string ("a;b;c") into a
// lineage starting at superkingdom.
func Parse(s string) Lineage {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return New(parts...)
}

// Trim removes trailing pairs with empty names.
func (l Lineage) Trim() Lineage {
	end := len(l)
	for end > 0 && l[end-1].Name == "" {
		end--
	}
	return l[:end]
}

// String renders the lineage as semicolon-separated names.
func (l Lineage) String() string {
	names := make([]string, len(l))
	for i, p := range l {
		names[i] = p.Name
	}
	return strings.Join(names, ";")
}

// Equal reports pairwise equality.
func (l Lineage) Equal(o Lineage) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

// Prefix returns the leading pairs up to and including rank r, or the whole
// lineage if it ends earlier.
func (l Lineage) Prefix(r Rank) Lineage {
	for i, p := range l {
		if p.Rank > r {
			return l[:i]
		}
	}
	return l
}
