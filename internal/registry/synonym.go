// Package registry loads the versioned synonym table that maps raw
// financial-statement labels onto canonical line-item terms. The table is
// append-only and loaded exactly once per run; in-run expansion is not
// supported by design.
package registry

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SynonymTable is a versioned many-to-one mapping from synonym to canonical
// term. Lookups are case-insensitive on the normalized form of the label.
type SynonymTable struct {
	Version   string
	canonical map[string]string   // normalized synonym -> canonical term
	terms     map[string][]string // canonical term -> sorted synonyms
}

// NewSynonymTable builds an indexed table from canonical->synonyms entries.
// The canonical term always maps to itself.
func NewSynonymTable(version string, entries map[string][]string) *SynonymTable {
	t := &SynonymTable{
		Version:   version,
		canonical: make(map[string]string),
		terms:     make(map[string][]string, len(entries)),
	}
	for term, syns := range entries {
		key := Fold(term)
		t.canonical[key] = term
		sorted := append([]string(nil), syns...)
		sort.Strings(sorted)
		t.terms[term] = sorted
		for _, s := range syns {
			t.canonical[Fold(s)] = term
		}
	}
	return t
}

// Canonical returns the canonical term for a label and whether the label was
// found in the table. The input is folded before lookup.
func (t *SynonymTable) Canonical(label string) (string, bool) {
	term, ok := t.canonical[Fold(label)]
	return term, ok
}

// Terms returns the canonical terms in sorted order.
func (t *SynonymTable) Terms() []string {
	out := make([]string, 0, len(t.terms))
	for term := range t.terms {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Synonyms returns the registered synonyms for a canonical term.
func (t *SynonymTable) Synonyms(term string) []string {
	return t.terms[term]
}

// Len returns the number of synonym entries (including self-mappings).
func (t *SynonymTable) Len() int {
	return len(t.canonical)
}

// Fold normalizes a label for table lookup: NFKC-normalized, lower-case,
// punctuation removed, whitespace runs collapsed. NFKC handles full-width
// and ligature forms that show up in OCR output.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
