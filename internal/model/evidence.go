// Package model defines the run-scoped entities of the mapping pipeline:
// evidence facts, template slots, candidates, assignments, reconciliation
// results, and the audit trail.
package model

import (
	"strconv"
	"time"
)

// SourceRef is an opaque pointer into the evidence store identifying where
// a fact was extracted from.
type SourceRef struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page,omitempty"`
	Region     string `json:"region,omitempty"`
	Cell       string `json:"cell,omitempty"`
}

// String renders the reference in a fixed "doc:page:region:cell" form.
// Used as the lexicographic tie-breaker of last resort, so the format
// must be stable.
func (r SourceRef) String() string {
	return r.DocumentID + ":" + strconv.Itoa(r.Page) + ":" + r.Region + ":" + r.Cell
}

// RawFact is one record of the evidence input stream, as supplied by the
// external extraction/OCR collaborator.
type RawFact struct {
	RawLabel      string     `json:"raw_label"`
	RawValueText  string     `json:"raw_value_text"`
	PageRef       int        `json:"page_ref,omitempty"`
	RegionRef     string     `json:"region_ref,omitempty"`
	CellRef       string     `json:"cell_ref,omitempty"`
	DocumentID    string     `json:"document_id"`
	RawConfidence float64    `json:"raw_confidence"`
	PeriodHint    string     `json:"period_hint,omitempty"`
	ScaleHint     string     `json:"scale_hint,omitempty"`
	Restated      bool       `json:"restated,omitempty"`
	DocumentDate  *time.Time `json:"document_date,omitempty"`
}

// Source builds the SourceRef for this raw fact.
func (f RawFact) Source() SourceRef {
	return SourceRef{
		DocumentID: f.DocumentID,
		Page:       f.PageRef,
		Region:     f.RegionRef,
		Cell:       f.CellRef,
	}
}
