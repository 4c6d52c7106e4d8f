package model

import "time"

// ExceptionKind classifies audit exceptions per the error taxonomy.
type ExceptionKind string

const (
	ExceptionEvidenceParse  ExceptionKind = "evidence_parse_error"
	ExceptionProfiling      ExceptionKind = "profiling_error"
	ExceptionEligibility    ExceptionKind = "eligibility_violation"
	ExceptionReconciliation ExceptionKind = "reconciliation_failure"
	ExceptionWritebackIO    ExceptionKind = "writeback_io_error"
	ExceptionInternal       ExceptionKind = "internal_error"
)

// Exception is a structured anomaly recorded into the run audit. Fatal
// exceptions abort the run; non-fatal ones are isolated to their fact/slot.
type Exception struct {
	Kind    ExceptionKind `json:"kind"`
	Message string        `json:"message"`
	FactID  string        `json:"fact_id,omitempty"`
	SlotID  string        `json:"slot_id,omitempty"`
	Source  *SourceRef    `json:"source_ref,omitempty"`
	Fatal   bool          `json:"fatal"`
	At      time.Time     `json:"at"`
}

// CellPosting is one audit row: the full lineage from a written template
// cell back to its source fact, confidence, match rationale, and
// reconciliation status. Append-only.
type CellPosting struct {
	SlotID          string      `json:"slot_id"`
	Address         string      `json:"address"`
	ContextPath     string      `json:"context_path"`
	FactID          string      `json:"fact_id,omitempty"`
	RawLabel        string      `json:"raw_label,omitempty"`
	NormalizedLabel string      `json:"normalized_label,omitempty"`
	Period          string      `json:"period,omitempty"`
	FinalValue      float64     `json:"final_value"`
	UnitScale       float64     `json:"unit_scale,omitempty"`
	Confidence      float64     `json:"confidence"`
	MatchType       MatchType   `json:"match_type,omitempty"`
	Score           float64     `json:"score"`
	Rationale       string      `json:"rationale,omitempty"`
	Alternatives    []Candidate `json:"alternatives,omitempty"`
	Reconciliation  string      `json:"reconciliation,omitempty"`
	NeedsReview     bool        `json:"needs_review"`
	Written         bool        `json:"written"`
	Source          SourceRef   `json:"source_ref"`
	CreatedAt       time.Time   `json:"created_at"`
}

// RunAudit aggregates run metadata, the full posting list, reconciliation
// results, and exceptions. Finalized at run end and persisted immutably.
type RunAudit struct {
	RunID           string                 `json:"run_id"`
	TemplatePath    string                 `json:"template_path"`
	OutputPath      string                 `json:"output_path,omitempty"`
	EvidenceRefs    []string               `json:"evidence_refs"`
	Options         map[string]any         `json:"options,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at,omitempty"`
	Postings        []CellPosting          `json:"postings"`
	Reconciliations []ReconciliationResult `json:"reconciliations"`
	Exceptions      []Exception            `json:"exceptions"`
	PeriodsDetected []string               `json:"periods_detected,omitempty"`
	ScaleFactors    map[string]float64     `json:"scale_factors,omitempty"`
	UnassignedSlots []string               `json:"unassigned_slots,omitempty"`
	NeedsReview     bool                   `json:"needs_review"`
	Finalized       bool                   `json:"finalized"`
}

// FatalException returns the first fatal exception, or nil.
func (a *RunAudit) FatalException() *Exception {
	for i := range a.Exceptions {
		if a.Exceptions[i].Fatal {
			return &a.Exceptions[i]
		}
	}
	return nil
}
