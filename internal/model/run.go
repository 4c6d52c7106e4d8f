package model

import "time"

// RunStatus tracks a mapping run through the pass sequence.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusNormalizing RunStatus = "normalizing"
	RunStatusProfiling   RunStatus = "profiling"
	RunStatusMatching    RunStatus = "matching"
	RunStatusReconciling RunStatus = "reconciling"
	RunStatusWriting     RunStatus = "writing"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// PhaseStatus is the terminal state of one tracked pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// Run is one mapping execution over a template and evidence sources.
type Run struct {
	ID           string    `json:"id"`
	TemplatePath string    `json:"template_path"`
	EvidenceRefs []string  `json:"evidence_refs"`
	Status       RunStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PhaseResult records the outcome of a single pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunResult is the persisted summary of a finished run.
type RunResult struct {
	OutputPath  string        `json:"output_path,omitempty"`
	SlotsFilled int           `json:"slots_filled"`
	SlotsTotal  int           `json:"slots_total"`
	FactsUsed   int           `json:"facts_used"`
	FactsTotal  int           `json:"facts_total"`
	NeedsReview bool          `json:"needs_review"`
	Exceptions  int           `json:"exceptions"`
	Phases      []PhaseResult `json:"phases"`
}

// MappingResult is the in-memory result returned to the caller: the output
// artifact reference plus the finalized audit.
type MappingResult struct {
	RunID       string         `json:"run_id"`
	OutputPath  string         `json:"output_path,omitempty"`
	Audit       *RunAudit      `json:"audit"`
	Assignments *AssignmentSet `json:"assignments"`
	Phases      []PhaseResult  `json:"phases"`
	NeedsReview bool           `json:"needs_review"`
}
