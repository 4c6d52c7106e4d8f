// Package audit accumulates the run's lineage: one CellPosting per slot
// decision, structured exceptions, and reconciliation outcomes. The finalized
// RunAudit is the single source of truth for why a cell holds its value.
package audit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/statement-mapper/internal/model"
)

// Recorder collects audit records for one run. Safe for concurrent appends;
// finalization is terminal.
type Recorder struct {
	mu    sync.Mutex
	audit model.RunAudit
}

// NewRecorder opens the audit for a run.
func NewRecorder(runID, templatePath string, evidenceRefs []string, options map[string]any) *Recorder {
	return &Recorder{audit: model.RunAudit{
		RunID:        runID,
		TemplatePath: templatePath,
		EvidenceRefs: evidenceRefs,
		Options:      options,
		StartedAt:    time.Now().UTC(),
	}}
}

// Exception appends one structured exception.
func (r *Recorder) Exception(e model.Exception) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audit.Finalized {
		return
	}
	r.audit.Exceptions = append(r.audit.Exceptions, e)
}

// Exceptions appends a batch of exceptions, preserving order.
func (r *Recorder) Exceptions(es []model.Exception) {
	for _, e := range es {
		r.Exception(e)
	}
}

// Posting appends one cell posting.
func (r *Recorder) Posting(p model.CellPosting) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audit.Finalized {
		return
	}
	r.audit.Postings = append(r.audit.Postings, p)
}

// Reconciliations records the identity-check outcomes. Failed checks also
// produce a non-fatal exception so they surface in the exception list.
func (r *Recorder) Reconciliations(results []model.ReconciliationResult) {
	r.mu.Lock()
	r.audit.Reconciliations = append(r.audit.Reconciliations, results...)
	r.mu.Unlock()

	for _, res := range results {
		if res.WithinMateriality {
			continue
		}
		r.Exception(model.Exception{
			Kind: model.ExceptionReconciliation,
			Message: fmt.Sprintf("%s failed: delta %.2f exceeds threshold %.2f",
				res.IdentityName, res.Delta, res.Threshold),
		})
	}
}

// RecordRunDetail attaches run-level detail discovered during the passes.
func (r *Recorder) RecordRunDetail(periods []string, scaleFactors map[string]float64, unassigned []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit.PeriodsDetected = periods
	r.audit.ScaleFactors = scaleFactors
	r.audit.UnassignedSlots = unassigned
}

// SetOutput records the published artifact path.
func (r *Recorder) SetOutput(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit.OutputPath = path
}

// Finalize stamps the end time, derives the run-level review flag, and
// returns the immutable audit. Further appends after Finalize are a
// programming error and are ignored.
func (r *Recorder) Finalize() *model.RunAudit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audit.Finalized {
		return &r.audit
	}
	r.audit.FinishedAt = time.Now().UTC()
	r.audit.Finalized = true
	r.audit.NeedsReview = needsReview(&r.audit)

	sort.SliceStable(r.audit.Postings, func(i, j int) bool {
		return r.audit.Postings[i].SlotID < r.audit.Postings[j].SlotID
	})
	return &r.audit
}

// Snapshot returns a copy of the audit as accumulated so far.
func (r *Recorder) Snapshot() model.RunAudit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audit
}

func needsReview(a *model.RunAudit) bool {
	for _, res := range a.Reconciliations {
		if !res.WithinMateriality {
			return true
		}
	}
	for _, p := range a.Postings {
		if p.NeedsReview {
			return true
		}
	}
	for _, e := range a.Exceptions {
		if e.Fatal {
			return true
		}
	}
	return false
}

// BuildPostings converts the assignment set into cell postings, joining each
// assignment back to its fact and slot. Unassigned eligible slots get a
// posting too, with no fact, so the audit covers every slot considered.
func BuildPostings(profile *model.TemplateProfile, set model.AssignmentSet, facts []model.NormalizedFact, written map[string]bool, reconByStatement map[model.StatementType]string) []model.CellPosting {
	factByID := make(map[string]model.NormalizedFact, len(facts))
	for _, f := range facts {
		factByID[f.ID] = f
	}

	now := time.Now().UTC()
	var postings []model.CellPosting

	for _, a := range set.Assignments {
		slot := profile.Slot(a.SlotID)
		if slot == nil {
			continue
		}
		fact := factByID[a.FactID]
		postings = append(postings, model.CellPosting{
			SlotID:          a.SlotID,
			Address:         slot.Address.String(),
			ContextPath:     slot.ContextPath(),
			FactID:          a.FactID,
			RawLabel:        fact.RawLabel,
			NormalizedLabel: fact.Label,
			Period:          fact.Period.Token(),
			FinalValue:      a.FinalValue,
			UnitScale:       fact.UnitScale,
			Confidence:      a.Confidence,
			MatchType:       a.MatchType,
			Score:           a.Score,
			Rationale:       a.ReviewReason,
			Alternatives:    a.Alternatives,
			Reconciliation:  reconByStatement[slot.Statement],
			NeedsReview:     a.NeedsReview,
			Written:         written[a.SlotID],
			Source:          fact.Source,
			CreatedAt:       now,
		})
	}

	for _, slotID := range set.UnassignedSlots {
		slot := profile.Slot(slotID)
		if slot == nil {
			continue
		}
		postings = append(postings, model.CellPosting{
			SlotID:         slotID,
			Address:        slot.Address.String(),
			ContextPath:    slot.ContextPath(),
			Rationale:      "no candidate satisfied this slot",
			Reconciliation: reconByStatement[slot.Statement],
			CreatedAt:      now,
		})
	}

	return postings
}
