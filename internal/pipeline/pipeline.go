// Package pipeline orchestrates one mapping run: evidence normalization,
// template profiling, matching, reconciliation, writeback, and audit
// finalization. Passes run in a fixed order; each pass consumes only the
// outputs of earlier passes, so a run is reproducible from its inputs.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/audit"
	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/fetcher"
	"github.com/sells-group/statement-mapper/internal/match"
	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/normalize"
	"github.com/sells-group/statement-mapper/internal/profile"
	"github.com/sells-group/statement-mapper/internal/reconcile"
	"github.com/sells-group/statement-mapper/internal/registry"
	"github.com/sells-group/statement-mapper/internal/store"
	"github.com/sells-group/statement-mapper/internal/writeback"
	"github.com/sells-group/statement-mapper/pkg/semantic"
)

// Pipeline wires the mapping passes to their dependencies.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	synonyms *registry.SynonymTable
	semantic semantic.Client
}

// Request describes one mapping run.
type Request struct {
	TemplatePath string
	EvidenceRefs []string
	OutputPath   string // defaults to "<template>.mapped.xlsx"
	SheetName    string // defaults to the first recognizable sheet
}

// New creates a Pipeline. The semantic client may be nil; semantic scoring
// also requires Match.SemanticWeight > 0.
func New(cfg *config.Config, st store.Store, synonyms *registry.SynonymTable, sem semantic.Client) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, synonyms: synonyms, semantic: sem}
}

// Run executes the full mapping pipeline for one template and evidence set.
// Fatal failures (unreadable template, writeback I/O) abort with no output
// artifact but still produce and persist a finalized audit.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.MappingResult, error) {
	log := zap.L().With(zap.String("template", req.TemplatePath))
	log.Info("pipeline: starting mapping run", zap.Int("evidence_refs", len(req.EvidenceRefs)))

	run, err := p.store.CreateRun(ctx, req.TemplatePath, req.EvidenceRefs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	recorder := audit.NewRecorder(run.ID, req.TemplatePath, req.EvidenceRefs, p.runOptions())
	result := &model.MappingResult{RunID: run.ID}

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackPhase := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, fnErr := fn()
		pr := model.PhaseResult{
			Name:     name,
			Duration: time.Since(start).Milliseconds(),
			Metadata: meta,
		}
		if fnErr != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", pr.Duration),
				zap.Error(fnErr),
			)
		} else {
			pr.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", pr.Duration),
			)
		}
		result.Phases = append(result.Phases, pr)
		return fnErr
	}

	// fail finalizes the audit and marks the run failed. The audit is
	// persisted even for aborted runs so the failure is inspectable.
	fail := func(kind model.ExceptionKind, failErr error) (*model.MappingResult, error) {
		recorder.Exception(model.Exception{
			Kind:    kind,
			Message: failErr.Error(),
			Fatal:   true,
		})
		result.Audit = recorder.Finalize()
		result.NeedsReview = true
		if saveErr := p.store.SaveAudit(ctx, result.Audit); saveErr != nil {
			log.Warn("pipeline: failed to save audit for failed run", zap.Error(saveErr))
		}
		setStatus(model.RunStatusFailed)
		return result, failErr
	}

	// Pass 1: normalize evidence.
	setStatus(model.RunStatusNormalizing)
	var facts []model.NormalizedFact
	err = trackPhase("normalize", func() (map[string]any, error) {
		raws, loadErr := fetcher.NewLoader(p.cfg.Evidence).Load(ctx, req.EvidenceRefs)
		if loadErr != nil {
			return nil, loadErr
		}
		norm, normErr := normalize.New(p.synonyms).Run(ctx, raws)
		if normErr != nil {
			return nil, normErr
		}
		recorder.Exceptions(norm.Exceptions)
		facts = norm.Facts
		return map[string]any{
			"raw_facts":  len(raws),
			"facts":      len(facts),
			"exceptions": len(norm.Exceptions),
		}, nil
	})
	if err != nil {
		return fail(model.ExceptionEvidenceParse, err)
	}

	// Pass 2: profile the template.
	setStatus(model.RunStatusProfiling)
	var prof *model.TemplateProfile
	err = trackPhase("profile", func() (map[string]any, error) {
		pr, profErr := profile.Run(req.TemplatePath, profile.Options{
			SheetName:         req.SheetName,
			AutoDetectPeriods: p.cfg.Match.AutoDetectPeriods,
		})
		if profErr != nil {
			return nil, profErr
		}
		prof = pr
		return map[string]any{
			"sheet":          prof.Grid.Sheet,
			"slots":          len(prof.Slots),
			"eligible_slots": len(prof.EligibleSlots()),
		}, nil
	})
	if err != nil {
		return fail(model.ExceptionProfiling, err)
	}

	// Pass 3: match and assign.
	setStatus(model.RunStatusMatching)
	var set model.AssignmentSet
	err = trackPhase("match", func() (map[string]any, error) {
		scorer := match.NewScorer(p.synonyms, p.cfg.Match)
		if scores := p.fetchSemanticScores(ctx, facts, prof); len(scores) > 0 {
			scorer.SetSemanticScores(scores)
		}
		cands, candErr := scorer.Candidates(ctx, facts, prof)
		if candErr != nil {
			return nil, candErr
		}
		set = match.NewAssigner(p.cfg.Match).Assign(facts, prof, cands)
		return map[string]any{
			"candidates": len(cands),
			"assigned":   len(set.Assignments),
			"unassigned": len(set.UnassignedSlots),
		}, nil
	})
	if err != nil {
		return fail(model.ExceptionInternal, err)
	}

	// Pass 4: reconcile.
	setStatus(model.RunStatusReconciling)
	var reconResults []model.ReconciliationResult
	_ = trackPhase("reconcile", func() (map[string]any, error) {
		reconResults = reconcile.New(p.cfg.Reconcile).Run(set, prof, facts)
		recorder.Reconciliations(reconResults)
		failed := 0
		for _, res := range reconResults {
			if !res.WithinMateriality {
				failed++
			}
		}
		return map[string]any{"checks": len(reconResults), "failed": failed}, nil
	})

	// Pass 5: writeback.
	setStatus(model.RunStatusWriting)
	outPath := req.OutputPath
	if outPath == "" {
		outPath = defaultOutputPath(req.TemplatePath)
	}
	var wb *writeback.Result
	err = trackPhase("writeback", func() (map[string]any, error) {
		res, wbErr := writeback.Apply(prof, set, outPath)
		if wbErr != nil {
			return nil, wbErr
		}
		wb = res
		recorder.Exceptions(wb.Skipped)
		recorder.SetOutput(wb.OutputPath)
		return map[string]any{
			"output":  wb.OutputPath,
			"written": len(wb.Written),
			"skipped": len(wb.Skipped),
		}, nil
	})
	if err != nil {
		return fail(model.ExceptionWritebackIO, err)
	}

	// Pass 6: finalize the audit.
	written := make(map[string]bool, len(wb.Written))
	for _, id := range wb.Written {
		written[id] = true
	}
	postings := audit.BuildPostings(prof, set, facts, written, reconSummaries(reconResults))
	for _, posting := range postings {
		recorder.Posting(posting)
	}
	recorder.RecordRunDetail(detectedPeriods(prof), scaleFactors(prof, facts), set.UnassignedSlots)

	result.Audit = recorder.Finalize()
	result.Assignments = &set
	result.OutputPath = wb.OutputPath
	result.NeedsReview = result.Audit.NeedsReview

	if err := p.store.AppendPostings(ctx, run.ID, result.Audit.Postings); err != nil {
		log.Warn("pipeline: failed to persist postings", zap.Error(err))
	}
	if err := p.store.SaveAudit(ctx, result.Audit); err != nil {
		log.Warn("pipeline: failed to persist audit", zap.Error(err))
	}
	if err := p.store.UpdateRunResult(ctx, run.ID, &model.RunResult{
		OutputPath:  wb.OutputPath,
		SlotsFilled: len(set.Assignments),
		SlotsTotal:  len(prof.EligibleSlots()),
		FactsUsed:   len(facts) - len(set.UnusedFacts),
		FactsTotal:  len(facts),
		NeedsReview: result.NeedsReview,
		Exceptions:  len(result.Audit.Exceptions),
		Phases:      result.Phases,
	}); err != nil {
		log.Warn("pipeline: failed to persist run result", zap.Error(err))
	}
	setStatus(model.RunStatusComplete)

	log.Info("pipeline: run complete",
		zap.String("output", wb.OutputPath),
		zap.Int("slots_filled", len(set.Assignments)),
		zap.Int("slots_total", len(prof.EligibleSlots())),
		zap.Bool("needs_review", result.NeedsReview),
	)
	return result, nil
}

// fetchSemanticScores pre-fetches external compatibility scores for the
// period-compatible fact/slot pairs. Any failure degrades to label-only
// scoring.
func (p *Pipeline) fetchSemanticScores(ctx context.Context, facts []model.NormalizedFact, prof *model.TemplateProfile) map[string]float64 {
	if p.semantic == nil || p.cfg.Match.SemanticWeight <= 0 {
		return nil
	}

	var pairs []semantic.Pair
	for _, f := range facts {
		for _, s := range prof.EligibleSlots() {
			if !f.Period.Compatible(s.Period, p.cfg.Match.AllowAggregation) {
				continue
			}
			pairs = append(pairs, semantic.Pair{
				FactID:      f.ID,
				SlotID:      s.ID,
				FactLabel:   f.RawLabel,
				SlotLabel:   s.RowLabel,
				SlotContext: s.ContextPath(),
			})
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	scores, err := semantic.NewScorer(p.semantic, p.cfg.Semantic).Score(ctx, pairs)
	if err != nil {
		zap.L().Warn("pipeline: semantic scoring unavailable", zap.Error(err))
		return nil
	}
	return scores
}

// runOptions captures the settings that influenced this run, for the audit.
func (p *Pipeline) runOptions() map[string]any {
	return map[string]any{
		"fuzzy_threshold":   p.cfg.Match.FuzzyThreshold,
		"tie_epsilon":       p.cfg.Match.TieEpsilon,
		"tie_break_order":   p.cfg.Match.TieBreakOrder,
		"semantic_weight":   p.cfg.Match.SemanticWeight,
		"allow_aggregation": p.cfg.Match.AllowAggregation,
		"synonym_version":   p.synonyms.Version,
	}
}

func defaultOutputPath(templatePath string) string {
	ext := filepath.Ext(templatePath)
	return strings.TrimSuffix(templatePath, ext) + ".mapped" + ext
}

// detectedPeriods lists the unique period tokens found in the template header.
func detectedPeriods(prof *model.TemplateProfile) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range prof.Grid.ColPeriods {
		if p.IsZero() || seen[p.Token()] {
			continue
		}
		seen[p.Token()] = true
		out = append(out, p.Token())
	}
	return out
}

// scaleFactors maps each evidence document and the template itself to the
// unit scale applied to its values.
func scaleFactors(prof *model.TemplateProfile, facts []model.NormalizedFact) map[string]float64 {
	out := make(map[string]float64)
	for _, s := range prof.Slots {
		if s.InferredScale > 0 {
			out["template:"+prof.Grid.Sheet] = s.InferredScale
			break
		}
	}
	for _, f := range facts {
		if f.UnitScale > 0 {
			out["doc:"+f.Source.DocumentID] = f.UnitScale
		}
	}
	return out
}

// reconSummaries collapses reconciliation outcomes to one line per statement
// for posting lineage.
func reconSummaries(results []model.ReconciliationResult) map[model.StatementType]string {
	out := make(map[model.StatementType]string, len(results))
	for _, res := range results {
		status := "within materiality"
		if !res.WithinMateriality {
			status = fmt.Sprintf("failed: delta %.2f exceeds threshold %.2f", res.Delta, res.Threshold)
		}
		line := fmt.Sprintf("%s: %s", res.IdentityName, status)
		if prev, ok := out[res.Statement]; ok {
			out[res.Statement] = prev + "; " + line
		} else {
			out[res.Statement] = line
		}
	}
	return out
}
