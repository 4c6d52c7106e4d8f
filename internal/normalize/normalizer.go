// Package normalize converts raw evidence facts into canonical
// NormalizedFacts: folded labels mapped through the synonym table, canonical
// periods, applied unit scales, normalized signs, and an intrinsic
// confidence. Facts whose value cannot be parsed are dropped with an audit
// exception, never defaulted to zero.
package normalize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/registry"
)

// Normalizer converts RawFacts to NormalizedFacts using a synonym table
// loaded once per run.
type Normalizer struct {
	synonyms *registry.SynonymTable
}

// New creates a Normalizer over the given synonym table.
func New(synonyms *registry.SynonymTable) *Normalizer {
	return &Normalizer{synonyms: synonyms}
}

// Result carries the normalization outcome: the facts that survived and the
// exceptions for those that did not.
type Result struct {
	Facts      []model.NormalizedFact
	Exceptions []model.Exception
}

// Run normalizes all raw facts. Distinct facts are independent, so the work
// fans out over a worker pool; output order matches input order so fact IDs
// are deterministic for identical input.
func (n *Normalizer) Run(ctx context.Context, raws []model.RawFact) (*Result, error) {
	facts := make([]*model.NormalizedFact, len(raws))
	excs := make([]*model.Exception, len(raws))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range raws {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			f, exc := n.one(i, raws[i])
			facts[i] = f
			excs[i] = exc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for i := range raws {
		if facts[i] != nil {
			res.Facts = append(res.Facts, *facts[i])
		}
		if excs[i] != nil {
			res.Exceptions = append(res.Exceptions, *excs[i])
		}
	}

	zap.L().Info("normalize: pass complete",
		zap.Int("input_facts", len(raws)),
		zap.Int("normalized", len(res.Facts)),
		zap.Int("dropped", len(res.Exceptions)),
	)
	return res, nil
}

// one normalizes a single raw fact. A nil fact with a non-nil exception
// means the fact was dropped.
func (n *Normalizer) one(idx int, raw model.RawFact) (*model.NormalizedFact, *model.Exception) {
	id := factID(idx)
	src := raw.Source()

	pv, err := ParseValue(raw.RawValueText)
	if err != nil {
		zap.L().Debug("normalize: dropping unparseable fact",
			zap.String("fact_id", id),
			zap.String("raw_value", raw.RawValueText),
		)
		return nil, &model.Exception{
			Kind:    model.ExceptionEvidenceParse,
			Message: fmt.Sprintf("value %q is not numeric: %v", raw.RawValueText, err),
			FactID:  id,
			Source:  &src,
			At:      time.Now().UTC(),
		}
	}

	label := raw.RawLabel
	mapped := false
	if n.synonyms != nil {
		if term, ok := n.synonyms.Canonical(raw.RawLabel); ok {
			label = term
			mapped = true
		} else {
			label = registry.Fold(raw.RawLabel)
		}
	}

	period, periodConf := ParsePeriod(raw.PeriodHint)
	scale, scaleConf := DetectScale(raw.ScaleHint)

	signFactor := 1.0
	if !pv.SignCertain {
		signFactor = 0.8
	}
	confidence := clamp01(raw.RawConfidence * (0.7 + 0.3*scaleConf) * signFactor)

	return &model.NormalizedFact{
		ID:               id,
		Label:            label,
		RawLabel:         raw.RawLabel,
		LabelMapped:      mapped,
		Period:           period,
		PeriodConfidence: periodConf,
		Value:            pv.Value,
		UnitScale:        scale,
		ScaleConfidence:  scaleConf,
		Confidence:       confidence,
		Restated:         raw.Restated,
		Source:           src,
		DocumentDate:     raw.DocumentDate,
	}, nil
}

// factID builds a stable, order-derived fact identifier. IDs are
// zero-padded so lexicographic order equals input order.
func factID(idx int) string {
	return fmt.Sprintf("f%05d", idx)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
