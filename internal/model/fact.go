package model

import "time"

// NormalizedFact is a single canonical observation produced by the
// normalization pass. Immutable once created; owned by the run.
type NormalizedFact struct {
	ID               string     `json:"id"`
	Label            string     `json:"label"`
	RawLabel         string     `json:"raw_label"`
	LabelMapped      bool       `json:"label_mapped"`
	Period           Period     `json:"period"`
	PeriodConfidence float64    `json:"period_confidence"`
	Value            float64    `json:"value"`
	UnitScale        float64    `json:"unit_scale"`
	ScaleConfidence  float64    `json:"scale_confidence"`
	Confidence       float64    `json:"confidence"`
	Restated         bool       `json:"restated,omitempty"`
	Source           SourceRef  `json:"source_ref"`
	DocumentDate     *time.Time `json:"document_date,omitempty"`
}

// ScaledValue is the fact's value after applying its declared unit scale.
// Every written slot value must equal exactly one fact's ScaledValue.
func (f NormalizedFact) ScaledValue() float64 {
	return f.Value * f.UnitScale
}
