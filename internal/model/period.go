package model

import (
	"fmt"
	"time"
)

// PeriodKind classifies a canonical reporting period.
type PeriodKind string

const (
	PeriodUnknown    PeriodKind = "unknown"
	PeriodFiscalYear PeriodKind = "fiscal_year"
	PeriodQuarter    PeriodKind = "fiscal_quarter"
	PeriodDateRange  PeriodKind = "date_range"
)

// Period is a canonical reporting period. Unparseable period text is kept
// with Kind == PeriodUnknown and the raw text preserved.
type Period struct {
	Kind    PeriodKind `json:"kind"`
	Year    int        `json:"year,omitempty"`
	Quarter int        `json:"quarter,omitempty"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
	Raw     string     `json:"raw,omitempty"`
}

// Token returns the canonical period token, e.g. "FY2024" or "2023Q2".
func (p Period) Token() string {
	switch p.Kind {
	case PeriodFiscalYear:
		return fmt.Sprintf("FY%04d", p.Year)
	case PeriodQuarter:
		return fmt.Sprintf("%04dQ%d", p.Year, p.Quarter)
	case PeriodDateRange:
		if p.Start != nil && p.End != nil {
			return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
		}
		return p.Raw
	default:
		return p.Raw
	}
}

// IsZero reports whether the period carries no information at all.
func (p Period) IsZero() bool {
	return p.Kind == "" || (p.Kind == PeriodUnknown && p.Raw == "")
}

// Equal reports canonical equality. Unknown periods never equal anything,
// including themselves: an unparsed period cannot be asserted compatible.
func (p Period) Equal(o Period) bool {
	if p.Kind == PeriodUnknown || o.Kind == PeriodUnknown {
		return false
	}
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case PeriodFiscalYear:
		return p.Year == o.Year
	case PeriodQuarter:
		return p.Year == o.Year && p.Quarter == o.Quarter
	case PeriodDateRange:
		return p.Token() == o.Token()
	}
	return false
}

// Subsumes reports whether p contains o: a fiscal year subsumes its four
// quarters, and a date range covering a full fiscal year subsumes that year.
func (p Period) Subsumes(o Period) bool {
	if p.Kind == PeriodFiscalYear && o.Kind == PeriodQuarter {
		return p.Year == o.Year
	}
	if p.Kind == PeriodDateRange && p.Start != nil && p.End != nil {
		switch o.Kind {
		case PeriodFiscalYear:
			return !p.Start.After(time.Date(o.Year, 1, 1, 0, 0, 0, 0, time.UTC)) &&
				!p.End.Before(time.Date(o.Year, 12, 31, 0, 0, 0, 0, time.UTC))
		}
	}
	return false
}

// Compatible reports whether a fact period can legitimately feed a slot
// period: exact equality, or subsumption in either direction when the
// caller allows aggregation.
func (p Period) Compatible(o Period, allowAggregation bool) bool {
	if p.Equal(o) {
		return true
	}
	if !allowAggregation {
		return false
	}
	return p.Subsumes(o) || o.Subsumes(p)
}
