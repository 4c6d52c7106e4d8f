package fetcher

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-mapper/internal/model"
)

// evidenceDocument is the JSON envelope the extraction collaborator emits:
// document-level metadata plus the fact records.
type evidenceDocument struct {
	DocumentID   string       `json:"document_id"`
	DocumentDate string       `json:"document_date,omitempty"`
	ScaleHint    string       `json:"scale_hint,omitempty"`
	Facts        []factRecord `json:"facts"`
}

type factRecord struct {
	RawLabel     string  `json:"raw_label"`
	RawValueText string  `json:"raw_value_text"`
	Page         int     `json:"page_ref,omitempty"`
	Region       string  `json:"region_ref,omitempty"`
	Cell         string  `json:"cell_ref,omitempty"`
	Confidence   float64 `json:"raw_confidence"`
	PeriodHint   string  `json:"period_hint,omitempty"`
	ScaleHint    string  `json:"scale_hint,omitempty"`
	Restated     bool    `json:"restated,omitempty"`
}

// DecodeJSON parses one evidence document. Document-level metadata (id, date,
// scale hint) fills in any fact-level gaps.
func DecodeJSON(r io.Reader, ref string) ([]model.RawFact, error) {
	var doc evidenceDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "decode evidence json")
	}
	if doc.DocumentID == "" {
		doc.DocumentID = ref
	}

	var docDate *time.Time
	if doc.DocumentDate != "" {
		d, err := time.Parse("2006-01-02", doc.DocumentDate)
		if err != nil {
			return nil, eris.Wrapf(err, "parse document_date %q", doc.DocumentDate)
		}
		docDate = &d
	}

	out := make([]model.RawFact, 0, len(doc.Facts))
	for _, rec := range doc.Facts {
		scale := rec.ScaleHint
		if scale == "" {
			scale = doc.ScaleHint
		}
		out = append(out, model.RawFact{
			RawLabel:      rec.RawLabel,
			RawValueText:  rec.RawValueText,
			PageRef:       rec.Page,
			RegionRef:     rec.Region,
			CellRef:       rec.Cell,
			DocumentID:    doc.DocumentID,
			RawConfidence: rec.Confidence,
			PeriodHint:    rec.PeriodHint,
			ScaleHint:     scale,
			Restated:      rec.Restated,
			DocumentDate:  docDate,
		})
	}
	return out, nil
}
