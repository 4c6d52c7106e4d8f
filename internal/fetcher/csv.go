package fetcher

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-mapper/internal/model"
)

// DecodeCSV parses tabular evidence. The first row must be a header naming
// at least raw_label and raw_value_text; the remaining recognized columns are
// optional per record.
func DecodeCSV(r io.Reader, ref string) ([]model.RawFact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	if _, ok := col["raw_label"]; !ok {
		return nil, eris.New("csv header missing raw_label")
	}
	if _, ok := col["raw_value_text"]; !ok {
		return nil, eris.New("csv header missing raw_value_text")
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var out []model.RawFact
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read csv row %d", line)
		}

		fact := model.RawFact{
			RawLabel:     field(record, "raw_label"),
			RawValueText: field(record, "raw_value_text"),
			RegionRef:    field(record, "region_ref"),
			CellRef:      field(record, "cell_ref"),
			DocumentID:   field(record, "document_id"),
			PeriodHint:   field(record, "period_hint"),
			ScaleHint:    field(record, "scale_hint"),
		}
		if fact.DocumentID == "" {
			fact.DocumentID = ref
		}
		if s := field(record, "page_ref"); s != "" {
			page, err := strconv.Atoi(s)
			if err != nil {
				return nil, eris.Wrapf(err, "csv row %d: page_ref %q", line, s)
			}
			fact.PageRef = page
		}
		if s := field(record, "raw_confidence"); s != "" {
			conf, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "csv row %d: raw_confidence %q", line, s)
			}
			fact.RawConfidence = conf
		} else {
			fact.RawConfidence = 1
		}
		if s := field(record, "restated"); s != "" {
			fact.Restated = s == "true" || s == "1" || s == "yes"
		}
		if s := field(record, "document_date"); s != "" {
			d, err := time.Parse("2006-01-02", s)
			if err != nil {
				return nil, eris.Wrapf(err, "csv row %d: document_date %q", line, s)
			}
			fact.DocumentDate = &d
		}
		out = append(out, fact)
	}
	return out, nil
}
