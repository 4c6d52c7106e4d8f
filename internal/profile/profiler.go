// Package profile analyzes the target spreadsheet template once per run and
// produces the read-only TemplateProfile: the eligible slot list with
// semantic context, expected periods, and the grid they were derived from.
// Re-profiling mid-run is not permitted; it would invalidate in-flight
// candidates.
package profile

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/normalize"
)

// Options configures profiling.
type Options struct {
	SheetName         string // if empty, the first sheet is profiled
	AutoDetectPeriods bool
}

// Run profiles the template at path. Failure to find a recognizable data
// region is fatal for the run (ProfilingError).
func Run(path string, opts Options) (*model.TemplateProfile, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "profile: open template")
	}

	sheet, err := pickSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	grid, err := buildGrid(sheet, opts)
	if err != nil {
		return nil, err
	}

	inferredScale := detectSheetScale(sheet, grid.HeaderRow)
	slots := buildSlots(sheet, grid, inferredScale)
	if len(slots) == 0 {
		return nil, eris.Errorf("profile: no data region recognized in sheet %q", sheet.Name)
	}

	profile := &model.TemplateProfile{
		SourcePath: path,
		Slots:      slots,
		Grid:       *grid,
	}
	profile.Index()

	zap.L().Info("profile: template profiled",
		zap.String("sheet", sheet.Name),
		zap.Int("slots", len(slots)),
		zap.Int("header_row", grid.HeaderRow),
		zap.Float64("inferred_scale", inferredScale),
	)
	return profile, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("profile: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("profile: template has no sheets")
	}
	return f.Sheets[0], nil
}

// buildGrid locates the header row (the first row whose trailing cells parse
// as periods), the label column, and per-column periods.
func buildGrid(sheet *xlsx.Sheet, opts Options) (*model.TemplateGrid, error) {
	grid := &model.TemplateGrid{
		Sheet:     sheet.Name,
		HeaderRow: -1,
		Rows:      len(sheet.Rows),
	}

	for r, row := range sheet.Rows {
		periods := 0
		for c := 1; c < len(row.Cells); c++ {
			text := strings.TrimSpace(row.Cells[c].String())
			if text == "" {
				continue
			}
			if p, conf := normalize.ParsePeriod(text); conf > 0 && p.Kind != model.PeriodUnknown {
				periods++
			}
		}
		if periods > 0 {
			grid.HeaderRow = r
			break
		}
	}
	if grid.HeaderRow < 0 {
		if opts.AutoDetectPeriods {
			return nil, eris.New("profile: no period header row recognized")
		}
		grid.HeaderRow = 0
	}

	header := sheet.Rows[grid.HeaderRow]
	grid.Cols = len(header.Cells)
	grid.ColPeriods = make([]model.Period, grid.Cols)
	for c := 1; c < grid.Cols; c++ {
		text := strings.TrimSpace(header.Cells[c].String())
		if text == "" {
			continue
		}
		p, conf := normalize.ParsePeriod(text)
		if conf > 0 {
			grid.ColPeriods[c] = p
		}
	}

	// Label column: the leftmost column carrying text in the data region.
	grid.LabelCol = 0

	grid.RowLabels = make([]string, len(sheet.Rows))
	for r, row := range sheet.Rows {
		if grid.LabelCol < len(row.Cells) {
			grid.RowLabels[r] = strings.TrimSpace(row.Cells[grid.LabelCol].String())
		}
	}

	return grid, nil
}

// detectSheetScale scans the rows above the header for a scale declaration
// such as "(in thousands)" and returns the multiplier, or 0 when none is
// declared.
func detectSheetScale(sheet *xlsx.Sheet, headerRow int) float64 {
	for r := 0; r <= headerRow && r < len(sheet.Rows); r++ {
		for _, cell := range sheet.Rows[r].Cells {
			text := cell.String()
			if text == "" {
				continue
			}
			if scale, conf := normalize.DetectScale(text); conf == 1.0 {
				return scale
			}
		}
	}
	return 0
}

// buildSlots walks the data region and emits one slot per (data row, period
// column) cell. Eligibility: no formula, not hidden, not in a total row.
func buildSlots(sheet *xlsx.Sheet, grid *model.TemplateGrid, inferredScale float64) []model.TemplateSlot {
	var slots []model.TemplateSlot

	for r := grid.HeaderRow + 1; r < len(sheet.Rows); r++ {
		label := grid.RowLabels[r]
		if label == "" {
			continue // spacer or section break
		}

		context := contextPath(sheet, grid, r)
		statement := model.InferStatement(context)
		totalRow := isTotalLabel(label)

		row := sheet.Rows[r]
		for c := 1; c < grid.Cols; c++ {
			if grid.ColPeriods[c].IsZero() {
				continue
			}

			var cell *xlsx.Cell
			if c < len(row.Cells) {
				cell = row.Cells[c]
			}

			eligible := !totalRow
			if cell != nil {
				if cell.Formula() != "" || cell.Hidden {
					eligible = false
				}
			}

			slots = append(slots, model.TemplateSlot{
				ID:            slotID(r, c),
				Address:       model.SlotAddress{Sheet: sheet.Name, Row: r, Col: c},
				Context:       context,
				Statement:     statement,
				RowLabel:      label,
				Period:        grid.ColPeriods[c],
				Eligible:      eligible,
				InferredScale: inferredScale,
			})
		}
	}

	return slots
}

// contextPath walks upward from row r collecting ancestor labels at strictly
// decreasing indent levels until the section root. The row's own label is
// the leaf.
func contextPath(sheet *xlsx.Sheet, grid *model.TemplateGrid, r int) []string {
	var reversed []string
	leafIndent := rowIndent(sheet, grid, r)
	reversed = append(reversed, grid.RowLabels[r])

	current := leafIndent
	for up := r - 1; up > grid.HeaderRow && current > 0; up-- {
		label := grid.RowLabels[up]
		if label == "" {
			continue
		}
		ind := rowIndent(sheet, grid, up)
		if ind < current {
			reversed = append(reversed, label)
			current = ind
		}
	}

	// Section title rows above the header (e.g. "Balance Sheet").
	for up := grid.HeaderRow; up >= 0; up-- {
		if label := grid.RowLabels[up]; label != "" {
			reversed = append(reversed, label)
			break
		}
	}

	// Reverse into root-first order.
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

// rowIndent derives a row's outline level from cell style indentation,
// falling back to leading whitespace in the label text.
func rowIndent(sheet *xlsx.Sheet, grid *model.TemplateGrid, r int) int {
	row := sheet.Rows[r]
	if grid.LabelCol < len(row.Cells) {
		cell := row.Cells[grid.LabelCol]
		if style := cell.GetStyle(); style != nil && style.Alignment.Indent > 0 {
			return style.Alignment.Indent
		}
		raw := cell.String()
		return (len(raw) - len(strings.TrimLeft(raw, " "))) / 2
	}
	return 0
}

func isTotalLabel(label string) bool {
	low := strings.ToLower(strings.TrimSpace(label))
	return strings.HasPrefix(low, "total ") || low == "total" ||
		strings.HasPrefix(low, "net total")
}

// slotID builds a stable identifier whose lexicographic order equals
// (row, col) order, which the assigner relies on for tie-breaking.
func slotID(row, col int) string {
	return fmt.Sprintf("s%04dc%04d", row, col)
}
