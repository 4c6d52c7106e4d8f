// Package writeback applies the final assignment set to a copy of the
// template. Writes are restricted to slots profiled as eligible; everything
// else in the workbook passes through untouched. Publishing is transactional
// at the artifact level: a complete output file appears, or nothing does.
package writeback

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/model"
)

// Result reports what the writeback pass did.
type Result struct {
	OutputPath string
	Written    []string // slot ids, sorted
	Skipped    []model.Exception
}

// Apply writes assigned values into a copy of the profiled template and
// publishes it at outPath. Per-slot eligibility violations skip that slot and
// are returned in Result.Skipped; I/O failures abort with no partial output.
func Apply(profile *model.TemplateProfile, set model.AssignmentSet, outPath string) (*Result, error) {
	f, err := xlsx.OpenFile(profile.SourcePath)
	if err != nil {
		return nil, eris.Wrap(err, "writeback: open template")
	}

	res := &Result{OutputPath: outPath}

	ordered := append([]model.Assignment(nil), set.Assignments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SlotID < ordered[j].SlotID
	})

	for _, a := range ordered {
		if !a.Assigned() {
			continue
		}
		if err := writeOne(f, profile, a); err != nil {
			res.Skipped = append(res.Skipped, model.Exception{
				Kind:    model.ExceptionEligibility,
				Message: err.Error(),
				FactID:  a.FactID,
				SlotID:  a.SlotID,
				At:      time.Now().UTC(),
			})
			continue
		}
		res.Written = append(res.Written, a.SlotID)
	}

	if err := publish(f, outPath); err != nil {
		return nil, err
	}

	zap.L().Info("writeback: artifact published",
		zap.String("path", outPath),
		zap.Int("written", len(res.Written)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// writeOne places one value, re-verifying the eligibility preconditions
// against the live workbook before touching the cell.
func writeOne(f *xlsx.File, profile *model.TemplateProfile, a model.Assignment) error {
	slot := profile.Slot(a.SlotID)
	if slot == nil {
		return eris.Errorf("writeback: slot %s not in profile", a.SlotID)
	}
	if !slot.Eligible {
		return eris.Errorf("writeback: slot %s (%s) is not eligible", slot.ID, slot.Address)
	}

	sheet, ok := f.Sheet[slot.Address.Sheet]
	if !ok {
		return eris.Errorf("writeback: sheet %q missing", slot.Address.Sheet)
	}

	cell := sheet.Cell(slot.Address.Row, slot.Address.Col)
	if cell.Formula() != "" {
		return eris.Errorf("writeback: cell %s carries a formula", slot.Address)
	}

	cell.SetFloat(a.FinalValue)
	return nil
}

// publish saves to a temp file next to the target and renames into place, so
// a mid-write failure leaves no partial artifact.
func publish(f *xlsx.File, outPath string) error {
	tmp := filepath.Join(filepath.Dir(outPath), "."+filepath.Base(outPath)+".tmp")
	if err := f.Save(tmp); err != nil {
		os.Remove(tmp)
		return eris.Wrap(err, "writeback: save artifact")
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return eris.Wrap(err, "writeback: publish artifact")
	}
	return nil
}
