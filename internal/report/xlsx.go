// Package report renders the merged progress view as a spreadsheet.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/study-tracker/internal/reconcile"
)

// Sheet names.
const (
	SheetSubjects  = "Subjects"
	SheetSubtopics = "Subtopics"
)

var (
	subjectHeader  = []any{"Subject ID", "Subject", "Code", "Marks", "Completed %", "Priority"}
	subtopicHeader = []any{"Subject", "Topic", "Subtopic ID", "Title", "Progress", "Target (min)", "Remaining (s)", "Words", "Sync"}
)

// WriteWorkbook writes one row per subject and one row per subtopic, in
// curriculum order.
func WriteWorkbook(w io.Writer, v reconcile.View) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSubjects); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSubtopics); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	priority := make(map[string]bool, len(v.Priority))
	for _, id := range v.Priority {
		priority[id] = true
	}

	if err := writeRow(f, SheetSubjects, 1, subjectHeader); err != nil {
		return err
	}
	row := 2
	for _, s := range v.Subjects {
		if err := writeRow(f, SheetSubjects, row, []any{s.ID, s.Subject, s.Code, s.Marks, round(s.Percent), yesNo(priority[s.ID])}); err != nil {
			return err
		}
		row++
	}

	if err := writeRow(f, SheetSubtopics, 1, subtopicHeader); err != nil {
		return err
	}
	row = 2
	for _, s := range v.Subjects {
		for _, t := range s.Topics {
			for _, st := range t.Subtopics {
				values := []any{s.Subject, t.Title, st.ID, st.Title, string(st.Progress), st.TargetTime, st.RemainingTime, st.WordCount, syncSummary(st)}
				if err := writeRow(f, SheetSubtopics, row, values); err != nil {
					return err
				}
				row++
			}
		}
	}

	for sheet, header := range map[string][]any{SheetSubjects: subjectHeader, SheetSubtopics: subtopicHeader} {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
		if err := f.SetColWidth(sheet, "A", "D", 24); err != nil {
			return fmt.Errorf("set width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// syncSummary is "failed" when any field failed, "pending" when any is
// still in flight, otherwise empty.
func syncSummary(st reconcile.SubtopicView) string {
	summary := ""
	for _, s := range st.Sync {
		switch s.State {
		case reconcile.StateFailed:
			return string(reconcile.StateFailed)
		case reconcile.StatePending:
			summary = string(reconcile.StatePending)
		}
	}
	if summary == "" && st.LoadError != "" {
		return "unavailable"
	}
	return summary
}

func round(p float64) float64 {
	return float64(int(p*10+0.5)) / 10
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
