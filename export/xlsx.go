// Package export renders balance history as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/warp/flexitime-engine/flexitime"
	"github.com/xuri/excelize/v2"
)

const (
	WeeksSheet = "Weeks"
	DaysSheet  = "Days"
)

var (
	weekHeader = []string{"Week start", "Week end", "Status", "Locked", "Actual", "Expected", "Delta", "Previous", "Running"}
	dayHeader  = []string{"Week start", "Date", "Presence", "Half day", "Expected", "Actual", "Difference"}
)

// WriteWeeksWorkbook writes one row per week to the Weeks sheet and one row
// per daily record to the Days sheet. Hours are numeric cells.
func WriteWeeksWorkbook(w io.Writer, emp flexitime.Employee, weeks []flexitime.WeeklyBalance) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(WeeksSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	if _, err := f.NewSheet(DaysSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	title := string(emp.ID)
	if emp.Name != "" {
		title = fmt.Sprintf("%s (%s)", emp.Name, emp.ID)
	}
	if err := f.SetCellValue(WeeksSheet, "A1", "Flexitime balance: "+title); err != nil {
		return err
	}
	if err := writeHeader(f, WeeksSheet, weekHeader, headerStyle); err != nil {
		return err
	}
	if err := writeHeader(f, DaysSheet, dayHeader, headerStyle); err != nil {
		return err
	}
	f.SetColWidth(WeeksSheet, "A", "D", 12)
	f.SetColWidth(DaysSheet, "A", "C", 12)

	row, dayRow := 3, 2
	for _, wk := range weeks {
		values := []any{
			wk.WeekStart.String(), wk.WeekEnd.String(), string(wk.DocStatus), wk.IsLocked,
			wk.TotalActual.Float(), wk.TotalExpected.Float(), wk.WeeklyDelta.Float(),
			wk.PreviousBalance.Float(), wk.RunningBalance.Float(),
		}
		if err := writeRow(f, WeeksSheet, row, values); err != nil {
			return err
		}
		row++

		for _, d := range wk.Days {
			values := []any{
				wk.WeekStart.String(), d.Date.String(), d.PresenceType, d.IsHalfDay,
				d.Expected.Float(), d.Actual.Float(), d.Difference.Float(),
			}
			if err := writeRow(f, DaysSheet, dayRow, values); err != nil {
				return err
			}
			dayRow++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Filename suggests a download name for an employee's workbook.
func Filename(emp flexitime.Employee) string {
	return fmt.Sprintf("flexitime_%s.xlsx", emp.ID)
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	row := 1
	if sheet == WeeksSheet {
		row = 2
	}
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(header), row)
	return f.SetCellStyle(sheet, first, last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
