package report

import (
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"schoolattendance/internal/model"
)

// WriteXLSX saves the report as a single-sheet workbook at path.
func WriteXLSX(path string, r model.MonthlyReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := Title(r.Year, r.Month)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	cells := append([][]string{Headers}, Rows(r)...)
	for i, row := range cells {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if i > 0 {
			// numeric columns stay numeric in the workbook
			s := r.Students[i-1]
			values[3], values[4], values[5], values[6] = s.TotalDays, s.Present, s.Absent, s.Late
			values[7] = s.PresentPercentage
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	if err := format(f, sheet, cells); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// format bolds the header, adds a filter and sizes columns to their content.
func format(f *excelize.File, sheet string, cells [][]string) error {
	last, err := excelize.ColumnNumberToName(len(Headers))
	if err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return err
	}
	if err := f.AutoFilter(sheet, "A1:"+last+"1", nil); err != nil {
		return err
	}
	for c := range Headers {
		width := 10.0
		for _, row := range cells {
			if c < len(row) {
				if w := float64(utf8.RuneCountInString(row[c])) * 1.1; w > width {
					width = min(w, 60)
				}
			}
		}
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(sheet, col, col, width+1.5); err != nil {
			return err
		}
	}
	return nil
}
