package loader

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// Read returns the first row of the selected sheet as header. Fully empty
// trailing rows are dropped.
func (xlsxReader) Read(path string, opt Options) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "loader: open xlsx")
	}
	sheet, err := pickSheet(f, opt)
	if err != nil {
		return nil, nil, err
	}

	var header []string
	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			if c != nil {
				cells[j] = c.String()
			}
		}
		if header == nil {
			header = cells
			continue
		}
		if opt.MaxRows > 0 && len(rows) >= opt.MaxRows {
			break
		}
		rows = append(rows, cells)
	}
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return header, rows, nil
}

func pickSheet(f *xlsx.File, opt Options) (*xlsx.Sheet, error) {
	if opt.SheetName != "" {
		sheet, ok := f.Sheet[opt.SheetName]
		if !ok {
			return nil, eris.Errorf("loader: sheet %q not found", opt.SheetName)
		}
		return sheet, nil
	}
	if opt.SheetIndex < 0 || opt.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("loader: sheet index %d out of range (file has %d sheets)", opt.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opt.SheetIndex], nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
