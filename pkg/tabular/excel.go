package tabular

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadExcel loads the first sheet of a workbook. The first row is taken as
// the column header.
func ReadExcel(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return New(), nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return New(), nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	table := New(header...)
	for _, cells := range rows[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = strings.TrimSpace(cells[i])
			}
		}
		table.Append(row)
	}
	return table, nil
}
