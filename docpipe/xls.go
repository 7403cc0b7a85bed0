package docpipe

import (
	"fmt"
	"io"
	"os"

	"github.com/extrame/xls"
)

// BIFF8 sheets hold at most 256 columns.
const xlsMaxCols = 256

// openXLS opens the workbook file. The caller closes it.
var openXLS = func(path string) (io.ReadSeekCloser, error) { return os.Open(path) }

// readXLS reads the first sheet of a legacy BIFF workbook. The decoder
// panics on some malformed files; that is reported as an error.
func readXLS(path string) (sheet string, grid [][]string, err error) {
	f, err := openXLS(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt legacy workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return "", nil, err
	}
	if wb == nil {
		return "", nil, fmt.Errorf("no Workbook stream in compound file")
	}

	ws := wb.GetSheet(0)
	if ws == nil {
		return "", nil, fmt.Errorf("workbook has no sheets")
	}

	rows := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := xlsRow(ws, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		// Rows built from cell records alone carry no column bounds.
		last := row.LastCol()
		if last <= 0 || last > xlsMaxCols {
			last = xlsMaxCols
		}
		cells := make([]string, last)
		for j := row.FirstCol(); j < last; j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, trimTrailing(cells))
	}
	return ws.Name, padGrid(rows), nil
}

// xlsRow returns nil for a row index the sheet never defined.
func xlsRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

func trimTrailing(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return cells[:n]
}
