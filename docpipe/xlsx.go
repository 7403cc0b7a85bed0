package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/fx006/diet-train-app/normalize"
	"github.com/fx006/diet-train-app/sniff"
)

var oleMagic = []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1")

// parseWorkbook picks the backend from the file signature rather than the
// extension: .xls files saved as OOXML and .xlsx files in BIFF both occur.
func (p *Pipeline) parseWorkbook(ctx context.Context, path string) (*Document, error) {
	legacy, err := isOLE(path)
	if err != nil {
		return nil, parseErr(sniff.TypeExcel, "cannot read workbook", err)
	}

	var (
		sheet string
		grid  [][]string
	)
	if legacy {
		sheet, grid, err = readXLS(path)
	} else {
		sheet, grid, err = readXLSX(path)
	}
	if err != nil {
		return nil, parseErr(sniff.TypeExcel, "cannot open workbook", err)
	}

	rows, found, err := p.rowsFromGrid(ctx, grid, gridOptions{style: normalize.Trim, serialDates: true})
	if err != nil {
		return nil, err
	}
	doc := &Document{Path: path, Type: sniff.TypeExcel, Sheet: sheet, HeaderFound: found}
	doc.addSource(SourceSheet)
	doc.appendRows(rows...)
	if !found {
		doc.Warnings = append(doc.Warnings, "no header row recognized; using positional columns date, meal_time, food, calories, exercise, duration, notes")
	}
	return doc, nil
}

func isOLE(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, len(oleMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false, err
	}
	return bytes.Equal(head, oleMagic), nil
}

// readXLSX returns the active sheet as a rectangular grid of raw cell
// values, with merged ranges filled from their top-left cell.
func readXLSX(path string) (string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return "", nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return sheet, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	grid := padGrid(rows)

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return sheet, nil, fmt.Errorf("read merged cells: %w", err)
	}
	for _, m := range merges {
		fillMerge(grid, m.GetStartAxis(), m.GetEndAxis(), m.GetCellValue())
	}
	return sheet, grid, nil
}

func fillMerge(grid [][]string, start, end, val string) {
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return
	}
	for r := r1 - 1; r < r2 && r < len(grid); r++ {
		for c := c1 - 1; c < c2 && c < len(grid[r]); c++ {
			grid[r][c] = val
		}
	}
}
