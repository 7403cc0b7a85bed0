// Package export renders stored plans as CSV or an Excel workbook.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/fx006/diet-train-app/store"
)

// Format is an export file format.
type Format string

const (
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

// ErrUnsupportedFormat is returned for any format other than excel or csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat validates a requested format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatExcel, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (supported: excel, csv)", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of the rendered file.
func (f Format) ContentType() string {
	if f == FormatExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName returns the download name.
func (f Format) FileName() string {
	if f == FormatExcel {
		return "plans_export.xlsx"
	}
	return "plans_export.csv"
}

// SheetName is the single worksheet of an Excel export.
const SheetName = "计划数据"

// Header is the column row shared by both formats.
var Header = []string{"日期", "类型", "名称", "热量(卡路里)", "计划时长(分钟)", "实际时长(分钟)", "是否完成"}

const maxColWidth = 50

// Write renders plans in format f to w.
func Write(w io.Writer, f Format, plans []store.Plan) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, plans)
	case FormatExcel:
		return writeExcel(w, plans)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

func record(p store.Plan) []string {
	typ := "运动"
	if p.Type == store.TypeMeal {
		typ = "餐食"
	}
	done := "否"
	if p.Completed {
		done = "是"
	}
	return []string{p.Date, typ, p.Name, formatNumber(p.Calories), optional(p.Duration), optional(p.ActualDuration), done}
}

// optional renders a missing or zero duration as an empty cell.
func optional(v *float64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return formatNumber(*v)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(w io.Writer, plans []store.Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range plans {
		if err := cw.Write(record(p)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeExcel(w io.Writer, plans []store.Plan) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	widths := make([]int, len(Header))
	put := func(row int, cells []any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		for i, c := range cells {
			if n := utf8.RuneCountInString(fmt.Sprint(c)); n > widths[i] {
				widths[i] = n
			}
		}
		return f.SetSheetRow(SheetName, cell, &cells)
	}

	head := make([]any, len(Header))
	for i, h := range Header {
		head[i] = h
	}
	if err := put(1, head); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, p := range plans {
		rec := record(p)
		cells := make([]any, len(rec))
		for j, v := range rec {
			cells[j] = v
		}
		// Calories stay numeric so the sheet can sum them.
		cells[3] = p.Calories
		if err := put(i+2, cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for i, n := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, float64(min(n+2, maxColWidth))); err != nil {
			return fmt.Errorf("set width: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
