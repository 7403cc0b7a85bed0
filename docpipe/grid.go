package docpipe

import (
	"context"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/fx006/diet-train-app/fields"
	"github.com/fx006/diet-train-app/normalize"
	"github.com/fx006/diet-train-app/plan"
)

// gridOptions controls how a cell grid becomes rows.
type gridOptions struct {
	style normalize.Style
	// serialDates converts bare numeric cells in the date column from
	// spreadsheet serial numbers.
	serialDates bool
	// mapping, when set, skips header detection; row 0 is the header.
	mapping fields.Mapping
}

// Largest serial excelize accepts (9999-12-31).
const maxDateSerial = 2958465

// rowsFromGrid maps a grid and normalizes every data row. Rows with no
// mapped content are skipped. The mapping lives only for this call.
func (p *Pipeline) rowsFromGrid(ctx context.Context, grid [][]string, opts gridOptions) ([]plan.Row, bool, error) {
	mapping, header, found := opts.mapping, 0, true
	if mapping == nil {
		mapping, header, found = p.mapper.DetectHeader(grid)
	}

	var rows []plan.Row
	for i := header + 1; i < len(grid); i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, found, err
			}
		}
		raw := fields.RowFrom(mapping, grid[i])
		if opts.serialDates {
			convertSerialDate(raw)
		}
		row := normalize.Apply(raw, opts.style)
		if row.IsEmpty() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, found, nil
}

func convertSerialDate(raw plan.RawRow) {
	s, ok := raw[plan.FieldDate].(string)
	if !ok || normalize.IsDate(s) {
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f > maxDateSerial {
		return
	}
	if t, err := excelize.ExcelDateToTime(f, false); err == nil {
		raw[plan.FieldDate] = t
	}
}

// padGrid copies rows into a rectangular grid.
func padGrid(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	grid := make([][]string, len(rows))
	for i, r := range rows {
		grid[i] = make([]string, width)
		copy(grid[i], r)
	}
	return grid
}
