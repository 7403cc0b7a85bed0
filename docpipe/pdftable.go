package docpipe

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/fx006/diet-train-app/fields"
)

// Cells in page text are separated by tabs (from positioning moves). Text
// without tabs falls back to pipes or runs of two or more spaces.
var (
	tabSep   = regexp.MustCompile(`\t+`)
	plainSep = regexp.MustCompile(`\s*\|\s*|\s{2,}`)
)

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimSpace(strings.Trim(line, "|"))
	if line == "" {
		return nil
	}
	sep := plainSep
	if strings.Contains(line, "\t") {
		sep = tabSep
	}
	parts := sep.Split(line, -1)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// A table header maps at least this many distinct fields.
const minTableFields = 2

// textTable is a header line plus the data lines directly under it.
type textTable struct {
	first, last int // line range, inclusive
	grid        [][]string
	mapping     fields.Mapping
}

// tableHeader maps cells when they read as a table header. Header cells
// carry no digits, so plan lines such as "跑步  30分钟" never qualify.
func (p *Pipeline) tableHeader(cells []string) (fields.Mapping, bool) {
	if len(cells) < minTableFields {
		return nil, false
	}
	for _, c := range cells {
		if strings.IndexFunc(c, unicode.IsDigit) >= 0 {
			return nil, false
		}
	}
	if !p.mapper.IsHeader(cells) {
		return nil, false
	}
	mapping := p.mapper.MapHeader(cells)
	if len(mapping) < minTableFields {
		return nil, false
	}
	return mapping, true
}

// findTables locates column-aligned tables in page lines. A table starts at
// a header line and runs while lines split into exactly as many cells as
// the header. A header with no data line under it is not a table.
func (p *Pipeline) findTables(lines []string) []textTable {
	var tables []textTable
	for i := 0; i < len(lines); {
		head := splitCells(lines[i])
		mapping, ok := p.tableHeader(head)
		if !ok {
			i++
			continue
		}
		grid := [][]string{head}
		j := i + 1
		for ; j < len(lines); j++ {
			cells := splitCells(lines[j])
			if len(cells) != len(head) {
				break
			}
			grid = append(grid, cells)
		}
		if len(grid) < 2 {
			i++
			continue
		}
		tables = append(tables, textTable{first: i, last: j - 1, grid: grid, mapping: mapping})
		i = j
	}
	return tables
}
