// Package fields maps header cells to canonical plan fields.
//
// The mapping is driven by an ordered keyword table checked first-match-wins.
// A Mapping is built per file and never shared.
package fields

import (
	"strings"

	"github.com/fx006/diet-train-app/normalize"
	"github.com/fx006/diet-train-app/plan"
)

// Rule binds a field to the header keywords that select it.
type Rule struct {
	Field    plan.Field
	Keywords []string
}

// Table is the default keyword table. Specific fields come before generic
// ones: "用餐时间" must reach meal_time before duration sees "时间".
var Table = []Rule{
	{plan.FieldMealTime, []string{"餐次", "用餐时间", "餐食时间", "早中晚", "meal time", "meal_time", "mealtime", "meal"}},
	{plan.FieldDate, []string{"日期", "date", "day"}},
	{plan.FieldCalories, []string{"热量", "卡路里", "calories", "calorie", "kcal", "能量"}},
	{plan.FieldDuration, []string{"时长", "时间", "duration", "time", "分钟", "minute", "min"}},
	{plan.FieldFood, []string{"食物", "食品", "菜品", "餐食内容", "food"}},
	{plan.FieldExercise, []string{"运动", "锻炼", "训练", "活动", "exercise", "workout"}},
	{plan.FieldType, []string{"类型", "种类", "type", "category", "kind"}},
	{plan.FieldName, []string{"名称", "项目", "name", "item"}},
	{plan.FieldNotes, []string{"备注", "说明", "描述", "notes", "note", "remark", "comment"}},
}

// HeaderRatio is the share of non-empty cells that must carry a keyword for
// a row to count as a header.
const HeaderRatio = 0.4

// MaxHeaderScan bounds how many leading rows are examined for a header.
const MaxHeaderScan = 5

// Mapping maps a zero-based column index to its field.
type Mapping map[int]plan.Field

// Fields returns the mapped fields in column order.
func (m Mapping) Fields(width int) []plan.Field {
	var out []plan.Field
	for i := 0; i < width; i++ {
		if f, ok := m[i]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Mapper classifies header text with a keyword table.
type Mapper struct {
	rules []Rule
}

// New returns a Mapper over rules. A nil slice selects Table.
func New(rules []Rule) *Mapper {
	if rules == nil {
		rules = Table
	}
	return &Mapper{rules: rules}
}

var defaultMapper = New(nil)

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(normalize.Fold(s)))
}

// Classify returns the first field whose keywords occur in cell.
func (m *Mapper) Classify(cell string) (plan.Field, bool) {
	c := fold(cell)
	if c == "" {
		return "", false
	}
	for _, r := range m.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(c, fold(kw)) {
				return r.Field, true
			}
		}
	}
	return "", false
}

// IsHeader reports whether enough non-empty cells carry a keyword.
func (m *Mapper) IsHeader(cells []string) bool {
	nonEmpty, hits := 0, 0
	for _, c := range cells {
		if strings.TrimSpace(c) == "" {
			continue
		}
		nonEmpty++
		if _, ok := m.Classify(c); ok {
			hits++
		}
	}
	return nonEmpty > 0 && float64(hits)/float64(nonEmpty) >= HeaderRatio
}

// MapHeader maps each keyword-bearing cell to its field. When two columns
// resolve to the same field the leftmost one keeps it; later duplicates are
// left unmapped rather than overriding the earlier column. With the table
// order above, "用餐时间" lands on meal_time instead of date or duration.
func (m *Mapper) MapHeader(cells []string) Mapping {
	out := make(Mapping)
	taken := make(map[plan.Field]bool)
	for i, c := range cells {
		f, ok := m.Classify(c)
		if !ok || taken[f] {
			continue
		}
		out[i] = f
		taken[f] = true
	}
	return out
}

// DetectHeader scans the first MaxHeaderScan rows for a header. It returns
// the mapping, the zero-based header row index and whether a header was
// found. Without a header it returns the positional mapping anchored at
// row 0.
func (m *Mapper) DetectHeader(rows [][]string) (Mapping, int, bool) {
	for i := 0; i < len(rows) && i < MaxHeaderScan; i++ {
		if m.IsHeader(rows[i]) {
			if mp := m.MapHeader(rows[i]); len(mp) > 0 {
				return mp, i, true
			}
		}
	}
	return Positional(), 0, false
}

// Positional is the fixed fallback layout.
func Positional() Mapping {
	return Mapping{
		0: plan.FieldDate,
		1: plan.FieldMealTime,
		2: plan.FieldFood,
		3: plan.FieldCalories,
		4: plan.FieldExercise,
		5: plan.FieldDuration,
		6: plan.FieldNotes,
	}
}

// Classify uses the default table.
func Classify(cell string) (plan.Field, bool) { return defaultMapper.Classify(cell) }

// IsHeader uses the default table.
func IsHeader(cells []string) bool { return defaultMapper.IsHeader(cells) }

// MapHeader uses the default table.
func MapHeader(cells []string) Mapping { return defaultMapper.MapHeader(cells) }

// DetectHeader uses the default table.
func DetectHeader(rows [][]string) (Mapping, int, bool) { return defaultMapper.DetectHeader(rows) }

// RowFrom builds a RawRow from cells using the mapping. Cells beyond the row
// width are absent.
func RowFrom(m Mapping, cells []string) plan.RawRow {
	raw := make(plan.RawRow, len(m))
	for i, f := range m {
		if i < len(cells) {
			raw[f] = cells[i]
		}
	}
	return raw
}
