// Package normalize coerces raw cell values into their canonical types.
//
// Dates become YYYY-MM-DD strings, calories and durations become float64,
// everything else becomes trimmed text. Values that cannot be coerced are
// absent at this layer; Apply keeps their source text aside on the row so the
// validator can report them.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/fx006/diet-train-app/plan"
)

// Style selects how text cells are cleaned.
type Style int

const (
	// Trim strips surrounding whitespace only. Used for spreadsheet cells.
	Trim Style = iota
	// Collapse also folds internal whitespace runs into one space. Used for
	// text recovered from page documents.
	Collapse
)

type datePattern struct {
	re               *regexp.Regexp
	year, month, day int // submatch indexes
}

// Order matters: the first pattern that matches and yields a real calendar
// date wins.
var datePatterns = []datePattern{
	{regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`), 1, 2, 3},
	{regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{4})`), 3, 1, 2},
	{regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`), 1, 2, 3},
}

// Fold applies NFKC so full-width digits and punctuation match ASCII patterns.
func Fold(s string) string {
	return norm.NFKC.String(s)
}

// Date returns the canonical YYYY-MM-DD form of v.
func Date(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.Format(time.DateOnly), true
	case *time.Time:
		if t == nil {
			return "", false
		}
		return Date(*t)
	}
	s := Fold(Text(v))
	if s == "" {
		return "", false
	}
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[p.year])
		mo, _ := strconv.Atoi(m[p.month])
		d, _ := strconv.Atoi(m[p.day])
		if !validDate(y, mo, d) {
			continue
		}
		return fmt.Sprintf("%04d-%02d-%02d", y, mo, d), true
	}
	return "", false
}

// IsDate reports whether s carries a recognizable date.
func IsDate(s string) bool {
	_, ok := Date(s)
	return ok
}

func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}

// Number returns v as a float64.
//
// Strings keep only digits and dots; a minus sign anywhere makes the result
// negative, so "1,234" is 1234 and "12-34" is -1234.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return finite(*n)
	case bool, time.Time:
		return 0, false
	}

	s := Fold(Text(v))
	var b strings.Builder
	neg := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-':
			neg = true
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Text stringifies v and trims surrounding whitespace.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.DateTime)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// CollapseText trims v and folds internal whitespace runs to one space.
func CollapseText(v any) string {
	return strings.Join(strings.Fields(Text(v)), " ")
}

func clean(v any, style Style) string {
	if style == Collapse {
		return CollapseText(v)
	}
	return Text(v)
}

// Apply coerces every cell of raw into a Row. Non-empty cells that fail
// date or number coercion are recorded in Row.Rejected.
func Apply(raw plan.RawRow, style Style) plan.Row {
	var row plan.Row
	for _, f := range plan.Fields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		src := clean(v, style)
		switch {
		case f == plan.FieldDate:
			if d, ok := Date(v); ok {
				row.Date = d
			} else if src != "" {
				row.Reject(f, src)
			}
		case f.IsNumeric():
			if n, ok := Number(v); ok {
				row.SetNumber(f, n)
			} else if src != "" {
				row.Reject(f, src)
			}
		default:
			row.SetText(f, src)
		}
	}
	return row
}

// Renormalize runs Apply over an already-normalized row. The result is
// identical to the input.
func Renormalize(r plan.Row, style Style) plan.Row {
	out := Apply(r.Raw(), style)
	out.Index = r.Index
	return out
}
