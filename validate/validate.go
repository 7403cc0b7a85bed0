// Package validate checks a batch of normalized rows and reports every
// problem at once.
//
// Errors block an import; warnings never do. A Result is built fresh per
// call and holds no reference to the rows it describes.
package validate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fx006/diet-train-app/normalize"
	"github.com/fx006/diet-train-app/plan"
)

// Kind selects the rule set.
type Kind string

const (
	KindGeneral  Kind = "general"
	KindMeal     Kind = "meal"
	KindExercise Kind = "exercise"
)

// ParseKind maps a request parameter to a Kind. Empty means general.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindGeneral, nil
	case KindGeneral, KindMeal, KindExercise:
		return k, nil
	default:
		return "", fmt.Errorf("unknown validation kind %q", s)
	}
}

// ErrorType is the machine-readable error code.
type ErrorType string

const (
	MissingRequiredField ErrorType = "missing_required_field"
	InvalidFormat        ErrorType = "invalid_format"
	InvalidValue         ErrorType = "invalid_value"
	OutOfRange           ErrorType = "out_of_range"
	EmptyData            ErrorType = "empty_data"
)

// Limits.
const (
	MaxCalories   = 10000
	MaxDuration   = 1440
	MaxTextLength = 500
)

var (
	required = map[Kind][]plan.Field{
		KindMeal:     {plan.FieldDate},
		KindExercise: {plan.FieldDate},
	}
	recommended = map[Kind][]plan.Field{
		KindMeal:     {plan.FieldMealTime, plan.FieldFood, plan.FieldCalories},
		KindExercise: {plan.FieldName, plan.FieldDuration},
	}
)

// Error is one diagnostic. RowIndex is 1-based; 0 means not row specific.
type Error struct {
	Type     ErrorType  `json:"error_type"`
	Field    plan.Field `json:"field"`
	Message  string     `json:"message"`
	RowIndex int        `json:"row_index,omitempty"`
	Value    string     `json:"value,omitempty"`
}

func (e Error) Error() string {
	if e.RowIndex > 0 {
		return fmt.Sprintf("row %d: %s", e.RowIndex, e.Message)
	}
	return e.Message
}

// Result accumulates errors and warnings in the order they were found.
type Result struct {
	Errors   []Error  `json:"errors"`
	Warnings []string `json:"warnings"`
}

// IsValid reports whether no error was recorded.
func (r *Result) IsValid() bool { return len(r.Errors) == 0 }

func (r *Result) add(e Error) { r.Errors = append(r.Errors, e) }

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Summary is the one-line human description.
func (r *Result) Summary() string {
	if r.IsValid() {
		return "validation passed"
	}
	return fmt.Sprintf("found %d errors, %d warnings", len(r.Errors), len(r.Warnings))
}

// ErrorRows returns the 1-based row indexes that carry at least one error.
func (r *Result) ErrorRows() map[int]bool {
	out := make(map[int]bool)
	for _, e := range r.Errors {
		if e.RowIndex > 0 {
			out[e.RowIndex] = true
		}
	}
	return out
}

// MarshalJSON renders the payload surfaced to HTTP and MCP callers.
func (r *Result) MarshalJSON() ([]byte, error) {
	errs := r.Errors
	if errs == nil {
		errs = []Error{}
	}
	warns := r.Warnings
	if warns == nil {
		warns = []string{}
	}
	return json.Marshal(struct {
		IsValid      bool     `json:"is_valid"`
		ErrorCount   int      `json:"error_count"`
		WarningCount int      `json:"warning_count"`
		Errors       []Error  `json:"errors"`
		Warnings     []string `json:"warnings"`
		Summary      string   `json:"summary"`
	}{r.IsValid(), len(r.Errors), len(r.Warnings), errs, warns, r.Summary()})
}

// Rows validates rows under kind. Row indexes come from Row.Index when set,
// otherwise from the position in rows. A clean batch gets a single summary
// warning with the row count.
func Rows(rows []plan.Row, kind Kind) *Result {
	res := &Result{}
	if len(rows) == 0 {
		res.add(Error{Type: EmptyData, Message: "no data to validate"})
		return res
	}
	for i, row := range rows {
		idx := row.Index
		if idx <= 0 {
			idx = i + 1
		}
		checkRow(res, row, idx, kind)
	}
	if res.IsValid() && len(res.Warnings) == 0 {
		res.warn("validated %d rows", len(rows))
	}
	return res
}

func checkRow(res *Result, row plan.Row, idx int, kind Kind) {
	for _, f := range required[kind] {
		if !row.Has(f) && row.Rejected[f] == "" {
			res.add(Error{
				Type: MissingRequiredField, Field: f, RowIndex: idx,
				Message: fmt.Sprintf("missing required field: %s", f),
			})
		}
	}

	var missing []string
	for _, f := range recommended[kind] {
		if !row.Has(f) && row.Rejected[f] == "" {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		res.warn("row %d missing recommended fields: %s", idx, strings.Join(missing, ", "))
	}

	checkDate(res, row, idx)
	checkNumber(res, row, idx, plan.FieldCalories, MaxCalories, "calories")
	checkNumber(res, row, idx, plan.FieldDuration, MaxDuration, "duration")

	for _, f := range plan.TextFields {
		if n := utf8.RuneCountInString(row.Text(f)); n > MaxTextLength {
			res.add(Error{
				Type: InvalidValue, Field: f, RowIndex: idx,
				Message: fmt.Sprintf("%s is too long: %d characters (max %d)", f, n, MaxTextLength),
			})
		}
	}
}

func checkDate(res *Result, row plan.Row, idx int) {
	raw, rejected := row.Rejected[plan.FieldDate]
	if !rejected && row.Date != "" && !normalize.IsDate(row.Date) {
		raw, rejected = row.Date, true
	}
	if rejected {
		res.add(Error{
			Type: InvalidFormat, Field: plan.FieldDate, RowIndex: idx, Value: raw,
			Message: "invalid date format (expected YYYY-MM-DD, MM/DD/YYYY or YYYY年MM月DD日)",
		})
	}
}

func checkNumber(res *Result, row plan.Row, idx int, f plan.Field, max float64, label string) {
	if raw, ok := row.Rejected[f]; ok {
		res.add(Error{
			Type: InvalidValue, Field: f, RowIndex: idx, Value: raw,
			Message: fmt.Sprintf("%s value is not numeric (expected 0-%g)", label, max),
		})
		return
	}
	v, ok := row.Number(f)
	if !ok {
		return
	}
	if v < 0 || v > max {
		res.add(Error{
			Type: InvalidValue, Field: f, RowIndex: idx,
			Value:   strconv.FormatFloat(v, 'f', -1, 64),
			Message: fmt.Sprintf("%s value invalid or out of range (0-%g)", label, max),
		})
	}
}

// Completeness summarizes how many rows carry every field in fields.
type Completeness struct {
	TotalRows        int            `json:"total_rows"`
	CompleteRows     int            `json:"complete_rows"`
	IncompleteRows   int            `json:"incomplete_rows"`
	CompletenessRate float64        `json:"completeness_rate"`
	MissingFields    map[string]int `json:"missing_fields"`
}

// CheckCompleteness counts missing fields across rows. The rate is a
// percentage rounded to two decimals.
func CheckCompleteness(rows []plan.Row, fields []plan.Field) Completeness {
	c := Completeness{TotalRows: len(rows), MissingFields: make(map[string]int)}
	for _, row := range rows {
		complete := true
		for _, f := range fields {
			if !row.Has(f) {
				c.MissingFields[string(f)]++
				complete = false
			}
		}
		if complete {
			c.CompleteRows++
		}
	}
	c.IncompleteRows = c.TotalRows - c.CompleteRows
	if c.TotalRows > 0 {
		rate := float64(c.CompleteRows) / float64(c.TotalRows) * 100
		c.CompletenessRate = float64(int(rate*100+0.5)) / 100
	}
	return c
}

// RecommendedFields returns the recommended fields of kind.
func RecommendedFields(kind Kind) []plan.Field {
	return append([]plan.Field(nil), recommended[kind]...)
}
