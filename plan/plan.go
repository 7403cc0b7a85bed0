// Package plan defines the row model shared by the import pipeline and the
// canonical meal and exercise entries handed to persistence.
//
// Data flow:
//
//	extractor → RawRow → normalize.Apply → Row → validate → Convert → Items
package plan

import (
	"sort"
	"time"
)

// Field is a canonical semantic column key.
type Field string

const (
	FieldDate     Field = "date"
	FieldType     Field = "type"
	FieldName     Field = "name"
	FieldMealTime Field = "meal_time"
	FieldFood     Field = "food"
	FieldCalories Field = "calories"
	FieldExercise Field = "exercise"
	FieldDuration Field = "duration"
	FieldNotes    Field = "notes"
)

// Fields lists every canonical field in declaration order.
var Fields = []Field{
	FieldDate, FieldType, FieldName, FieldMealTime, FieldFood,
	FieldCalories, FieldExercise, FieldDuration, FieldNotes,
}

// TextFields are the free-text fields subject to the length limit.
var TextFields = []Field{FieldFood, FieldMealTime, FieldExercise, FieldName, FieldNotes}

// IsNumeric reports whether f holds a number once normalized.
func (f Field) IsNumeric() bool { return f == FieldCalories || f == FieldDuration }

// RawRow maps fields to untyped cell values: string, a numeric kind,
// time.Time, or absent. Produced by extractors, never persisted.
type RawRow map[Field]any

// Row is a normalized row. Empty strings and nil numbers mean absent.
//
// Rejected keeps the source text of non-empty cells that could not be
// coerced to their field's type, so they can be reported instead of lost.
type Row struct {
	Index    int      `json:"row_index,omitempty"`
	Date     string   `json:"date,omitempty"`
	Type     string   `json:"type,omitempty"`
	Name     string   `json:"name,omitempty"`
	MealTime string   `json:"meal_time,omitempty"`
	Food     string   `json:"food,omitempty"`
	Calories *float64 `json:"calories,omitempty"`
	Exercise string   `json:"exercise,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	Notes    string   `json:"notes,omitempty"`

	Rejected map[Field]string `json:"rejected,omitempty"`
}

// Text returns the string value of a text field, or "" for numeric fields.
func (r Row) Text(f Field) string {
	switch f {
	case FieldDate:
		return r.Date
	case FieldType:
		return r.Type
	case FieldName:
		return r.Name
	case FieldMealTime:
		return r.MealTime
	case FieldFood:
		return r.Food
	case FieldExercise:
		return r.Exercise
	case FieldNotes:
		return r.Notes
	}
	return ""
}

// SetText assigns a text field. Numeric fields are ignored.
func (r *Row) SetText(f Field, v string) {
	switch f {
	case FieldDate:
		r.Date = v
	case FieldType:
		r.Type = v
	case FieldName:
		r.Name = v
	case FieldMealTime:
		r.MealTime = v
	case FieldFood:
		r.Food = v
	case FieldExercise:
		r.Exercise = v
	case FieldNotes:
		r.Notes = v
	}
}

// Number returns the numeric value of calories or duration.
func (r Row) Number(f Field) (float64, bool) {
	var p *float64
	switch f {
	case FieldCalories:
		p = r.Calories
	case FieldDuration:
		p = r.Duration
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SetNumber assigns calories or duration.
func (r *Row) SetNumber(f Field, v float64) {
	switch f {
	case FieldCalories:
		r.Calories = &v
	case FieldDuration:
		r.Duration = &v
	}
}

// Has reports whether f carries a typed value.
func (r Row) Has(f Field) bool {
	if f.IsNumeric() {
		_, ok := r.Number(f)
		return ok
	}
	return r.Text(f) != ""
}

// Reject records the source text of a cell that failed coercion.
func (r *Row) Reject(f Field, raw string) {
	if r.Rejected == nil {
		r.Rejected = make(map[Field]string)
	}
	r.Rejected[f] = raw
}

// IsEmpty reports whether no field carries a typed or rejected value.
func (r Row) IsEmpty() bool {
	if len(r.Rejected) > 0 {
		return false
	}
	for _, f := range Fields {
		if r.Has(f) {
			return false
		}
	}
	return true
}

// Present returns the fields carrying a typed value, in declaration order.
func (r Row) Present() []Field {
	var out []Field
	for _, f := range Fields {
		if r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Raw renders the row back into untyped form. Rejected cells are carried
// as their source text.
func (r Row) Raw() RawRow {
	raw := make(RawRow)
	for _, f := range Fields {
		if f.IsNumeric() {
			if v, ok := r.Number(f); ok {
				raw[f] = v
			}
		} else if v := r.Text(f); v != "" {
			raw[f] = v
		}
	}
	for f, v := range r.Rejected {
		raw[f] = v
	}
	return raw
}

// MealEntry is a canonical meal plan item.
type MealEntry struct {
	Date     string  `json:"date"`
	MealTime string  `json:"meal_time"`
	Food     string  `json:"food"`
	Calories float64 `json:"calories"`
	Notes    string  `json:"notes,omitempty"`
}

// ExerciseEntry is a canonical exercise plan item.
type ExerciseEntry struct {
	Date           string  `json:"date"`
	Name           string  `json:"name"`
	Duration       float64 `json:"duration"`
	CaloriesBurned float64 `json:"calories_burned"`
	Notes          string  `json:"notes,omitempty"`
}

// Items is the converter output.
type Items struct {
	Meals     []MealEntry     `json:"meals"`
	Exercises []ExerciseEntry `json:"exercises"`
}

// Len returns the total number of entries.
func (it Items) Len() int { return len(it.Meals) + len(it.Exercises) }

// Dates returns the distinct dates covered by the items, sorted.
func (it Items) Dates() []string {
	seen := make(map[string]bool)
	for _, m := range it.Meals {
		seen[m.Date] = true
	}
	for _, e := range it.Exercises {
		seen[e.Date] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// DayPlan groups the entries of one date.
type DayPlan struct {
	Date      string          `json:"date"`
	Meals     []MealEntry     `json:"meals"`
	Exercises []ExerciseEntry `json:"exercises"`
}

// GroupByDate buckets items per date, sorted by date. Entries keep their
// input order inside a bucket.
func GroupByDate(it Items) []DayPlan {
	idx := make(map[string]int)
	var days []DayPlan
	bucket := func(date string) *DayPlan {
		i, ok := idx[date]
		if !ok {
			i = len(days)
			idx[date] = i
			days = append(days, DayPlan{Date: date})
		}
		return &days[i]
	}
	for _, m := range it.Meals {
		d := bucket(m.Date)
		d.Meals = append(d.Meals, m)
	}
	for _, e := range it.Exercises {
		d := bucket(e.Date)
		d.Exercises = append(d.Exercises, e)
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// ParseISODate parses a canonical YYYY-MM-DD date.
func ParseISODate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}
