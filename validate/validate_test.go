package validate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fx006/diet-train-app/plan"
)

func num(v float64) *float64 { return &v }

func TestRows_Empty(t *testing.T) {
	res := Rows(nil, KindGeneral)
	if res.IsValid() {
		t.Fatal("empty input must be invalid")
	}
	if len(res.Errors) != 1 || res.Errors[0].Type != EmptyData {
		t.Fatalf("errors = %+v, want one empty_data", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
}

func TestRows_CaloriesRange(t *testing.T) {
	res := Rows([]plan.Row{{Date: "2024-01-01", Food: "x", Calories: num(15000)}}, KindGeneral)
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %+v, want exactly one", res.Errors)
	}
	e := res.Errors[0]
	if e.Type != InvalidValue || e.Field != plan.FieldCalories || e.RowIndex != 1 {
		t.Errorf("error = %+v", e)
	}
	if !strings.Contains(e.Message, "0-10000") {
		t.Errorf("message %q does not state the bound", e.Message)
	}

	res = Rows([]plan.Row{{Date: "2024-01-01", Food: "x", Calories: num(500)}}, KindGeneral)
	if !res.IsValid() {
		t.Errorf("calories=500 errors = %+v", res.Errors)
	}
}

func TestRows_MealMissingRecommended(t *testing.T) {
	// WHAT: a meal row with its date but no food and no calories yields one
	// warning naming both, and no error.
	// WHY: recommended fields guide the user without blocking the import.
	res := Rows([]plan.Row{{Date: "2024-01-01", MealTime: "午餐"}}, KindMeal)
	if !res.IsValid() {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", res.Warnings)
	}
	w := res.Warnings[0]
	if !strings.Contains(w, "food") || !strings.Contains(w, "calories") || strings.Contains(w, "meal_time") {
		t.Errorf("warning = %q", w)
	}
	if w != "row 1 missing recommended fields: food, calories" {
		t.Errorf("warning = %q", w)
	}
}

func TestRows_RequiredDate(t *testing.T) {
	for _, kind := range []Kind{KindMeal, KindExercise} {
		res := Rows([]plan.Row{{Food: "x", Name: "y"}}, kind)
		if res.IsValid() || res.Errors[0].Type != MissingRequiredField || res.Errors[0].Field != plan.FieldDate {
			t.Errorf("%s: errors = %+v", kind, res.Errors)
		}
	}
	if res := Rows([]plan.Row{{Food: "x"}}, KindGeneral); !res.IsValid() {
		t.Errorf("general kind requires nothing: %+v", res.Errors)
	}
}

func TestRows_RejectedCells(t *testing.T) {
	row := plan.Row{Index: 2, Date: "2024-01-02"}
	row.Reject(plan.FieldCalories, "abc")
	bad := plan.Row{Index: 3}
	bad.Reject(plan.FieldDate, "someday")

	res := Rows([]plan.Row{row, bad}, KindGeneral)
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if e := res.Errors[0]; e.Type != InvalidValue || e.RowIndex != 2 || e.Value != "abc" || e.Field != plan.FieldCalories {
		t.Errorf("calories error = %+v", e)
	}
	if e := res.Errors[1]; e.Type != InvalidFormat || e.RowIndex != 3 || e.Value != "someday" {
		t.Errorf("date error = %+v", e)
	}
	if rows := res.ErrorRows(); !rows[2] || !rows[3] || len(rows) != 2 {
		t.Errorf("ErrorRows = %v", rows)
	}
}

func TestRows_UnnormalizedDate(t *testing.T) {
	res := Rows([]plan.Row{{Date: "31.12.2024"}}, KindGeneral)
	if res.IsValid() || res.Errors[0].Type != InvalidFormat {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestRows_Duration(t *testing.T) {
	tests := []struct {
		d     float64
		valid bool
	}{
		{0, true}, {1440, true}, {1441, false}, {-1, false},
	}
	for _, tt := range tests {
		res := Rows([]plan.Row{{Exercise: "run", Duration: num(tt.d)}}, KindGeneral)
		if res.IsValid() != tt.valid {
			t.Errorf("duration %v: valid=%v, want %v (%+v)", tt.d, res.IsValid(), tt.valid, res.Errors)
		}
	}
}

func TestRows_NegativeFromDash(t *testing.T) {
	// "12-34" normalizes to -1234, which must be reported rather than kept.
	res := Rows([]plan.Row{{Food: "x", Calories: num(-1234)}}, KindGeneral)
	if res.IsValid() || res.Errors[0].Value != "-1234" {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestRows_TextLength(t *testing.T) {
	long := strings.Repeat("饭", MaxTextLength+1)
	res := Rows([]plan.Row{{Food: long}, {Notes: strings.Repeat("a", MaxTextLength)}}, KindGeneral)
	if len(res.Errors) != 1 || res.Errors[0].Field != plan.FieldFood || res.Errors[0].RowIndex != 1 {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestRows_SummaryWarning(t *testing.T) {
	res := Rows([]plan.Row{{Date: "2024-01-01", Food: "a"}, {Date: "2024-01-02", Food: "b"}}, KindGeneral)
	if !res.IsValid() || len(res.Warnings) != 1 || res.Warnings[0] != "validated 2 rows" {
		t.Errorf("result = %+v", res)
	}
	if res.Summary() != "validation passed" {
		t.Errorf("summary = %q", res.Summary())
	}
}

func TestResult_JSON(t *testing.T) {
	row := plan.Row{Date: "2024-01-01"}
	row.Reject(plan.FieldCalories, "abc")
	res := Rows([]plan.Row{row}, KindMeal)
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		IsValid      bool   `json:"is_valid"`
		ErrorCount   int    `json:"error_count"`
		WarningCount int    `json:"warning_count"`
		Summary      string `json:"summary"`
		Errors       []struct {
			ErrorType string `json:"error_type"`
			Field     string `json:"field"`
			RowIndex  int    `json:"row_index"`
			Value     string `json:"value"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.IsValid || got.ErrorCount != 1 || got.WarningCount != 1 {
		t.Errorf("payload = %s", data)
	}
	if got.Summary != "found 1 errors, 1 warnings" {
		t.Errorf("summary = %q", got.Summary)
	}
	if got.Errors[0].ErrorType != "invalid_value" || got.Errors[0].Value != "abc" {
		t.Errorf("error = %+v", got.Errors[0])
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindGeneral, "MEAL": KindMeal, " exercise ": KindExercise} {
		if got, err := ParseKind(in); err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("snack"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCheckCompleteness(t *testing.T) {
	rows := []plan.Row{
		{Date: "2024-01-01", Food: "a", Calories: num(1)},
		{Date: "2024-01-01", Food: "b"},
		{Date: "2024-01-01"},
	}
	c := CheckCompleteness(rows, []plan.Field{plan.FieldFood, plan.FieldCalories})
	if c.TotalRows != 3 || c.CompleteRows != 1 || c.IncompleteRows != 2 {
		t.Errorf("counts = %+v", c)
	}
	if c.CompletenessRate != 33.33 {
		t.Errorf("rate = %v, want 33.33", c.CompletenessRate)
	}
	if c.MissingFields["calories"] != 2 || c.MissingFields["food"] != 1 {
		t.Errorf("missing = %v", c.MissingFields)
	}
}
