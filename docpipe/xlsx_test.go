package docpipe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fx006/diet-train-app/plan"
	"github.com/fx006/diet-train-app/sniff"
)

// writeWorkbook saves rows to Sheet1 of a new workbook; edit runs before
// saving.
func writeWorkbook(t *testing.T, rows [][]any, edit func(f *excelize.File)) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		row := r
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if edit != nil {
		edit(f)
	}
	path := filepath.Join(t.TempDir(), "plan.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	// SaveAs creates files with ModePerm; uploads never carry the execute bit.
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractWorkbook_Scenario(t *testing.T) {
	// WHAT: a bad calories cell keeps its source text for the validator.
	// WHY: "abc" must be reported, never silently coerced to 0.
	path := writeWorkbook(t, [][]any{
		{"日期", "食物", "热量"},
		{"2024-01-01", "鸡胸肉", "200"},
		{"2024-01-02", "", "abc"},
	}, nil)

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.Type != sniff.TypeExcel || doc.Sheet != "Sheet1" || !doc.HeaderFound {
		t.Fatalf("doc = %+v", doc)
	}
	if len(doc.Rows) != 2 {
		t.Fatalf("rows = %+v", doc.Rows)
	}
	r1 := doc.Rows[0]
	if r1.Index != 1 || r1.Date != "2024-01-01" || r1.Food != "鸡胸肉" || r1.Calories == nil || *r1.Calories != 200 {
		t.Errorf("row 1 = %+v", r1)
	}
	r2 := doc.Rows[1]
	if r2.Index != 2 || r2.Calories != nil || r2.Rejected[plan.FieldCalories] != "abc" {
		t.Errorf("row 2 = %+v", r2)
	}
}

func TestExtractWorkbook_PositionalFallback(t *testing.T) {
	// WHAT: without a keyword header, columns are read positionally and the
	// first row is treated as the header.
	path := writeWorkbook(t, [][]any{
		{"2024-01-01", "早餐", "燕麦", "300"},
		{"2024-01-02", "午餐", "米饭", "500", "跑步", "30", "ok"},
	}, nil)

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.HeaderFound || len(doc.Warnings) == 0 {
		t.Errorf("header found = %v, warnings = %v", doc.HeaderFound, doc.Warnings)
	}
	if len(doc.Rows) != 1 {
		t.Fatalf("rows = %+v", doc.Rows)
	}
	r := doc.Rows[0]
	if r.Date != "2024-01-02" || r.MealTime != "午餐" || r.Food != "米饭" || *r.Calories != 500 ||
		r.Exercise != "跑步" || *r.Duration != 30 || r.Notes != "ok" {
		t.Errorf("row = %+v", r)
	}
}

func TestExtractWorkbook_HeaderBelowTitle(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"三月饮食计划"},
		{},
		{"Date", "Meal Time", "Food", "Calories", "Notes"},
		{"3/1/2024", "Breakfast", "  oat   milk  ", 250, "  "},
		{"", "", "", "", ""},
	}, nil)

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(doc.Rows) != 1 {
		t.Fatalf("rows = %+v", doc.Rows)
	}
	r := doc.Rows[0]
	// Workbook cells are trimmed but internal whitespace is kept.
	if r.Date != "2024-03-01" || r.MealTime != "Breakfast" || r.Food != "oat   milk" || *r.Calories != 250 || r.Notes != "" {
		t.Errorf("row = %+v", r)
	}
}

func TestExtractWorkbook_MergedAndSerialDates(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"日期", "类型", "名称", "热量"},
		{45292, "餐食", "燕麦", 300},
		{nil, "运动", "跑步", 200},
	}, func(f *excelize.File) {
		if err := f.MergeCell("Sheet1", "A2", "A3"); err != nil {
			t.Fatal(err)
		}
	})

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(doc.Rows) != 2 {
		t.Fatalf("rows = %+v", doc.Rows)
	}
	for _, r := range doc.Rows {
		if r.Date != "2024-01-01" {
			t.Errorf("row %d date = %q", r.Index, r.Date)
		}
	}
	items := plan.Convert(doc.Rows)
	if len(items.Meals) != 1 || len(items.Exercises) != 1 || items.Exercises[0].CaloriesBurned != 200 {
		t.Errorf("items = %+v", items)
	}
}

func TestExtractWorkbook_HeaderOnly(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"日期", "食物", "热量"}}, nil)

	_, err := New(Config{}).Extract(context.Background(), path)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestExtractWorkbook_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"plan.xlsx", append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0x01}, 200)...)},
		{"plan.xls", append([]byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1"), bytes.Repeat([]byte{0}, 600)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.name)
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := New(Config{}).Extract(context.Background(), path)
			var pe *ParseError
			if !errors.As(err, &pe) || pe.Type != sniff.TypeExcel {
				t.Fatalf("err = %v, want excel ParseError", err)
			}
			if !strings.Contains(pe.Error(), "workbook") {
				t.Errorf("error = %q", pe.Error())
			}
		})
	}
}

func TestParseTabular(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"日期", "运动", "时长"},
		{"2024-01-01", "游泳", "45"},
	}, nil)
	rows, err := New(Config{}).ParseTabular(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Exercise != "游泳" || *rows[0].Duration != 45 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSupportedFormats(t *testing.T) {
	got := strings.Join(SupportedFormats(), ",")
	for _, want := range []string{"xlsx", "xls", "pdf"} {
		if !strings.Contains(got, want) {
			t.Errorf("SupportedFormats() = %s, missing %s", got, want)
		}
	}
}
