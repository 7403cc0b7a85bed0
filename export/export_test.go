package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fx006/diet-train-app/store"
)

func samplePlans() []store.Plan {
	dur, actual := 30.0, 25.0
	return []store.Plan{
		{Date: "2024-01-01", Type: store.TypeMeal, Name: "燕麦, 牛奶", Calories: 300},
		{Date: "2024-01-01", Type: store.TypeExercise, Name: "跑步", Calories: 250.5, Duration: &dur, ActualDuration: &actual, Completed: true},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"excel", FormatExcel, true},
		{" CSV ", FormatCSV, true},
		{"pdf", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
		if !tt.ok && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ParseFormat(%q) err = %v, want ErrUnsupportedFormat", tt.in, err)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, samplePlans()); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %v", records)
	}
	if records[0][0] != "日期" || records[0][6] != "是否完成" {
		t.Errorf("header = %v", records[0])
	}
	meal := records[1]
	if meal[1] != "餐食" || meal[2] != "燕麦, 牛奶" || meal[3] != "300" || meal[4] != "" || meal[6] != "否" {
		t.Errorf("meal = %v", meal)
	}
	run := records[2]
	if run[1] != "运动" || run[3] != "250.5" || run[4] != "30" || run[5] != "25" || run[6] != "是" {
		t.Errorf("exercise = %v", run)
	}
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatExcel, samplePlans()); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if name := f.GetSheetName(0); name != SheetName {
		t.Errorf("sheet = %q", name)
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][3] != "热量(卡路里)" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[2][2] != "跑步" || rows[2][3] != "250.5" || rows[2][6] != "是" {
		t.Errorf("exercise row = %v", rows[2])
	}
}

func TestWrite_EmptyHasHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, nil); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "日期,类型,名称,热量(卡路里),计划时长(分钟),实际时长(分钟),是否完成\n" {
		t.Errorf("csv = %q", got)
	}
}
