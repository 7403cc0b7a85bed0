package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fx006/diet-train-app/store"
)

type cli struct {
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DIETPLAN_CONFIG", "")
	t.Setenv("DB_PATH", filepath.Join(dir, "plans.db"))
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("MAX_FILE_MB", "")
	return &cli{dir: dir}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) workbook(t *testing.T, name string, rows [][]any) string {
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
	path := filepath.Join(c.dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	// SaveAs creates files with ModePerm; uploads never carry the execute bit.
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (c *cli) planFile(t *testing.T) string {
	return c.workbook(t, "plan.xlsx", [][]any{
		{"日期", "餐次", "食物", "热量"},
		{"2024-01-01", "早餐", "燕麦", "300"},
		{"2024-01-02", "午餐", "鸡胸肉", "200"},
	})
}

func (c *cli) assertAudited(t *testing.T, action string, want int) {
	t.Helper()
	st, err := store.Open(filepath.Join(c.dir, "plans.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	var n int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM audit_log WHERE action = ? AND transport = 'cli'`, action).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != want {
		t.Errorf("audit %s entries = %d, want %d", action, n, want)
	}
}

func TestSniff(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "sniff", c.planFile(t))
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	var res struct {
		Valid bool   `json:"is_valid"`
		Type  string `json:"file_type"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !res.Valid || res.Type != "excel" {
		t.Errorf("result = %+v", res)
	}
}

func TestSniff_Rejected(t *testing.T) {
	// WHAT: an unsupported file prints the result and exits non-zero.
	c := newCLI(t)
	path := filepath.Join(c.dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := c.run(t, "sniff", path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out, `"is_valid": false`) {
		t.Errorf("output = %s", out)
	}
}

func TestParse(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "parse", "--kind", "meal", c.planFile(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var insp struct {
		Items struct {
			Meals []struct {
				Food string `json:"food"`
			} `json:"meals"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &insp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(insp.Items.Meals) != 2 || insp.Items.Meals[0].Food != "燕麦" {
		t.Errorf("meals = %+v", insp.Items.Meals)
	}
	if _, err := os.Stat(filepath.Join(c.dir, "plans.db")); !os.IsNotExist(err) {
		t.Errorf("parse must not create the database, stat err = %v", err)
	}
}

func TestParse_BadKind(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run(t, "parse", "--kind", "sleep", c.planFile(t)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestImport_ThenExport(t *testing.T) {
	// WHAT: an imported file is saved once; a second import is a duplicate;
	// export writes the stored plans as CSV.
	c := newCLI(t)
	path := c.planFile(t)

	out, err := c.run(t, "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	var rep struct {
		ImportID     string `json:"import_id"`
		Deduplicated bool   `json:"deduplicated"`
		Saved        struct {
			MealsSaved int `json:"meals_saved"`
		} `json:"saved_data"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.ImportID == "" || rep.Saved.MealsSaved != 2 {
		t.Fatalf("report = %+v", rep)
	}

	out, err = c.run(t, "import", path)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	rep.Deduplicated = false
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.Deduplicated {
		t.Errorf("second import not deduplicated: %s", out)
	}
	c.assertAudited(t, "import", 2)

	out, err = c.run(t, "export", "--format", "csv", "--from", "2024-01-02", "-o", "-")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "鸡胸肉") {
		t.Errorf("csv = %q", out)
	}
}

func TestImport_DryRun(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run(t, "import", "--dry-run", c.planFile(t)); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := c.run(t, "export", "--format", "csv", "-o", "-")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 1 {
		t.Errorf("dry run saved plans: %q", out)
	}
}

func TestImport_ValidationError(t *testing.T) {
	// WHAT: a file with a bad row fails with DATA_VALIDATION_ERROR and saves nothing.
	c := newCLI(t)
	path := c.workbook(t, "bad.xlsx", [][]any{
		{"日期", "餐次", "食物", "热量"},
		{"2024-01-01", "早餐", "燕麦", "300"},
		{"2024-01-02", "午餐", "鸡胸肉", "abc"},
	})
	_, err := c.run(t, "import", path)
	if err == nil || !strings.Contains(err.Error(), "DATA_VALIDATION_ERROR") {
		t.Fatalf("err = %v, want DATA_VALIDATION_ERROR", err)
	}
}

func TestExport_File(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run(t, "import", c.planFile(t)); err != nil {
		t.Fatalf("import: %v", err)
	}
	dst := filepath.Join(c.dir, "out.xlsx")
	if _, err := c.run(t, "export", "--out", dst); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenFile(dst)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("计划数据")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %v", rows)
	}
}

func TestExport_BadFlags(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{
		{"export", "--format", "pdf"},
		{"export", "--from", "01/02/2024"},
		{"export", "--from", "2024-02-01", "--to", "2024-01-01"},
	} {
		if _, err := c.run(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}
