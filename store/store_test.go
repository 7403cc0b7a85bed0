package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fx006/diet-train-app/dbopen"
	"github.com/fx006/diet-train-app/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	return New(dbopen.OpenMemory(t, dbopen.WithMigrations(Migrations())))
}

func sampleItems() plan.Items {
	return plan.Items{
		Meals: []plan.MealEntry{
			{Date: "2024-01-02", MealTime: "午餐", Food: "鸡胸肉", Calories: 200},
			{Date: "2024-01-01", MealTime: "早餐", Food: "燕麦", Calories: 300},
		},
		Exercises: []plan.ExerciseEntry{
			{Date: "2024-01-01", Name: "跑步", Duration: 30, CaloriesBurned: 250},
		},
	}
}

func TestSaveImport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &ImportRecord{FileName: "plan.xlsx", SHA256: "abc", FileType: "excel", Kind: "general", ParsedRows: 3,
		Report: json.RawMessage(`{"parsed_rows":3}`)}
	res, err := s.SaveImport(ctx, rec, sampleItems())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.MealsSaved != 2 || res.ExercisesSaved != 1 || res.TotalSaved != 3 {
		t.Errorf("result = %+v", res)
	}
	if len(res.DatesAffected) != 2 || res.DatesAffected[0] != "2024-01-01" || res.DatesAffected[1] != "2024-01-02" {
		t.Errorf("dates = %v", res.DatesAffected)
	}
	if rec.ID == "" || rec.CreatedAt == "" {
		t.Fatalf("record not filled: %+v", rec)
	}

	got, err := s.GetImport(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("get import: %v, %v", got, err)
	}
	if got.FileName != "plan.xlsx" || got.MealsSaved != 2 || got.ExercisesSaved != 1 || string(got.Report) != `{"parsed_rows":3}` {
		t.Errorf("import = %+v", got)
	}

	plans, err := s.ListPlans(ctx, Range{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("plans = %+v", plans)
	}
	// Ordered by date, meals before exercises.
	if plans[0].Name != "燕麦" || plans[1].Name != "跑步" || plans[2].Name != "鸡胸肉" {
		t.Errorf("order = %s, %s, %s", plans[0].Name, plans[1].Name, plans[2].Name)
	}
	run := plans[1]
	if run.Type != TypeExercise || run.Duration == nil || *run.Duration != 30 || run.Calories != 250 || run.ImportID != rec.ID {
		t.Errorf("exercise = %+v", run)
	}
	if plans[0].Duration != nil {
		t.Errorf("meal duration = %v, want nil", *plans[0].Duration)
	}
}

func TestSaveImport_SkipsUndated(t *testing.T) {
	s := openTestStore(t)
	items := plan.Items{
		Meals:     []plan.MealEntry{{Food: "苹果"}, {Date: "2024-02-01", Food: "香蕉"}},
		Exercises: []plan.ExerciseEntry{{Name: "散步", Duration: 20}},
	}
	res, err := s.SaveImport(context.Background(), &ImportRecord{FileName: "a", SHA256: "u", FileType: "pdf", Kind: "general"}, items)
	if err != nil {
		t.Fatal(err)
	}
	if res.MealsSaved != 1 || res.ExercisesSaved != 0 || res.TotalSaved != 1 || len(res.DatesAffected) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestFindImportBySHA(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if got, err := s.FindImportBySHA(ctx, "missing"); err != nil || got != nil {
		t.Fatalf("missing = %v, %v", got, err)
	}
	rec := &ImportRecord{FileName: "a.pdf", SHA256: "deadbeef", FileType: "pdf", Kind: "meal"}
	if _, err := s.SaveImport(ctx, rec, plan.Items{}); err != nil {
		t.Fatal(err)
	}
	got, err := s.FindImportBySHA(ctx, "deadbeef")
	if err != nil || got == nil || got.ID != rec.ID {
		t.Fatalf("found = %+v, %v", got, err)
	}
	if string(got.Report) != "{}" {
		t.Errorf("report = %s", got.Report)
	}
}

func TestSaveImport_DuplicateSHARollsBack(t *testing.T) {
	// WHAT: a second import with the same content hash fails and writes no
	// plan rows.
	// WHY: the ledger and its plans are one transaction.
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveImport(ctx, &ImportRecord{FileName: "a.xlsx", SHA256: "same", FileType: "excel", Kind: "general"}, sampleItems()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveImport(ctx, &ImportRecord{FileName: "b.xlsx", SHA256: "same", FileType: "excel", Kind: "general"}, sampleItems()); err == nil {
		t.Fatal("expected unique constraint error")
	}
	plans, err := s.ListPlans(ctx, Range{})
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 3 {
		t.Errorf("plans = %d, want 3", len(plans))
	}
}

func TestSaveImport_StripsMarkup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	items := plan.Items{Meals: []plan.MealEntry{
		{Date: "2024-01-01", MealTime: "早餐", Food: `<script>alert(1)</script>燕麦 & 牛奶`, Notes: "<b>少糖</b>"},
	}}
	if _, err := s.SaveImport(ctx, &ImportRecord{FileName: "<i>x</i>.xlsx", SHA256: "h", FileType: "excel", Kind: "meal"}, items); err != nil {
		t.Fatal(err)
	}
	plans, err := s.ListPlans(ctx, Range{})
	if err != nil || len(plans) != 1 {
		t.Fatalf("plans = %+v, %v", plans, err)
	}
	if plans[0].Name != "燕麦 & 牛奶" || plans[0].Notes != "少糖" {
		t.Errorf("plan = %+v", plans[0])
	}
}

func TestListPlans_Range(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveImport(ctx, &ImportRecord{FileName: "a", SHA256: "1", FileType: "excel", Kind: "general"}, sampleItems()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		r    Range
		want int
	}{
		{Range{From: "2024-01-01", To: "2024-01-01"}, 2},
		{Range{From: "2024-01-02"}, 1},
		{Range{To: "2023-12-31"}, 0},
		{Range{}, 3},
	}
	for _, tt := range tests {
		got, err := s.ListPlans(ctx, tt.r)
		if err != nil {
			t.Fatalf("%+v: %v", tt.r, err)
		}
		if len(got) != tt.want {
			t.Errorf("%+v: got %d plans, want %d", tt.r, len(got), tt.want)
		}
	}
}

func TestSetCompletion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveImport(ctx, &ImportRecord{FileName: "a", SHA256: "1", FileType: "excel", Kind: "general"}, sampleItems()); err != nil {
		t.Fatal(err)
	}
	plans, _ := s.ListPlans(ctx, Range{})
	id := plans[1].ID

	actual := 25.0
	ok, err := s.SetCompletion(ctx, id, true, &actual)
	if err != nil || !ok {
		t.Fatalf("set = %v, %v", ok, err)
	}
	p, err := s.GetPlan(ctx, id)
	if err != nil || p == nil {
		t.Fatalf("get = %v, %v", p, err)
	}
	if !p.Completed || p.ActualDuration == nil || *p.ActualDuration != 25 {
		t.Errorf("plan = %+v", p)
	}

	ok, err = s.SetCompletion(ctx, "itm_missing", true, nil)
	if err != nil || ok {
		t.Errorf("missing = %v, %v", ok, err)
	}
	if p, err := s.GetPlan(ctx, "itm_missing"); err != nil || p != nil {
		t.Errorf("get missing = %v, %v", p, err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "plans.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.SaveImport(context.Background(), &ImportRecord{FileName: "a", SHA256: "1", FileType: "pdf", Kind: "general"}, sampleItems()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	plans, err := s.ListPlans(context.Background(), Range{})
	if err != nil || len(plans) != 3 {
		t.Fatalf("plans after reopen = %d, %v", len(plans), err)
	}
}

func TestDeletePlan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveImport(ctx, &ImportRecord{FileName: "a", SHA256: "1", FileType: "excel", Kind: "general"}, sampleItems()); err != nil {
		t.Fatal(err)
	}
	plans, _ := s.ListPlans(ctx, Range{})
	target := plans[2]

	date, found, err := s.DeletePlan(ctx, target.ID)
	if err != nil || !found || date != "2024-01-02" {
		t.Fatalf("delete = %q, %v, %v", date, found, err)
	}
	if p, _ := s.GetPlan(ctx, target.ID); p != nil {
		t.Errorf("plan still present: %+v", p)
	}
	if left, _ := s.ListPlans(ctx, Range{}); len(left) != 2 {
		t.Errorf("plans left = %d", len(left))
	}

	if _, found, err := s.DeletePlan(ctx, target.ID); err != nil || found {
		t.Errorf("second delete = %v, %v", found, err)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveImport(ctx, &ImportRecord{FileName: "a", SHA256: "1", FileType: "excel", Kind: "general"}, sampleItems()); err != nil {
		t.Fatal(err)
	}
	plans, _ := s.ListPlans(ctx, Range{})
	if _, err := s.SetCompletion(ctx, plans[1].ID, true, nil); err != nil {
		t.Fatal(err)
	}
	plans, _ = s.ListPlans(ctx, Range{})

	day := ComputeDayStats("2024-01-01", plans)
	want := DayStats{Date: "2024-01-01", CaloriesIntake: 300, CaloriesBurned: 250, NetCalories: 50,
		ExerciseDuration: 30, TotalItems: 2, CompletedItems: 1, CompletionRate: 50}
	if day != want {
		t.Errorf("day = %+v, want %+v", day, want)
	}
	if empty := ComputeDayStats("2030-01-01", plans); empty.TotalItems != 0 || empty.CompletionRate != 0 {
		t.Errorf("empty day = %+v", empty)
	}

	h := ComputeHistoryStats(Range{}, plans)
	if h.TrainingDays != 2 || h.CaloriesBurned != 250 || h.AvgDailyCaloriesBurned != 125 ||
		h.AvgDailyExerciseDuration != 15 || h.TotalItems != 3 || h.CompletedItems != 1 || h.AvgCompletionRate != 33.33 {
		t.Errorf("history = %+v", h)
	}
	if h := ComputeHistoryStats(Range{From: "2030-01-01"}, nil); h.TrainingDays != 0 || h.AvgDailyCaloriesBurned != 0 || h.StartDate != "2030-01-01" {
		t.Errorf("empty history = %+v", h)
	}

	if got := Dates(plans); len(got) != 2 || got[0] != "2024-01-01" || got[1] != "2024-01-02" {
		t.Errorf("dates = %v", got)
	}
}
