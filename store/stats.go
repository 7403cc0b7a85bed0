package store

import "math"

// DayStats totals one day of plans.
type DayStats struct {
	Date             string  `json:"date"`
	CaloriesIntake   float64 `json:"total_calories_intake"`
	CaloriesBurned   float64 `json:"total_calories_burned"`
	NetCalories      float64 `json:"net_calories"`
	ExerciseDuration float64 `json:"total_exercise_duration"`
	TotalItems       int     `json:"total_items"`
	CompletedItems   int     `json:"completed_items"`
	CompletionRate   float64 `json:"completion_rate"`
}

// HistoryStats totals the plans of a date range. Averages are per day that
// has at least one plan.
type HistoryStats struct {
	StartDate                string  `json:"start_date,omitempty"`
	EndDate                  string  `json:"end_date,omitempty"`
	TrainingDays             int     `json:"total_training_days"`
	CaloriesBurned           float64 `json:"total_calories_burned"`
	ExerciseDuration         float64 `json:"total_exercise_duration"`
	AvgDailyCaloriesBurned   float64 `json:"average_daily_calories_burned"`
	AvgDailyExerciseDuration float64 `json:"average_daily_exercise_duration"`
	TotalItems               int     `json:"total_items"`
	CompletedItems           int     `json:"completed_items"`
	AvgCompletionRate        float64 `json:"average_completion_rate"`
}

// totals accumulates what both stats views share.
type totals struct {
	intake, burned, duration float64
	items, completed         int
}

func (t *totals) add(p Plan) {
	t.items++
	if p.Completed {
		t.completed++
	}
	if p.Type == TypeMeal {
		t.intake += p.Calories
		return
	}
	t.burned += p.Calories
	if p.Duration != nil {
		t.duration += *p.Duration
	}
}

// percent returns completed/items as a percentage, 0 for no items.
func (t *totals) percent() float64 {
	if t.items == 0 {
		return 0
	}
	return round2(float64(t.completed) / float64(t.items) * 100)
}

// ComputeDayStats totals the plans dated date. Plans of other dates are
// ignored.
func ComputeDayStats(date string, plans []Plan) DayStats {
	var t totals
	for _, p := range plans {
		if p.Date == date {
			t.add(p)
		}
	}
	return DayStats{
		Date:             date,
		CaloriesIntake:   round2(t.intake),
		CaloriesBurned:   round2(t.burned),
		NetCalories:      round2(t.intake - t.burned),
		ExerciseDuration: t.duration,
		TotalItems:       t.items,
		CompletedItems:   t.completed,
		CompletionRate:   t.percent(),
	}
}

// ComputeHistoryStats totals plans already filtered to r.
func ComputeHistoryStats(r Range, plans []Plan) HistoryStats {
	var t totals
	days := make(map[string]bool)
	for _, p := range plans {
		t.add(p)
		days[p.Date] = true
	}
	h := HistoryStats{
		StartDate:         r.From,
		EndDate:           r.To,
		TrainingDays:      len(days),
		CaloriesBurned:    round2(t.burned),
		ExerciseDuration:  t.duration,
		TotalItems:        t.items,
		CompletedItems:    t.completed,
		AvgCompletionRate: t.percent(),
	}
	if n := float64(len(days)); n > 0 {
		h.AvgDailyCaloriesBurned = round2(t.burned / n)
		h.AvgDailyExerciseDuration = round2(t.duration / n)
	}
	return h
}

// Dates returns the distinct dates of plans in ascending order. plans must
// be sorted by date, as ListPlans returns them.
func Dates(plans []Plan) []string {
	out := []string{}
	for _, p := range plans {
		if n := len(out); n == 0 || out[n-1] != p.Date {
			out = append(out, p.Date)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
