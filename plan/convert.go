package plan

import "strings"

// Layout identifies how a row encodes its plan item.
type Layout int

const (
	// LayoutLegacy rows carry separate food and exercise columns.
	LayoutLegacy Layout = iota
	// LayoutExplicit rows carry a type column plus a name column.
	LayoutExplicit
)

func (l Layout) String() string {
	if l == LayoutExplicit {
		return "explicit"
	}
	return "legacy"
}

// DefaultMealTime is used when a meal row names no meal time.
const DefaultMealTime = "未指定"

// ItemKind classifies an explicit-layout type cell.
type ItemKind string

const (
	KindMeal     ItemKind = "meal"
	KindExercise ItemKind = "exercise"
)

var kindSynonyms = []struct {
	kind  ItemKind
	words []string
}{
	{KindMeal, []string{"meal", "餐食", "食物", "food", "饮食", "diet"}},
	{KindExercise, []string{"exercise", "运动", "锻炼", "workout", "训练", "sport"}},
}

// ClassifyType maps a type cell to an item kind.
func ClassifyType(s string) (ItemKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range kindSynonyms {
		for _, w := range k.words {
			if s == w {
				return k.kind, true
			}
		}
	}
	return "", false
}

// LayoutOf decides the layout of a row once.
func LayoutOf(r Row) Layout {
	if r.Type != "" && r.Name != "" {
		return LayoutExplicit
	}
	return LayoutLegacy
}

// Convert maps normalized rows into meal and exercise entries.
func Convert(rows []Row) Items {
	var it Items
	for _, r := range rows {
		switch LayoutOf(r) {
		case LayoutExplicit:
			convertExplicit(r, &it)
		default:
			convertLegacy(r, &it)
		}
	}
	return it
}

func convertExplicit(r Row, it *Items) {
	kind, ok := ClassifyType(r.Type)
	if !ok {
		return
	}
	switch kind {
	case KindMeal:
		m := mealFrom(r)
		m.Food = r.Name
		it.Meals = append(it.Meals, m)
	case KindExercise:
		e := exerciseFrom(r)
		e.Name = r.Name
		it.Exercises = append(it.Exercises, e)
	}
}

func convertLegacy(r Row, it *Items) {
	if r.Food != "" {
		m := mealFrom(r)
		m.Food = r.Food
		it.Meals = append(it.Meals, m)
	}
	if r.Exercise != "" {
		e := exerciseFrom(r)
		e.Name = r.Exercise
		it.Exercises = append(it.Exercises, e)
	}
}

func mealFrom(r Row) MealEntry {
	m := MealEntry{Date: r.Date, MealTime: r.MealTime, Notes: r.Notes}
	if m.MealTime == "" {
		m.MealTime = DefaultMealTime
	}
	if v, ok := r.Number(FieldCalories); ok {
		m.Calories = v
	}
	return m
}

func exerciseFrom(r Row) ExerciseEntry {
	e := ExerciseEntry{Date: r.Date, Notes: r.Notes}
	if v, ok := r.Number(FieldDuration); ok {
		e.Duration = v
	}
	if v, ok := r.Number(FieldCalories); ok {
		e.CaloriesBurned = v
	}
	return e
}
