package docpipe

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fx006/diet-train-app/normalize"
	"github.com/fx006/diet-train-app/plan"
)

var (
	mealPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(早餐|午餐|晚餐|加餐)`),
		regexp.MustCompile(`(?i)\b(breakfast|lunch|dinner|snack)\b`),
	}
	exerciseLabeled = regexp.MustCompile(`(运动|锻炼|训练)\s*[:：]\s*(.+)`)
	exerciseNamed   = regexp.MustCompile(`(?i)(力量训练|有氧运动|跑步|游泳|瑜伽|骑行|散步|跳绳|running|swimming|yoga|cycling|walking)`)
	calorieToken    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:卡路里|千卡|大卡|kcal|calories|calorie|cal|卡)`)
	durationToken   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(分钟|小时|minutes|minute|mins|min|hours|hour|hrs|hr)`)
	leadingSep      = regexp.MustCompile(`^[:：\-\s]+`)
)

// lineRecord accumulates fields for one record until a flush.
type lineRecord struct {
	raw plan.RawRow
}

func (r *lineRecord) hasContent() bool {
	for f := range r.raw {
		if f != plan.FieldDate {
			return true
		}
	}
	return false
}

// parseLines turns free page text into rows. A date line opens a record
// group; meal and exercise lines inside it each start a new record; a bare
// calorie mention fills the current record if it has none. Lines before the
// first date are ignored. A record holding nothing but its date is dropped.
func parseLines(lines []string) []plan.Row {
	var lp lineParser
	for _, line := range lines {
		lp.feed(line)
	}
	return lp.finish()
}

// lineParser holds the record state of parseLines across feed calls, so a
// page can be parsed around the table blocks it contains.
type lineParser struct {
	out  []plan.Row
	date string
	cur  *lineRecord
}

func (lp *lineParser) flush() {
	if lp.cur != nil && lp.cur.hasContent() {
		row := normalize.Apply(lp.cur.raw, normalize.Collapse)
		if !row.IsEmpty() {
			lp.out = append(lp.out, row)
		}
	}
	lp.cur = nil
}

func (lp *lineParser) start() {
	lp.flush()
	lp.cur = &lineRecord{raw: plan.RawRow{plan.FieldDate: lp.date}}
}

// finish flushes the open record and returns the rows collected since the
// last finish.
func (lp *lineParser) finish() []plan.Row {
	lp.flush()
	out := lp.out
	lp.out = nil
	return out
}

func (lp *lineParser) feed(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if d, ok := normalize.Date(line); ok {
		lp.date = d
		lp.start()
		return
	}
	if lp.date == "" {
		return
	}
	if meal, food, ok := matchMeal(line); ok {
		lp.start()
		lp.cur.raw[plan.FieldMealTime] = meal
		lp.cur.raw[plan.FieldFood] = food
		if kcal, ok := matchCalories(line); ok {
			lp.cur.raw[plan.FieldCalories] = kcal
		}
		return
	}
	if name, ok := matchExercise(line); ok {
		lp.start()
		lp.cur.raw[plan.FieldExercise] = name
		if mins, ok := matchDuration(line); ok {
			lp.cur.raw[plan.FieldDuration] = mins
		}
		if kcal, ok := matchCalories(line); ok {
			lp.cur.raw[plan.FieldCalories] = kcal
		}
		return
	}
	if kcal, ok := matchCalories(line); ok && lp.cur != nil {
		if _, have := lp.cur.raw[plan.FieldCalories]; !have {
			lp.cur.raw[plan.FieldCalories] = kcal
		}
	}
}

// matchMeal finds a meal label and returns the rest of the line, minus
// calorie mentions, as the food. A label with no food text is not a meal.
func matchMeal(line string) (meal, food string, ok bool) {
	for _, re := range mealPatterns {
		loc := re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		meal = line[loc[2]:loc[3]]
		rest := calorieToken.ReplaceAllString(line[loc[1]:], "")
		rest = strings.TrimSpace(leadingSep.ReplaceAllString(rest, ""))
		if rest != "" {
			return meal, rest, true
		}
	}
	return "", "", false
}

func matchExercise(line string) (string, bool) {
	if m := exerciseLabeled.FindStringSubmatch(line); m != nil {
		name := durationToken.ReplaceAllString(m[2], "")
		name = calorieToken.ReplaceAllString(name, "")
		if name = strings.TrimSpace(name); name != "" {
			return name, true
		}
	}
	if m := exerciseNamed.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

func matchCalories(line string) (float64, bool) {
	m := calorieToken.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}

// matchDuration returns minutes; hour units are converted.
func matchDuration(line string) (float64, bool) {
	m := durationToken.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if u := strings.ToLower(m[2]); u == "小时" || strings.HasPrefix(u, "h") {
		v *= 60
	}
	return v, true
}
