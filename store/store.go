// Package store persists converted plan items and the import ledger in
// SQLite.
//
// The schema is managed by goose migrations embedded in the binary. Free
// text is stripped of markup before it is written.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/fx006/diet-train-app/dbopen"
	"github.com/fx006/diet-train-app/idgen"
	"github.com/fx006/diet-train-app/plan"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the goose migration files.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic("store: migrations: " + err.Error())
	}
	return sub
}

// Plan item types as stored.
const (
	TypeMeal     = "meal"
	TypeExercise = "exercise"
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	policy *bluemonday.Policy
	now    func() time.Time
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		policy: bluemonday.StrictPolicy(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithMigrations(Migrations()))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// clean strips markup. StrictPolicy escapes what it keeps; the stored value
// is plain text, so entities are decoded again.
func (s *Store) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func (s *Store) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

// --- Plans ---

// Plan is one stored plan item.
type Plan struct {
	ID             string   `json:"id"`
	ImportID       string   `json:"import_id,omitempty"`
	Date           string   `json:"date"`
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	MealTime       string   `json:"meal_time,omitempty"`
	Calories       float64  `json:"calories"`
	Duration       *float64 `json:"duration,omitempty"`
	ActualDuration *float64 `json:"actual_duration,omitempty"`
	Completed      bool     `json:"completed"`
	Notes          string   `json:"notes,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// PlansFromItems flattens converted items into plan rows. Items without a
// date cannot be scheduled and are skipped. Meals carry no duration;
// exercises store calories burned as calories.
func PlansFromItems(items plan.Items) []Plan {
	out := make([]Plan, 0, items.Len())
	for _, m := range items.Meals {
		if m.Date == "" {
			continue
		}
		out = append(out, Plan{
			Date: m.Date, Type: TypeMeal, Name: m.Food, MealTime: m.MealTime,
			Calories: m.Calories, Notes: m.Notes,
		})
	}
	for _, e := range items.Exercises {
		if e.Date == "" {
			continue
		}
		d := e.Duration
		out = append(out, Plan{
			Date: e.Date, Type: TypeExercise, Name: e.Name,
			Calories: e.CaloriesBurned, Duration: &d, Notes: e.Notes,
		})
	}
	return out
}

// Range bounds a plan query by date, inclusive. Empty bounds are open.
type Range struct {
	From string
	To   string
}

const planColumns = `id, COALESCE(import_id, ''), plan_date, type, name, meal_time, calories,
	duration, actual_duration, completed, notes, created_at`

func scanPlan(sc interface{ Scan(...any) error }) (Plan, error) {
	var (
		p                Plan
		duration, actual sql.NullFloat64
		completed        int
	)
	err := sc.Scan(&p.ID, &p.ImportID, &p.Date, &p.Type, &p.Name, &p.MealTime, &p.Calories,
		&duration, &actual, &completed, &p.Notes, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if duration.Valid {
		p.Duration = &duration.Float64
	}
	if actual.Valid {
		p.ActualDuration = &actual.Float64
	}
	p.Completed = completed != 0
	return p, nil
}

// ListPlans returns plans within r ordered by date, meals before exercises,
// then insertion order.
func (s *Store) ListPlans(ctx context.Context, r Range) ([]Plan, error) {
	q := `SELECT ` + planColumns + ` FROM plans WHERE 1=1`
	var args []any
	if r.From != "" {
		q += ` AND plan_date >= ?`
		args = append(args, r.From)
	}
	if r.To != "" {
		q += ` AND plan_date <= ?`
		args = append(args, r.To)
	}
	q += ` ORDER BY plan_date, CASE type WHEN 'meal' THEN 0 ELSE 1 END, rowid`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlan returns a plan by ID. Returns nil, nil if not found.
func (s *Store) GetPlan(ctx context.Context, id string) (*Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &p, nil
}

// SetCompletion records whether a plan was carried out and, for exercises,
// how long it actually took. Returns false if no plan has that ID.
func (s *Store) SetCompletion(ctx context.Context, id string, completed bool, actual *float64) (bool, error) {
	done := 0
	if completed {
		done = 1
	}
	var act sql.NullFloat64
	if actual != nil {
		act = sql.NullFloat64{Float64: *actual, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET completed = ?, actual_duration = ? WHERE id = ?`, done, act, id)
	if err != nil {
		return false, fmt.Errorf("set completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePlan removes a plan and returns its date. found is false if no plan
// has that ID.
func (s *Store) DeletePlan(ctx context.Context, id string) (date string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `DELETE FROM plans WHERE id = ? RETURNING plan_date`, id).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("delete plan: %w", err)
	}
	return date, true, nil
}

// --- Imports ---

// ImportRecord is one ledger entry for a persisted import.
type ImportRecord struct {
	ID             string          `json:"id"`
	FileName       string          `json:"file_name"`
	SHA256         string          `json:"sha256"`
	FileType       string          `json:"file_type"`
	Kind           string          `json:"kind"`
	ParsedRows     int             `json:"parsed_rows"`
	MealsSaved     int             `json:"meals_saved"`
	ExercisesSaved int             `json:"exercises_saved"`
	Report         json.RawMessage `json:"report,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// SaveResult summarizes what SaveImport wrote.
type SaveResult struct {
	MealsSaved     int      `json:"meals_saved"`
	ExercisesSaved int      `json:"exercises_saved"`
	TotalSaved     int      `json:"total_saved"`
	DatesAffected  []string `json:"dates_affected"`
}

// SaveImport writes the ledger entry and every dated plan item in one
// transaction. rec.ID is assigned when empty; the saved counts are filled
// in from what was written.
func (s *Store) SaveImport(ctx context.Context, rec *ImportRecord, items plan.Items) (SaveResult, error) {
	if rec.ID == "" {
		rec.ID = idgen.Import()
	}
	rec.CreatedAt = s.timestamp()
	if len(rec.Report) == 0 {
		rec.Report = json.RawMessage("{}")
	}

	plans := PlansFromItems(items)
	rec.MealsSaved, rec.ExercisesSaved = 0, 0
	dates := make(map[string]bool)
	for _, p := range plans {
		if p.Type == TypeMeal {
			rec.MealsSaved++
		} else {
			rec.ExercisesSaved++
		}
		dates[p.Date] = true
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO imports (id, file_name, sha256, file_type, kind, parsed_rows, meals_saved, exercises_saved, report, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, s.clean(rec.FileName), rec.SHA256, rec.FileType, rec.Kind, rec.ParsedRows,
			rec.MealsSaved, rec.ExercisesSaved, string(rec.Report), rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert import: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO plans (id, import_id, plan_date, type, name, meal_time, calories, duration, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare plan insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range plans {
			var d sql.NullFloat64
			if p.Duration != nil {
				d = sql.NullFloat64{Float64: *p.Duration, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				idgen.Item(), rec.ID, p.Date, p.Type, s.clean(p.Name), s.clean(p.MealTime),
				p.Calories, d, s.clean(p.Notes), rec.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert plan: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}

	affected := make([]string, 0, len(dates))
	for d := range dates {
		affected = append(affected, d)
	}
	sort.Strings(affected)
	return SaveResult{
		MealsSaved:     rec.MealsSaved,
		ExercisesSaved: rec.ExercisesSaved,
		TotalSaved:     len(plans),
		DatesAffected:  affected,
	}, nil
}

const importColumns = `id, file_name, sha256, file_type, kind, parsed_rows, meals_saved, exercises_saved, report, created_at`

func (s *Store) getImport(ctx context.Context, where string, arg any) (*ImportRecord, error) {
	var (
		r      ImportRecord
		report string
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+importColumns+` FROM imports WHERE `+where, arg).Scan(
		&r.ID, &r.FileName, &r.SHA256, &r.FileType, &r.Kind, &r.ParsedRows,
		&r.MealsSaved, &r.ExercisesSaved, &report, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get import: %w", err)
	}
	r.Report = json.RawMessage(report)
	return &r, nil
}

// GetImport returns a ledger entry by ID. Returns nil, nil if not found.
func (s *Store) GetImport(ctx context.Context, id string) (*ImportRecord, error) {
	return s.getImport(ctx, `id = ?`, id)
}

// FindImportBySHA returns the ledger entry for file content already
// imported. Returns nil, nil if there is none.
func (s *Store) FindImportBySHA(ctx context.Context, sha string) (*ImportRecord, error) {
	return s.getImport(ctx, `sha256 = ?`, sha)
}
