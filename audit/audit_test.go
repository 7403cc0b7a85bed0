package audit

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fx006/diet-train-app/dbopen"
	"github.com/fx006/diet-train-app/kit"
	"github.com/fx006/diet-train-app/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithMigrations(store.Migrations()))
}

type codedErr struct{ code string }

func (e *codedErr) Error() string     { return "failed with " + e.code }
func (e *codedErr) ErrorCode() string { return e.code }

func TestLog_FillsDefaults(t *testing.T) {
	db := setupTestDB(t)
	l := New(db)
	defer l.Close()

	e := &Entry{Action: "upload"}
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(e.EntryID, "aud_") || e.Timestamp == 0 {
		t.Fatalf("entry = %+v", e)
	}
	if e.Status != StatusSuccess || e.Transport != "http" || e.Parameters != "{}" {
		t.Fatalf("defaults = %+v", e)
	}

	var action string
	if err := db.QueryRow(`SELECT action FROM audit_log WHERE entry_id = ?`, e.EntryID).Scan(&action); err != nil {
		t.Fatal(err)
	}
	if action != "upload" {
		t.Fatalf("action = %q", action)
	}
}

func TestLog_ErrorStatus(t *testing.T) {
	db := setupTestDB(t)
	l := New(db)
	defer l.Close()

	e := &Entry{Action: "upload", Error: "boom"}
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusError {
		t.Fatalf("status = %q", e.Status)
	}
}

func TestLogAsync_FlushedOnClose(t *testing.T) {
	db := setupTestDB(t)
	l := New(db, WithIDGenerator(func() string { return "aud_fixed" }))

	l.LogAsync(&Entry{Action: "export"})
	l.Close()

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE entry_id = 'aud_fixed'`).Scan(&count)
	if count != 1 {
		t.Fatalf("count = %d", count)
	}
}

func TestMiddleware(t *testing.T) {
	// WHAT: the middleware records request context, parameters, result and
	// the error code of coded errors.
	db := setupTestDB(t)
	l := New(db)

	ok := Middleware(l, "planimport_sniff")(func(ctx context.Context, req any) (any, error) {
		return map[string]bool{"is_valid": true}, nil
	})
	fail := Middleware(l, "planimport_parse")(func(ctx context.Context, req any) (any, error) {
		return nil, &codedErr{code: "FILE_PARSE_ERROR"}
	})

	ctx := kit.WithTransport(context.Background(), "mcp")
	ctx = kit.WithRequestID(ctx, "req_1")
	if _, err := ok(ctx, map[string]string{"path": "plan.xlsx"}); err != nil {
		t.Fatal(err)
	}
	var ce *codedErr
	if _, err := fail(ctx, nil); !errors.As(err, &ce) {
		t.Fatalf("err = %v", err)
	}
	l.Close()

	reader := New(db)
	defer reader.Close()
	entries, err := reader.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	byAction := map[string]Entry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}
	s := byAction["planimport_sniff"]
	if s.Transport != "mcp" || s.RequestID != "req_1" || s.Parameters != `{"path":"plan.xlsx"}` || s.Result != `{"is_valid":true}` {
		t.Errorf("success entry = %+v", s)
	}
	f := byAction["planimport_parse"]
	if f.Status != StatusError || f.ErrorCode != "FILE_PARSE_ERROR" || f.Result != "" {
		t.Errorf("error entry = %+v", f)
	}
}

func TestRecord_TruncatesLargeResult(t *testing.T) {
	db := setupTestDB(t)
	l := New(db)
	l.Record(context.Background(), "parse", nil, strings.Repeat("x", maxResultBytes), nil, time.Millisecond)
	l.Close()

	var result string
	db.QueryRow(`SELECT result FROM audit_log`).Scan(&result)
	if !strings.Contains(result, `"truncated":true`) {
		t.Fatalf("result = %q", result)
	}
}

func TestQuery_Filters(t *testing.T) {
	db := setupTestDB(t)
	l := New(db)
	defer l.Close()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, e := range []*Entry{
		{Action: "upload", Timestamp: base.UnixMilli()},
		{Action: "upload", Error: "bad", Timestamp: base.Add(time.Minute).UnixMilli()},
		{Action: "export", Timestamp: base.Add(2 * time.Minute).UnixMilli()},
	} {
		if err := l.Log(ctx, e); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"export", "upload", "upload"}},
		{"by action", Filter{Action: "upload"}, []string{"upload", "upload"}},
		{"by status", Filter{Status: StatusError}, []string{"upload"}},
		{"since", Filter{Since: base.Add(90 * time.Second)}, []string{"export"}},
		{"limit", Filter{Limit: 1}, []string{"export"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var actions []string
			for _, e := range got {
				actions = append(actions, e.Action)
			}
			if strings.Join(actions, ",") != strings.Join(tt.want, ",") {
				t.Errorf("actions = %v, want %v", actions, tt.want)
			}
		})
	}
}

func TestCleanup(t *testing.T) {
	db := setupTestDB(t)
	l := New(db)
	defer l.Close()
	ctx := context.Background()

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Log(ctx, &Entry{Action: "old", Timestamp: now.AddDate(0, 0, -40).UnixMilli()})
	l.Log(ctx, &Entry{Action: "new", Timestamp: now.AddDate(0, 0, -1).UnixMilli()})

	n, err := l.Cleanup(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d", n)
	}
	left, _ := l.Query(ctx, Filter{})
	if len(left) != 1 || left[0].Action != "new" {
		t.Fatalf("left = %+v", left)
	}
}
