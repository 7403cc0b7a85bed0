// Package audit keeps a trail of the operations that change or read plan
// data: uploads, completion updates, exports and MCP tool calls.
//
// Entries go to the audit_log table (created by the store migrations).
// LogAsync batches inserts on a background goroutine; Close drains it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fx006/diet-train-app/dbopen"
	"github.com/fx006/diet-train-app/idgen"
	"github.com/fx006/diet-train-app/kit"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	// maxResultBytes bounds the stored result JSON; larger results are
	// replaced by their size.
	maxResultBytes = 4096
	batchSize      = 100
)

// Entry is one audited operation.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
	Action     string `json:"action"`
	Transport  string `json:"transport"`
	RequestID  string `json:"request_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Parameters string `json:"parameters"`
	Result     string `json:"result,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error_message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Action string
	Status string
	Since  time.Time
	Limit  int // default 100
}

// Logger persists audit entries.
type Logger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
	ch    chan *Entry
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets the entry ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// WithBuffer sets the async queue size (default 1000).
func WithBuffer(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.ch = make(chan *Entry, n)
		}
	}
}

// New starts a Logger writing to db.
func New(db *sql.DB, opts ...Option) *Logger {
	l := &Logger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		now:   time.Now,
		ch:    make(chan *Entry, 1000),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Log inserts an entry synchronously.
func (l *Logger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return l.insert(ctx, l.db, e)
}

// LogAsync queues an entry. A full queue falls back to a synchronous insert.
func (l *Logger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		slog.Warn("audit buffer full, sync fallback", "action", e.Action)
		if err := l.insert(context.Background(), l.db, e); err != nil {
			slog.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// Record builds an entry from an operation's context, parameters and
// outcome, and queues it.
func (l *Logger) Record(ctx context.Context, action string, params, result any, err error, d time.Duration) {
	e := &Entry{
		Action:     action,
		Transport:  kit.GetTransport(ctx),
		RequestID:  kit.GetRequestID(ctx),
		RemoteAddr: kit.GetRemoteAddr(ctx),
		Parameters: marshal(params, 0),
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
		var coded interface{ ErrorCode() string }
		if errors.As(err, &coded) {
			e.ErrorCode = coded.ErrorCode()
		}
	} else if result != nil {
		e.Result = marshal(result, maxResultBytes)
	}
	l.LogAsync(e)
}

// Middleware audits every call of an endpoint under action.
func Middleware(l *Logger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			l.Record(ctx, action, req, resp, err, time.Since(start))
			return resp, err
		}
	}
}

// Query returns entries matching f, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT entry_id, timestamp, action, transport, request_id, remote_addr,
		parameters, result, error_code, error_message, duration_ms, status
		FROM audit_log WHERE 1=1`
	var args []any
	if f.Action != "" {
		q += ` AND action = ?`
		args = append(args, f.Action)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, f.Since.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.RequestID,
			&e.RemoteAddr, &e.Parameters, &e.Result, &e.ErrorCode, &e.Error,
			&e.DurationMs, &e.Status); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retention.
func (l *Logger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := l.now().Add(-retention).UnixMilli()
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit log: %w", err)
	}
	return res.RowsAffected()
}

// StartCleanup runs Cleanup every interval until done is closed.
func (l *Logger) StartCleanup(done <-chan struct{}, interval, retention time.Duration) {
	if retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n, err := l.Cleanup(context.Background(), retention)
				if err != nil {
					slog.Error("audit cleanup", "error", err)
				} else if n > 0 {
					slog.Info("audit cleanup", "deleted", n)
				}
			}
		}
	}()
}

// Close drains the queue and stops the flush goroutine.
func (l *Logger) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

func (l *Logger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = l.now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusSuccess
		}
	}
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	batch := make([]*Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.insertBatch(ctx, batch); err != nil {
			slog.Error("audit: flush", "error", err, "entries", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Logger) insertBatch(ctx context.Context, batch []*Entry) error {
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		for _, e := range batch {
			if err := l.insert(ctx, tx, e); err != nil {
				return fmt.Errorf("insert %s: %w", e.EntryID, err)
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (l *Logger) insert(ctx context.Context, db execer, e *Entry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO audit_log
		(entry_id, timestamp, action, transport, request_id, remote_addr,
		 parameters, result, error_code, error_message, duration_ms, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp, e.Action, e.Transport, e.RequestID, e.RemoteAddr,
		e.Parameters, e.Result, e.ErrorCode, e.Error, e.DurationMs, e.Status)
	return err
}

func marshal(v any, limit int) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	if limit > 0 && len(b) > limit {
		return fmt.Sprintf(`{"truncated":true,"bytes":%d}`, len(b))
	}
	return string(b)
}
