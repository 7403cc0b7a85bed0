// Package api exposes the import pipeline and the plan store over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /api/files/supported-formats
//	POST   /api/files/upload?kind=&dry_run=
//	GET    /api/files/export/{format}?start_date=&end_date=
//	GET    /api/plans?date=  or  ?start_date=&end_date=
//	GET    /api/plans/stats/{date}
//	GET    /api/plans/history?start_date=&end_date=
//	GET    /api/plans/history/stats?start_date=&end_date=
//	PATCH  /api/plans/{id}
//	DELETE /api/plans/{id}
//	GET    /api/imports/{id}
//	GET    /api/audit?action=&status=&limit=   (when an audit logger is set)
//
// Failures are JSON objects {error, message, code} with a stable code.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fx006/diet-train-app/audit"
	"github.com/fx006/diet-train-app/idgen"
	"github.com/fx006/diet-train-app/planimport"
	"github.com/fx006/diet-train-app/shield"
	"github.com/fx006/diet-train-app/store"
)

// Server holds the HTTP dependencies.
type Server struct {
	importer *planimport.Importer
	store    *store.Store
	limiter  *shield.RateLimiter
	audit    *audit.Logger
	started  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAudit records uploads, exports and plan updates in l and serves
// GET /api/audit.
func WithAudit(l *audit.Logger) Option {
	return func(s *Server) { s.audit = l }
}

// New creates a Server. A zero rate limit config leaves uploads unthrottled.
func New(im *planimport.Importer, st *store.Store, rl shield.RateLimitConfig, opts ...Option) *Server {
	s := &Server{
		importer: im,
		store:    st,
		limiter:  shield.NewRateLimiter(rl),
		started:  time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Limiter exposes the upload rate limiter so the caller can start its GC.
func (s *Server) Limiter() *shield.RateLimiter { return s.limiter }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(idgen.Request) {
		r.Use(mw)
	}

	r.Get("/health", s.health)

	r.Route("/api/files", func(r chi.Router) {
		r.Get("/supported-formats", s.supportedFormats)
		r.With(shield.MaxBody(s.importer.MaxFileSize()), s.limiter.Middleware).Post("/upload", s.upload)
		r.Get("/export/{format}", s.export)
	})

	r.Route("/api/plans", func(r chi.Router) {
		r.Get("/", s.listPlans)
		r.Get("/stats/{date}", s.dayStats)
		r.Get("/history", s.history)
		r.Get("/history/stats", s.historyStats)
		r.Patch("/{id}", s.updatePlan)
		r.Delete("/{id}", s.deletePlan)
	})

	r.Get("/api/imports/{id}", s.getImport)
	if s.audit != nil {
		r.Get("/api/audit", s.listAudit)
	}
	return r
}

// errorBody is the JSON shape of every failure.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Errors  any    `json:"errors,omitempty"`
	Report  any    `json:"report,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, title, message string) {
	writeJSON(w, status, errorBody{Error: title, Message: message, Code: code})
}
