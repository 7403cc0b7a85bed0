// Package shield provides the HTTP middleware stack of the plan import API:
// security headers, request IDs with a per-request logger, panic recovery,
// upload body limits and per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(idgen.Request) {
//	    r.Use(mw)
//	}
//	r.With(shield.MaxBody(cfg.MaxFileBytes()), limiter.Middleware).Post("/api/files/upload", h)
package shield

import (
	"encoding/json"
	"net/http"

	"github.com/fx006/diet-train-app/idgen"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the middleware applied to every route, in order:
// HeadToGet, SecurityHeaders, RequestID, Recover.
func DefaultStack(gen idgen.Generator) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		RequestID(gen),
		Recover,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HeadToGet serves HEAD through the GET routes; net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
