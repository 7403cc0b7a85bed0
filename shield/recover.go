package shield

import (
	"net/http"
	"runtime/debug"
)

// Recover turns a handler panic into a 500 JSON response carrying the
// INTERNAL_SERVER_ERROR code.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			GetLogger(r.Context()).Error("handler panic", "panic", rec, "stack", string(debug.Stack()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "internal server error",
				"message": "unexpected failure while handling the request",
				"code":    "INTERNAL_SERVER_ERROR",
			})
		}()
		next.ServeHTTP(w, r)
	})
}
