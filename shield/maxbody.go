package shield

import "net/http"

// multipartSlack covers multipart boundaries and part headers around the file.
const multipartSlack = 64 * 1024

// MaxBody returns middleware that caps the request body at maxBytes plus room
// for multipart framing. Reads past the cap fail with *http.MaxBytesError.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartSlack)
			next.ServeHTTP(w, r)
		})
	}
}
