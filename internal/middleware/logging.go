package middleware

import (
	"log"
	"net/http"
	"time"
)

// quietPaths are polled by health checks and scrapers and only logged on failure.
var quietPaths = map[string]bool{
	"/api/v1/health": true,
	"/api/v1/ready":  true,
	"/metrics":       true,
}

// Logging logs one line per request with the caller's employee ID.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if quietPaths[r.URL.Path] && wrapped.statusCode < http.StatusBadRequest {
			return
		}

		employee := r.Header.Get(EmployeeIDHeader)
		if employee == "" {
			employee = "-"
		}
		log.Printf("[HTTP] %s %s %d %dB %s emp=%s rid=%s",
			r.Method, r.URL.Path, wrapped.statusCode, wrapped.written,
			time.Since(start).Round(time.Microsecond), employee, w.Header().Get(RequestIDHeader))
	})
}

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}
