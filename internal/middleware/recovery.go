package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"keysaccounting-api/internal/metrics"
	"keysaccounting-api/pkg/apierror"
)

// Recovery turns a handler panic into a 500 response and a logged stack.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			metrics.HandlerPanics.Inc()
			log.Printf("[Recovery] PANIC %s %s rid=%s: %v\n%s",
				r.Method, r.URL.Path, w.Header().Get(RequestIDHeader), rec, debug.Stack())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write(apierror.InternalError("internal server error").ToJSON())
		}()

		next.ServeHTTP(w, r)
	})
}
