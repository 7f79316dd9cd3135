package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zhsystem/internal/metrics"
)

// Metrics labels requests by chi route pattern so path parameters and
// unknown paths do not explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.RecordHTTP(r.Method, route, rec.status, time.Since(started))
	})
}
