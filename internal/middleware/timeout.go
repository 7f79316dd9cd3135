package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	defaultRequestTimeout = 30 * time.Second
	codeRequestTimeout    = "REQUEST_TIMEOUT"
)

// Timeout bounds handler time, including outbound SMTP which shares the request context.
// A timed out request gets a 503 in the JSON error envelope.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	body, _ := json.Marshal(errorEnvelope(codeRequestTimeout, "request timed out"))

	return func(next http.Handler) http.Handler {
		timed := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// TimeoutHandler writes its body without a content type.
			w.Header().Set("Content-Type", "application/json")
			timed.ServeHTTP(w, r)
		})
	}
}
