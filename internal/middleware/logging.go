package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"zhsystem/internal/model"
)

const (
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 64
	maxCapturedBody    = 4 << 10
)

// Query parameters that carry one-time secrets and must never reach the logs.
var secretParams = []string{"token", "id_token", "refresh_token"}

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logging assigns a request id, echoes it back, and writes one access log line per request.
// Error responses are logged with the envelope's code and message.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK, captureErrors: true}

		next.ServeHTTP(rec, r)

		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			slog.String("client_ip", ClientIP(r)),
		}

		level := slog.LevelInfo
		if rec.status >= http.StatusBadRequest {
			level = slog.LevelWarn
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", redactQuery(r.URL.Query())))
			}
			attrs = append(attrs, errorAttrs(rec.body.Bytes())...)
		}

		slog.LogAttrs(ctx, level, "request", attrs...)
	})
}

func redactQuery(values url.Values) string {
	for _, key := range secretParams {
		if values.Has(key) {
			values.Set(key, "REDACTED")
		}
	}
	return values.Encode()
}

func errorAttrs(body []byte) []slog.Attr {
	if len(body) == 0 {
		return nil
	}

	var parsed model.APIResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == nil {
		return nil
	}

	attrs := []slog.Attr{
		slog.String("error_code", parsed.Error.Code),
		slog.String("error_message", parsed.Error.Message),
	}
	if parsed.Error.Details != "" {
		attrs = append(attrs, slog.String("error_details", parsed.Error.Details))
	}
	return attrs
}

// responseRecorder tracks the status code and, when captureErrors is set, the
// first few KiB of error bodies.
type responseRecorder struct {
	http.ResponseWriter
	status        int
	wroteHeader   bool
	captureErrors bool
	body          bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.status = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.captureErrors && rw.status >= http.StatusBadRequest && rw.body.Len() < maxCapturedBody {
		rw.body.Write(b[:min(len(b), maxCapturedBody-rw.body.Len())])
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
