package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhsystem/pkg/apierror"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRunLogLevels(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		level string
		msg   string
	}{
		{"success", nil, "DEBUG", "auth command handled"},
		{"cooldown", apierror.RateLimited(30), "INFO", "auth command throttled"},
		{"client error", apierror.Unauthorized("nope"), "WARN", "auth command rejected"},
		{"server error", errors.New("db down"), "ERROR", "auth command failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t)
			svc := &AuthService{}

			err := svc.run(context.Background(), "forgot_password", "u-1", func(context.Context) error { return tc.err })
			assert.Equal(t, tc.err, err)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tc.level, entry["level"])
			assert.Equal(t, tc.msg, entry["msg"])
			assert.Equal(t, "forgot_password", entry["command"])
			assert.Equal(t, "u-1", entry["user_id"])
		})
	}
}
