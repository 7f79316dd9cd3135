package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zhsystem/internal/metrics"
	"zhsystem/internal/model"
	"zhsystem/pkg/apierror"
)

const (
	emailVerification  = "verification"
	emailPasswordReset = "password_reset"
)

// run times and logs a single auth command. Cooldown hits log at info level,
// other client errors at warn and anything else at error.
func (s *AuthService) run(ctx context.Context, command string, userID string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	metrics.RecordCommand(command, err, elapsed)

	attrs := []any{"command", command, "duration", elapsed}
	if userID != "" {
		attrs = append(attrs, "user_id", userID)
	}

	switch {
	case err == nil:
		slog.DebugContext(ctx, "auth command handled", attrs...)
	case apierror.HasCode(err, apierror.CodeRateLimited):
		slog.InfoContext(ctx, "auth command throttled", attrs...)
	case isClientError(err):
		slog.WarnContext(ctx, "auth command rejected", append(attrs, "error", err)...)
	default:
		slog.ErrorContext(ctx, "auth command failed", append(attrs, "error", err)...)
	}
	return err
}

func (s *AuthService) sendVerification(ctx context.Context, user model.User, token string) error {
	err := s.mailer.SendVerification(ctx, user.Email, user.Username, token)
	metrics.RecordEmail(emailVerification, err)
	return err
}

func (s *AuthService) sendPasswordReset(ctx context.Context, user model.User, token string) error {
	err := s.mailer.SendPasswordReset(ctx, user.Email, user.Username, token)
	metrics.RecordEmail(emailPasswordReset, err)
	return err
}

func isClientError(err error) bool {
	var apiErr *apierror.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatus < 500
}
