package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"zhsystem/internal/model"
	"zhsystem/pkg/apierror"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// MaxAuditPage bounds the page number so the offset stays well inside int range.
const MaxAuditPage = 1_000_000

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type AuditService struct {
	store AuditStore
	now   func() time.Time
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Log records the outcome of an action. Storage failures are logged, never returned.
func (s *AuditService) Log(ctx context.Context, action string, actor model.AuditActor, cause error) {
	if s == nil {
		return
	}

	entry := model.AuditEntry{
		Action:     action,
		OccurredAt: s.now().Format(time.RFC3339Nano),
		Actor:      actor,
		Status:     AuditStatusSuccess,
	}
	if cause != nil {
		entry.Status = AuditStatusFailure
		entry.Error = cause.Error()
	}

	// The entry outlives a cancelled request.
	if err := s.store.Log(context.WithoutCancel(ctx), entry); err != nil {
		slog.ErrorContext(ctx, "failed to write audit entry", "action", action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if _, err := parseOptionalAuditTime(query.From); err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'from' datetime format")
	}
	if _, err := parseOptionalAuditTime(query.To); err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'to' datetime format")
	}
	if query.Page > MaxAuditPage {
		return nil, model.Meta{}, apierror.BadRequest("page is out of range")
	}

	return s.store.Query(ctx, query)
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	value, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
