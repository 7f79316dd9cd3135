package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"zhsystem/internal/model"
)

type mockAuditQuerier struct {
	mock.Mock
}

func (m *mockAuditQuerier) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]model.AuditEntry), args.Get(1).(model.Meta), args.Error(2)
}

func TestAuditHandler_List(t *testing.T) {
	svc := &mockAuditQuerier{}
	svc.On("Query", mock.Anything, model.AuditQuery{Action: "auth.login", Status: "failure", Page: 2, Limit: 50}).
		Return([]model.AuditEntry{{Action: "auth.login", OccurredAt: "2026-03-01T09:00:00Z", Status: "failure"}},
			model.Meta{Page: 2, Limit: 50, Total: 51, TotalPages: 2}, nil)

	rec := do(NewAuditHandler(svc).List, http.MethodGet, "/api/audit?action=auth.login&status=failure&page=2&limit=oops", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"success": true,
		"data": {"entries": [{"action":"auth.login","occurred_at":"2026-03-01T09:00:00Z","actor":{},"status":"failure"}]},
		"meta": {"page":2,"limit":50,"total":51,"total_pages":2}
	}`, rec.Body.String())
}

func TestParseIntOrDefault(t *testing.T) {
	assert.Equal(t, 5, parseIntOrDefault(" 5 ", 1))
	assert.Equal(t, 1, parseIntOrDefault("", 1))
	assert.Equal(t, 1, parseIntOrDefault("x", 1))
}
