package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"zhsystem/internal/model"
)

type stubValidator struct {
	claims *model.AuthClaims
	err    error
	got    string
}

func (s *stubValidator) ValidateAccessToken(token string) (*model.AuthClaims, error) {
	s.got = token
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	claims := &model.AuthClaims{UserID: "u-1", Roles: []string{"User"}}

	tests := []struct {
		name       string
		header     string
		validator  *stubValidator
		wantStatus int
		wantToken  string
	}{
		{name: "missing header", validator: &stubValidator{}, wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", validator: &stubValidator{}, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", validator: &stubValidator{err: errors.New("nope")}, wantStatus: http.StatusUnauthorized, wantToken: "bad"},
		{name: "valid token any case scheme", header: "bearer good", validator: &stubValidator{claims: claims}, wantStatus: http.StatusOK, wantToken: "good"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			NewAuthMiddleware(tt.validator).RequireAuth(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantToken, tt.validator.got)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u-1", seen)
			} else {
				assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	mw := NewAuthMiddleware(&stubValidator{})
	handler := mw.RequireRoles("Admin")(okHandler())

	serve := func(claims *model.AuthClaims) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
		if claims != nil {
			req = req.WithContext(WithClaims(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(&model.AuthClaims{Roles: []string{"User"}}).Code)
	assert.Equal(t, http.StatusOK, serve(&model.AuthClaims{Roles: []string{"User", "admin"}}).Code)
}
