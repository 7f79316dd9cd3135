//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"zhsystem/internal/auth"
	"zhsystem/internal/config"
	"zhsystem/internal/database"
	"zhsystem/internal/handler"
	"zhsystem/internal/middleware"
	"zhsystem/internal/model"
	"zhsystem/internal/repository"
	"zhsystem/internal/router"
	"zhsystem/internal/service"
)

const (
	testSecret = "integration-secret-0123456789abcdef"
	adminEmail = "admin@zhsystem.dev"
	adminPass  = "AdminPass123!"
)

// startPostgres returns a migrated database on a throwaway container.
func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("zhsystem_test"),
		postgres.WithUsername("zhsystem"),
		postgres.WithPassword("zhsystem"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, connStr, 5, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema())
	return db
}

type sentMail struct {
	kind  string
	to    string
	token string
}

// outbox records the raw tokens the service would have emailed.
type outbox struct {
	mu   sync.Mutex
	sent []sentMail
}

func (o *outbox) SendVerification(_ context.Context, to string, _ string, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentMail{kind: "verification", to: to, token: token})
	return nil
}

func (o *outbox) SendPasswordReset(_ context.Context, to string, _ string, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentMail{kind: "reset", to: to, token: token})
	return nil
}

func (o *outbox) last(t *testing.T, kind string, to string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].kind == kind && o.sent[i].to == to {
			return o.sent[i].token
		}
	}
	t.Fatalf("no %s mail sent to %s", kind, to)
	return ""
}

type googleStub map[string]model.FederatedIdentity

func (g googleStub) Verify(_ context.Context, token string) (model.FederatedIdentity, error) {
	identity, ok := g[token]
	if !ok {
		return model.FederatedIdentity{}, model.ErrIdentityRejected
	}
	return identity, nil
}

type testEnv struct {
	server *httptest.Server
	mail   *outbox
	db     *database.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := startPostgres(t)
	pool := db.Pool
	issuer := auth.NewIssuer(auth.IssuerConfig{
		Secret:     testSecret,
		Issuer:     "zhsystem",
		Audience:   "zhsystem-clients",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	mail := &outbox{}

	authService := service.NewAuthService(service.AuthDeps{
		Users:  repository.NewUserRepository(pool),
		Tokens: repository.NewTokenRepository(pool),
		Roles:  repository.NewRoleRepository(pool),
		Tx:     database.NewTransactor(pool),
		Hasher: auth.NewBcryptHasher(bcrypt.MinCost),
		Issuer: issuer,
		Mailer: mail,
		Identity: googleStub{
			"google-ok": {Subject: "g-1", Email: "Federated@Example.com", Name: "Fed User"},
		},
	})
	require.NoError(t, authService.EnsureAdmin(context.Background(), adminEmail, adminPass))

	auditService := service.NewAuditService(repository.NewAuditRepository(pool))
	cfg := &config.Config{
		RequestTimeout:   10 * time.Second,
		RateLimitRPM:     10000,
		AuthRateLimitRPM: 10000,
	}

	server := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(issuer), router.Handlers{
		Auth:   handler.NewAuthHandler(authService, auditService),
		Audit:  handler.NewAuditHandler(auditService),
		Health: handler.NewHealthHandler(db),
	}))
	t.Cleanup(server.Close)

	return &testEnv{server: server, mail: mail, db: db}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

func (e *testEnv) call(t *testing.T, method string, path string, body any, token string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func (e *testEnv) login(t *testing.T, email string, password string) model.TokenPair {
	t.Helper()
	status, env := e.call(t, http.MethodPost, "/api/auth/login", model.LoginRequest{Email: email, Password: password}, "")
	require.Equal(t, http.StatusOK, status, "login failed: %+v", env.Error)

	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	return pair
}

func (e *testEnv) registerVerified(t *testing.T, email string, password string) {
	t.Helper()
	status, _ := e.call(t, http.MethodPost, "/api/auth/register",
		model.RegisterRequest{Email: email, Username: "user", Password: password}, "")
	require.Equal(t, http.StatusOK, status)

	token := e.mail.last(t, "verification", model.NormalizeEmail(email))
	status, _ = e.call(t, http.MethodGet, "/api/auth/verify-email?token="+token, nil, "")
	require.Equal(t, http.StatusOK, status)
}
