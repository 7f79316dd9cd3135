package service

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"zhsystem/internal/auth"
	"zhsystem/internal/model"
)

// memStore backs the user, token and role stores. InTx snapshots it and
// restores the snapshot when the unit of work fails.
type memStore struct {
	mu          sync.Mutex
	users       map[string]model.User
	tokens      map[string]model.RefreshToken
	userRoles   map[string][]int
	commits     int
	rollbacks   int
	lockedReads int
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]model.User{},
		tokens:    map[string]model.RefreshToken{},
		userRoles: map[string][]int{},
	}
}

type memTx struct{ s *memStore }

type inTxKey struct{}

func (t memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}

	t.s.mu.Lock()
	users := maps.Clone(t.s.users)
	tokens := maps.Clone(t.s.tokens)
	roles := maps.Clone(t.s.userRoles)
	t.s.mu.Unlock()

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		t.s.mu.Lock()
		t.s.users, t.s.tokens, t.s.userRoles = users, tokens, roles
		t.s.rollbacks++
		t.s.mu.Unlock()
		return err
	}

	t.s.mu.Lock()
	t.s.commits++
	t.s.mu.Unlock()
	return nil
}

type memUsers struct{ s *memStore }

func (u memUsers) FindByID(_ context.Context, id string) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (u memUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	return u.find(func(user model.User) bool { return strings.ToLower(user.Email) == email })
}

func (u memUsers) FindByEmailForUpdate(ctx context.Context, email string) (model.User, error) {
	u.s.mu.Lock()
	u.s.lockedReads++
	u.s.mu.Unlock()
	return u.FindByEmail(ctx, email)
}

func (u memUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := u.FindByEmail(ctx, email)
	return err == nil, nil
}

func (u memUsers) FindByVerificationHash(_ context.Context, hash string, now time.Time) (model.User, error) {
	return u.find(func(user model.User) bool {
		return user.EmailVerificationHash != nil && *user.EmailVerificationHash == hash &&
			user.EmailVerificationExpires != nil && user.EmailVerificationExpires.After(now)
	})
}

func (u memUsers) FindByResetHash(_ context.Context, hash string, now time.Time) (model.User, error) {
	return u.find(func(user model.User) bool {
		return user.PasswordResetHash != nil && *user.PasswordResetHash == hash &&
			user.PasswordResetExpires != nil && user.PasswordResetExpires.After(now)
	})
}

func (u memUsers) Create(ctx context.Context, user model.User) error {
	if exists, _ := u.ExistsByEmail(ctx, strings.ToLower(user.Email)); exists {
		return model.ErrUserAlreadyExists
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	u.s.users[user.ID] = user
	return nil
}

func (u memUsers) Update(_ context.Context, user model.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[user.ID]; !ok {
		return model.ErrUserNotFound
	}
	u.s.users[user.ID] = user
	return nil
}

func (u memUsers) find(match func(model.User) bool) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if match(user) {
			return user, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

// staleUsers misses the first FindByEmail lookups, as a reader racing a
// concurrent insert of the same email would.
type staleUsers struct {
	memUsers
	misses int
}

func (u *staleUsers) FindByEmail(ctx context.Context, email string) (model.User, error) {
	if u.misses > 0 {
		u.misses--
		return model.User{}, model.ErrUserNotFound
	}
	return u.memUsers.FindByEmail(ctx, email)
}

type memTokens struct{ s *memStore }

func (m memTokens) Store(_ context.Context, t model.RefreshToken) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.tokens[t.ID] = t
	return nil
}

func (m memTokens) FindByToken(_ context.Context, token string) (model.RefreshToken, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.tokens {
		if t.Token == token {
			return t, nil
		}
	}
	return model.RefreshToken{}, model.ErrTokenNotFound
}

func (m memTokens) Revoke(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tokens[id]
	if !ok || t.Revoked {
		return model.ErrTokenRevoked
	}
	t.Revoked = true
	m.s.tokens[id] = t
	return nil
}

func (m memTokens) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, t := range m.s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			m.s.tokens[id] = t
			n++
		}
	}
	return n, nil
}

type memRoles struct{ s *memStore }

func (r memRoles) Assign(_ context.Context, userID string, roleID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !slices.Contains(r.s.userRoles[userID], roleID) {
		r.s.userRoles[userID] = append(r.s.userRoles[userID], roleID)
	}
	return nil
}

func (r memRoles) RolesForUser(_ context.Context, userID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := slices.Sorted(slices.Values(r.s.userRoles[userID]))
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		switch id {
		case model.RoleAdminID:
			names = append(names, model.RoleAdmin)
		case model.RoleUserID:
			names = append(names, model.RoleUser)
		}
	}
	return names, nil
}

// plainHasher keeps tests fast; bcrypt itself is covered in package auth.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(hash string, password string) auth.VerifyResult {
	if hash == "hashed:"+password {
		return auth.VerifySuccess
	}
	return auth.VerifyFailed
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendVerification(ctx context.Context, to string, name string, token string) error {
	args := m.Called(ctx, to, name, token)
	return args.Error(0)
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, to string, name string, token string) error {
	args := m.Called(ctx, to, name, token)
	return args.Error(0)
}

type stubIdentity struct {
	identity model.FederatedIdentity
	err      error
}

func (s stubIdentity) Verify(context.Context, string) (model.FederatedIdentity, error) {
	return s.identity, s.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *AuthService
	issuer *auth.Issuer
	store  *memStore
	mailer *mockMailer
	clock  *clock
}

func newFixture(identity IdentityVerifier) *fixture {
	store := newMemStore()
	mailer := &mockMailer{}
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	if identity == nil {
		identity = stubIdentity{err: model.ErrIdentityRejected}
	}

	issuer := auth.NewIssuer(auth.IssuerConfig{
		Secret:     "0123456789abcdef0123456789abcdef",
		Issuer:     "zhsystem",
		Audience:   "zhsystem-clients",
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clk.Now,
	})

	svc := NewAuthService(AuthDeps{
		Users:    memUsers{store},
		Tokens:   memTokens{store},
		Roles:    memRoles{store},
		Tx:       memTx{store},
		Hasher:   plainHasher{},
		Issuer:   issuer,
		Mailer:   mailer,
		Identity: identity,
		Now:      clk.Now,
	})
	return &fixture{svc: svc, issuer: issuer, store: store, mailer: mailer, clock: clk}
}

// seedUser stores a user directly, bypassing Register.
func (f *fixture) seedUser(email string, password string, verified bool) model.User {
	now := f.clock.Now()
	user := model.User{
		ID:            "user-" + email,
		Email:         email,
		Username:      strings.Split(email, "@")[0],
		PasswordHash:  "hashed:" + password,
		EmailVerified: verified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.store.users[user.ID] = user
	f.store.userRoles[user.ID] = []int{model.RoleUserID}
	return user
}

func (f *fixture) user(id string) model.User {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.users[id]
}
