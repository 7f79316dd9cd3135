package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"zhsystem/internal/auth"
	"zhsystem/internal/model"
	"zhsystem/pkg/apierror"
)

const (
	VerificationTokenTTL  = 24 * time.Hour
	ResetTokenTTL         = 30 * time.Minute
	SecurityEmailCooldown = 5 * time.Minute
)

const (
	msgEmailTaken          = "This Email Already Registered."
	msgInvalidCredentials  = "Invalid credentials"
	msgEmailNotVerified    = "Email not verified"
	msgInvalidRefreshToken = "Invalid refresh token"
	msgUserNotExist        = "User Not Exist"
	msgNotAuthenticated    = "User not authenticated"
	msgRefreshNotFound     = "Refresh token not found"
	msgInvalidToken        = "Invalid or expired token."
	msgInvalidGoogleToken  = "Invalid Google token"
	msgPasswordTooLong     = "Password must be at most 72 bytes"

	MsgRegistered           = "Registration successful. Please check your email."
	MsgRegisteredMailFailed = "Registration successful, but we couldn't send the verification email. Please try resending it from your profile."
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByEmailForUpdate(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByVerificationHash(ctx context.Context, hash string, now time.Time) (model.User, error)
	FindByResetHash(ctx context.Context, hash string, now time.Time) (model.User, error)
	Create(ctx context.Context, u model.User) error
	Update(ctx context.Context, u model.User) error
}

type TokenStore interface {
	Store(ctx context.Context, t model.RefreshToken) error
	FindByToken(ctx context.Context, token string) (model.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

type RoleStore interface {
	Assign(ctx context.Context, userID string, roleID int) error
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) auth.VerifyResult
}

type TokenIssuer interface {
	GenerateAccessToken(user model.User, roles []string) (string, time.Time, error)
	CreateRefreshToken(userID string) (model.RefreshToken, error)
	AccessTTL() time.Duration
}

type Mailer interface {
	SendVerification(ctx context.Context, to string, name string, token string) error
	SendPasswordReset(ctx context.Context, to string, name string, token string) error
}

type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (model.FederatedIdentity, error)
}

type AuthDeps struct {
	Users    UserStore
	Tokens   TokenStore
	Roles    RoleStore
	Tx       Transactor
	Hasher   PasswordHasher
	Issuer   TokenIssuer
	Mailer   Mailer
	Identity IdentityVerifier
	Now      func() time.Time
}

type AuthService struct {
	users    UserStore
	tokens   TokenStore
	roles    RoleStore
	tx       Transactor
	hasher   PasswordHasher
	issuer   TokenIssuer
	mailer   Mailer
	identity IdentityVerifier
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(deps AuthDeps) *AuthService {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AuthService{
		users:    deps.Users,
		tokens:   deps.Tokens,
		roles:    deps.Roles,
		tx:       deps.Tx,
		hasher:   deps.Hasher,
		issuer:   deps.Issuer,
		mailer:   deps.Mailer,
		identity: deps.Identity,
		now:      now,
	}
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.RegisterResult, error) {
	email := model.NormalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)
	if err := validateRegistration(email, username, req.Password); err != nil {
		return model.RegisterResult{}, err
	}

	var user model.User
	var rawToken string
	err := s.run(ctx, "register", "", func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			exists, err := s.users.ExistsByEmail(ctx, email)
			if err != nil {
				return err
			}
			if exists {
				return apierror.Validation(msgEmailTaken, "email")
			}

			hash, err := s.hasher.Hash(req.Password)
			if err != nil {
				return err
			}

			token, digest, err := auth.GenerateSecret()
			if err != nil {
				return err
			}

			now := s.now()
			expires := now.Add(VerificationTokenTTL)
			user = model.User{
				ID:                       uuid.NewString(),
				Email:                    email,
				Username:                 username,
				PasswordHash:             hash,
				EmailVerificationHash:    &digest,
				EmailVerificationExpires: &expires,
				CreatedAt:                now,
				UpdatedAt:                now,
			}
			if err := s.users.Create(ctx, user); err != nil {
				if errors.Is(err, model.ErrUserAlreadyExists) {
					return apierror.Validation(msgEmailTaken, "email")
				}
				return err
			}
			if err := s.roles.Assign(ctx, user.ID, model.RoleUserID); err != nil {
				return err
			}

			rawToken = token
			return nil
		})
	})
	if err != nil {
		return model.RegisterResult{}, err
	}

	// The account is committed; a mail failure only changes the message.
	if err := s.sendVerification(ctx, user, rawToken); err != nil {
		slog.ErrorContext(ctx, "user registered but verification email failed",
			"user_id", user.ID, "email", user.Email, "error", err)
		return model.RegisterResult{Message: MsgRegisteredMailFailed}, nil
	}

	return model.RegisterResult{Message: MsgRegistered}, nil
}

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.TokenPair, error) {
	email := model.NormalizeEmail(req.Email)

	var pair model.TokenPair
	err := s.run(ctx, "login", "", func(ctx context.Context) error {
		user, err := s.users.FindByEmail(ctx, email)
		if errors.Is(err, model.ErrUserNotFound) {
			// Burn a comparison so unknown emails take as long as wrong passwords.
			s.hasher.Verify(s.placeholderHash(), req.Password)
			return apierror.Unauthorized(msgInvalidCredentials)
		}
		if err != nil {
			return err
		}

		if s.hasher.Verify(user.PasswordHash, req.Password) != auth.VerifySuccess {
			return apierror.Unauthorized(msgInvalidCredentials)
		}
		if !user.EmailVerified {
			return apierror.Forbidden(msgEmailNotVerified)
		}

		return s.tx.InTx(ctx, func(ctx context.Context) error {
			pair, err = s.issue(ctx, user)
			return err
		})
	})
	return pair, err
}

func (s *AuthService) Refresh(ctx context.Context, req model.RefreshRequest) (model.TokenPair, error) {
	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		return model.TokenPair{}, apierror.BadRequest(msgInvalidRefreshToken)
	}

	var pair model.TokenPair
	err := s.run(ctx, "refresh", "", func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			stored, err := s.tokens.FindByToken(ctx, presented)
			if errors.Is(err, model.ErrTokenNotFound) {
				return apierror.BadRequest(msgInvalidRefreshToken)
			}
			if err != nil {
				return err
			}
			if !stored.Active(s.now()) {
				return apierror.BadRequest(msgInvalidRefreshToken)
			}

			user, err := s.users.FindByID(ctx, stored.UserID)
			if errors.Is(err, model.ErrUserNotFound) {
				return apierror.NotFound(msgUserNotExist)
			}
			if err != nil {
				return err
			}

			// Losing a concurrent rotation surfaces here as ErrTokenRevoked.
			if err := s.tokens.Revoke(ctx, stored.ID); err != nil {
				if errors.Is(err, model.ErrTokenRevoked) {
					return apierror.BadRequest(msgInvalidRefreshToken)
				}
				return err
			}

			pair, err = s.issue(ctx, user)
			return err
		})
	})
	return pair, err
}

// Revoke is idempotent: revoking an already revoked token succeeds.
func (s *AuthService) Revoke(ctx context.Context, userID string, refreshToken string) error {
	if userID == "" {
		return apierror.Unauthorized(msgNotAuthenticated)
	}
	presented := strings.TrimSpace(refreshToken)

	return s.run(ctx, "revoke", userID, func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			stored, err := s.tokens.FindByToken(ctx, presented)
			if errors.Is(err, model.ErrTokenNotFound) || (err == nil && stored.UserID != userID) {
				return apierror.NotFound(msgRefreshNotFound)
			}
			if err != nil {
				return err
			}
			if stored.Revoked {
				return nil
			}

			if err := s.tokens.Revoke(ctx, stored.ID); err != nil && !errors.Is(err, model.ErrTokenRevoked) {
				return err
			}
			return nil
		})
	})
}

// Logout only accepts an active token owned by the caller.
func (s *AuthService) Logout(ctx context.Context, userID string, refreshToken string) error {
	presented := strings.TrimSpace(refreshToken)

	return s.run(ctx, "logout", userID, func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			stored, err := s.tokens.FindByToken(ctx, presented)
			if errors.Is(err, model.ErrTokenNotFound) {
				return apierror.BadRequest(msgInvalidRefreshToken)
			}
			if err != nil {
				return err
			}
			if userID == "" || stored.UserID != userID || stored.Revoked {
				return apierror.BadRequest(msgInvalidRefreshToken)
			}

			if err := s.tokens.Revoke(ctx, stored.ID); err != nil {
				if errors.Is(err, model.ErrTokenRevoked) {
					return apierror.BadRequest(msgInvalidRefreshToken)
				}
				return err
			}
			return nil
		})
	})
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apierror.BadRequest(msgInvalidToken)
	}

	return s.run(ctx, "verify_email", "", func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			now := s.now()
			user, err := s.users.FindByVerificationHash(ctx, auth.HashSecret(token), now)
			if errors.Is(err, model.ErrUserNotFound) {
				return apierror.BadRequest(msgInvalidToken)
			}
			if err != nil {
				return err
			}

			user.EmailVerified = true
			user.EmailVerificationHash = nil
			user.EmailVerificationExpires = nil
			user.UpdatedAt = now
			return s.users.Update(ctx, user)
		})
	})
}

// ForgotPassword returns nil for unknown emails. The reset token, the cooldown
// stamp and the email succeed or fail together. The user row stays locked
// meanwhile, so a concurrent request waits and then sees the cooldown.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.EmailRequest) error {
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		return apierror.Validation("Email is required", "email")
	}

	return s.run(ctx, "forgot_password", "", func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			user, err := s.users.FindByEmailForUpdate(ctx, email)
			if errors.Is(err, model.ErrUserNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			now := s.now()
			if wait := cooldownRemaining(user, now); wait > 0 {
				return apierror.RateLimited(wait)
			}

			token, digest, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			expires := now.Add(ResetTokenTTL)
			user.PasswordResetHash = &digest
			user.PasswordResetExpires = &expires
			user.LastSecurityEmailSentAt = &now
			user.UpdatedAt = now
			if err := s.users.Update(ctx, user); err != nil {
				return err
			}

			return s.sendPasswordReset(ctx, user, token)
		})
	})
}

// ResetPassword also revokes every active refresh token of the user.
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return apierror.BadRequest(msgInvalidToken)
	}
	if strings.TrimSpace(req.NewPassword) == "" {
		return apierror.Validation("New password is required", "new_password")
	}
	if len(req.NewPassword) > auth.MaxPasswordBytes {
		return apierror.Validation(msgPasswordTooLong, "new_password")
	}

	return s.run(ctx, "reset_password", "", func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			now := s.now()
			user, err := s.users.FindByResetHash(ctx, auth.HashSecret(token), now)
			if errors.Is(err, model.ErrUserNotFound) {
				return apierror.BadRequest(msgInvalidToken)
			}
			if err != nil {
				return err
			}

			hash, err := s.hasher.Hash(req.NewPassword)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
			user.PasswordResetHash = nil
			user.PasswordResetExpires = nil
			user.UpdatedAt = now
			if err := s.users.Update(ctx, user); err != nil {
				return err
			}

			revoked, err := s.tokens.RevokeAllForUser(ctx, user.ID)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "password reset", "user_id", user.ID, "revoked_tokens", revoked)
			return nil
		})
	})
}

// ResendVerificationEmail returns nil for unknown or already verified emails.
func (s *AuthService) ResendVerificationEmail(ctx context.Context, req model.EmailRequest) error {
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		return apierror.Validation("Email is required", "email")
	}

	return s.run(ctx, "resend_verification", "", func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			user, err := s.users.FindByEmailForUpdate(ctx, email)
			if errors.Is(err, model.ErrUserNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if user.EmailVerified {
				return nil
			}

			now := s.now()
			if wait := cooldownRemaining(user, now); wait > 0 {
				return apierror.RateLimited(wait)
			}

			token, digest, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			expires := now.Add(VerificationTokenTTL)
			user.EmailVerificationHash = &digest
			user.EmailVerificationExpires = &expires
			user.LastSecurityEmailSentAt = &now
			user.UpdatedAt = now
			if err := s.users.Update(ctx, user); err != nil {
				return err
			}

			return s.sendVerification(ctx, user, token)
		})
	})
}

// GoogleLogin signs in with a Google ID token, creating a verified account on first use.
// Existing accounts are signed in unchanged.
func (s *AuthService) GoogleLogin(ctx context.Context, req model.GoogleLoginRequest) (model.TokenPair, error) {
	var pair model.TokenPair
	err := s.run(ctx, "google_login", "", func(ctx context.Context) error {
		identity, err := s.identity.Verify(ctx, req.IDToken)
		if err != nil {
			if errors.Is(err, model.ErrIdentityRejected) {
				return apierror.Unauthorized(msgInvalidGoogleToken)
			}
			return err
		}

		email := model.NormalizeEmail(identity.Email)
		signIn := func(ctx context.Context) error {
			user, err := s.users.FindByEmail(ctx, email)
			if errors.Is(err, model.ErrUserNotFound) {
				user, err = s.createFederatedUser(ctx, email, identity.Name)
			}
			if err != nil {
				return err
			}

			pair, err = s.issue(ctx, user)
			return err
		}

		err = s.tx.InTx(ctx, signIn)
		if errors.Is(err, model.ErrUserAlreadyExists) {
			// A concurrent first sign-in won the insert. Retry in a new transaction.
			err = s.tx.InTx(ctx, signIn)
		}
		return err
	})
	return pair, err
}

func (s *AuthService) Me(ctx context.Context, userID string) (model.AuthUser, error) {
	if userID == "" {
		return model.AuthUser{}, apierror.Unauthorized(msgNotAuthenticated)
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.AuthUser{}, apierror.NotFound(msgUserNotExist)
	}
	if err != nil {
		return model.AuthUser{}, err
	}

	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return model.AuthUser{}, err
	}

	return model.AuthUser{
		ID:            user.ID,
		Email:         user.Email,
		Username:      user.Username,
		EmailVerified: user.EmailVerified,
		Roles:         roles,
	}, nil
}

// EnsureAdmin creates a verified Admin account for email unless one already exists.
// It is a no-op when email is empty.
func (s *AuthService) EnsureAdmin(ctx context.Context, email string, password string) error {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		exists, err := s.users.ExistsByEmail(ctx, email)
		if err != nil || exists {
			return err
		}

		hash, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}

		now := s.now()
		admin := model.User{
			ID:            uuid.NewString(),
			Email:         email,
			Username:      localPart(email),
			PasswordHash:  hash,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.users.Create(ctx, admin); err != nil {
			return err
		}
		for _, roleID := range []int{model.RoleAdminID, model.RoleUserID} {
			if err := s.roles.Assign(ctx, admin.ID, roleID); err != nil {
				return err
			}
		}

		slog.InfoContext(ctx, "admin account created", "user_id", admin.ID, "email", email)
		return nil
	})
}

func (s *AuthService) createFederatedUser(ctx context.Context, email string, name string) (model.User, error) {
	// The account is only reachable through Google until the owner resets the password.
	secret, _, err := auth.GenerateSecret()
	if err != nil {
		return model.User{}, err
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return model.User{}, err
	}

	username := strings.TrimSpace(name)
	if username == "" {
		username = localPart(email)
	}

	now := s.now()
	user := model.User{
		ID:            uuid.NewString(),
		Email:         email,
		Username:      username,
		PasswordHash:  hash,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}
	if err := s.roles.Assign(ctx, user.ID, model.RoleUserID); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *AuthService) issue(ctx context.Context, user model.User) (model.TokenPair, error) {
	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}

	access, expiresAt, err := s.issuer.GenerateAccessToken(user, roles)
	if err != nil {
		return model.TokenPair{}, err
	}

	refresh, err := s.issuer.CreateRefreshToken(user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := s.tokens.Store(ctx, refresh); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// cooldownRemaining returns the whole seconds left before another security
// email may be sent, or 0 when sending is allowed.
func cooldownRemaining(user model.User, now time.Time) int {
	if user.LastSecurityEmailSentAt == nil {
		return 0
	}
	remaining := user.LastSecurityEmailSentAt.Add(SecurityEmailCooldown).Sub(now)
	if remaining <= 0 {
		return 0
	}
	if secs := int(remaining.Seconds()); secs > 0 {
		return secs
	}
	return 1
}

func validateRegistration(email string, username string, password string) error {
	switch {
	case email == "":
		return apierror.Validation("Email is required", "email")
	case !strings.Contains(email, "@"):
		return apierror.Validation("Email is not valid", "email")
	case username == "":
		return apierror.Validation("Username is required", "username")
	case strings.TrimSpace(password) == "":
		return apierror.Validation("Password is required", "password")
	case len(password) > auth.MaxPasswordBytes:
		return apierror.Validation(msgPasswordTooLong, "password")
	}
	return nil
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
