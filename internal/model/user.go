package model

import "time"

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// Seeded role ids, see migrations/000001_init.up.sql.
const (
	RoleAdminID = 1
	RoleUserID  = 2
)

type User struct {
	ID                       string     `json:"id"`
	Email                    string     `json:"email"`
	Username                 string     `json:"username"`
	PasswordHash             string     `json:"-"`
	EmailVerified            bool       `json:"email_verified"`
	EmailVerificationHash    *string    `json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`
	PasswordResetHash        *string    `json:"-"`
	PasswordResetExpires     *time.Time `json:"-"`
	LastSecurityEmailSentAt  *time.Time `json:"-"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type RefreshToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the token can still be exchanged at now.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

type AuthClaims struct {
	UserID   string   `json:"sub"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	TokenID  string   `json:"jti"`
}

// HasRole matches role names case-insensitively.
func (c *AuthClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if equalFold(r, role) {
			return true
		}
	}
	return false
}

type AuthUser struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Username      string   `json:"username"`
	EmailVerified bool     `json:"email_verified"`
	Roles         []string `json:"roles"`
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type RegisterResult struct {
	Message string `json:"message"`
}

// FederatedIdentity is what an external identity provider vouches for.
type FederatedIdentity struct {
	Subject string
	Email   string
	Name    string
}
