package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"zhsystem/internal/model"
)

const refreshTokenBytes = 64

var ErrInvalidAccessToken = errors.New("invalid access token")

type accessClaims struct {
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

type IssuerConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// Issuer signs HS256 access tokens and mints opaque refresh tokens.
type Issuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg IssuerConfig) *Issuer {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}
}

func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

func (i *Issuer) GenerateAccessToken(user model.User, roles []string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.accessTTL)

	claims := accessClaims{
		Email:    user.Email,
		Username: user.Username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("ACCESS_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, expiresAt, nil
}

func (i *Issuer) CreateRefreshToken(userID string) (model.RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return model.RefreshToken{}, oops.Code("REFRESH_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	now := i.now()
	return model.RefreshToken{
		ID:        uuid.NewString(),
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		UserID:    userID,
		ExpiresAt: now.Add(i.refreshTTL),
		CreatedAt: now,
	}, nil
}

// ValidateAccessToken checks signature, algorithm, issuer, audience and expiry.
func (i *Issuer) ValidateAccessToken(tokenString string) (*model.AuthClaims, error) {
	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims,
		func(token *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}

	return &model.AuthClaims{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Roles:    claims.Roles,
		TokenID:  claims.ID,
	}, nil
}
