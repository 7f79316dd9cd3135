package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"zhsystem/internal/database"
	"zhsystem/internal/model"
)

type TokenRepository struct {
	db database.DBTX
}

func NewTokenRepository(db database.DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Store(ctx context.Context, t model.RefreshToken) error {
	_, err := database.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO refresh_tokens (id, token, user_id, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Token, t.UserID, t.ExpiresAt, t.Revoked, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// FindByToken returns the row whatever its revoked/expiry state.
func (r *TokenRepository) FindByToken(ctx context.Context, token string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT id, token, user_id, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE token = $1`, token).
		Scan(&t.ID, &t.Token, &t.UserID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return t, nil
}

// Revoke flips the revoked flag. It returns model.ErrTokenRevoked when the row was
// already revoked, so only one of two racing callers wins.
func (r *TokenRepository) Revoke(ctx context.Context, id string) error {
	tag, err := database.Conn(ctx, r.db).Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE id = $1 AND revoked = false`, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTokenRevoked
	}
	return nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := database.Conn(ctx, r.db).Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
