package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"zhsystem/internal/database"
	"zhsystem/internal/model"
)

const userColumns = `id, email, username, password_hash, email_verified,
	email_verification_hash, email_verification_expires,
	password_reset_hash, password_reset_expires,
	last_security_email_sent_at, created_at, updated_at`

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	row := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "find user by id")
}

// FindByEmail expects an already normalized email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, email)
	return scanUser(row, "find user by email")
}

// FindByEmailForUpdate locks the row until the surrounding transaction ends.
func (r *UserRepository) FindByEmailForUpdate(ctx context.Context, email string) (model.User, error) {
	row := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1 FOR UPDATE`, email)
	return scanUser(row, "find user by email for update")
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// FindByVerificationHash only matches tokens that have not expired at now.
func (r *UserRepository) FindByVerificationHash(ctx context.Context, hash string, now time.Time) (model.User, error) {
	row := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email_verification_hash = $1 AND email_verification_expires > $2`, hash, now)
	return scanUser(row, "find user by verification token")
}

// FindByResetHash only matches tokens that have not expired at now.
func (r *UserRepository) FindByResetHash(ctx context.Context, hash string, now time.Time) (model.User, error) {
	row := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE password_reset_hash = $1 AND password_reset_expires > $2`, hash, now)
	return scanUser(row, "find user by reset token")
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := database.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO users (id, email, username, password_hash, email_verified,
		                    email_verification_hash, email_verification_expires,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.EmailVerified,
		u.EmailVerificationHash, u.EmailVerificationExpires, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.ErrUserAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update writes every mutable column of u.
func (r *UserRepository) Update(ctx context.Context, u model.User) error {
	tag, err := database.Conn(ctx, r.db).Exec(ctx,
		`UPDATE users SET
		    username = $2, password_hash = $3, email_verified = $4,
		    email_verification_hash = $5, email_verification_expires = $6,
		    password_reset_hash = $7, password_reset_expires = $8,
		    last_security_email_sent_at = $9, updated_at = $10
		 WHERE id = $1`,
		u.ID, u.Username, u.PasswordHash, u.EmailVerified,
		u.EmailVerificationHash, u.EmailVerificationExpires,
		u.PasswordResetHash, u.PasswordResetExpires,
		u.LastSecurityEmailSentAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row, op string) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.EmailVerified,
		&u.EmailVerificationHash, &u.EmailVerificationExpires,
		&u.PasswordResetHash, &u.PasswordResetExpires,
		&u.LastSecurityEmailSentAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
