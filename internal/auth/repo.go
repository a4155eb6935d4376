package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"schoolattendance/internal/model"
	"schoolattendance/internal/store"
)

// Repository persists users and their refresh tokens.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a user; a taken email yields ErrEmailTaken.
func (r *Repository) CreateUser(ctx context.Context, name, email, passwordHash string) (model.User, error) {
	u := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (:id, :name, :email, :password_hash, :created_at)
	`, u)
	if store.IsUniqueViolation(err) {
		return model.User{}, ErrEmailTaken
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// UserByEmail returns the user with email, or ErrUserNotFound.
func (r *Repository) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return r.user(ctx, `email = ?`, strings.ToLower(email))
}

// UserByID returns the user with id, or ErrUserNotFound.
func (r *Repository) UserByID(ctx context.Context, id string) (model.User, error) {
	return r.user(ctx, `id = ?`, id)
}

func (r *Repository) user(ctx context.Context, cond string, arg any) (model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(`SELECT id, name, email, password_hash, created_at FROM users WHERE `+cond), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO refresh_tokens (token, user_id, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), token, userID, expiresAt.UTC(), false, time.Now().UTC())
	return err
}

// RefreshTokenActive reports whether token is stored, unrevoked and unexpired.
func (r *Repository) RefreshTokenActive(ctx context.Context, token string, now time.Time) (bool, error) {
	var row struct {
		ExpiresAt time.Time `db:"expires_at"`
		Revoked   bool      `db:"revoked"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT expires_at, revoked FROM refresh_tokens WHERE token = ?`), token)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !row.Revoked && now.Before(row.ExpiresAt), nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE refresh_tokens SET revoked = ? WHERE token = ?`), true, token)
	return err
}
