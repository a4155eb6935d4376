// Package auth authenticates the users who record attendance.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"schoolattendance/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("the provided credentials are incorrect")
	ErrEmailTaken         = errors.New("the email has already been taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or revoked refresh token")
)

// Session is what a successful login returns.
type Session struct {
	User   model.User `json:"user"`
	Tokens TokenPair  `json:"tokens"`
}

// Service registers users and manages their token sessions.
type Service struct {
	repo   *Repository
	signer *Signer
	cost   int
}

// NewService creates an auth service.
func NewService(repo *Repository, signer *Signer) *Service {
	return &Service{repo: repo, signer: signer, cost: bcrypt.DefaultCost}
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates a user and logs them in.
func (s *Service) Register(ctx context.Context, name, email, password string) (Session, error) {
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return Session{}, err
	}
	u, err := s.repo.CreateUser(ctx, name, email, hash)
	if err != nil {
		return Session{}, err
	}
	return s.startSession(ctx, u)
}

// Login checks credentials and issues tokens.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.startSession(ctx, u)
}

// Refresh rotates a refresh token: the old one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.signer.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	active, err := s.repo.RefreshTokenActive(ctx, refreshToken, s.signer.now())
	if err != nil {
		return Session{}, err
	}
	if !active {
		return Session{}, ErrInvalidToken
	}
	u, err := s.repo.UserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	if err := s.repo.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return Session{}, err
	}
	return s.startSession(ctx, u)
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.RevokeRefreshToken(ctx, refreshToken)
}

// Me returns the user behind an authenticated request.
func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	return s.repo.UserByID(ctx, userID)
}

func (s *Service) startSession(ctx context.Context, u model.User) (Session, error) {
	pair, err := s.signer.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	if err := s.repo.SaveRefreshToken(ctx, u.ID, pair.RefreshToken, pair.RefreshExp); err != nil {
		return Session{}, fmt.Errorf("save refresh token: %w", err)
	}
	return Session{User: u, Tokens: pair}, nil
}

// SetCost changes the bcrypt cost; tests lower it.
func (s *Service) SetCost(cost int) {
	s.cost = cost
}
