// Package authpw provides email/password accounts backed by bcrypt hashes.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("email, password, and display name are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const minPasswordLength = 8

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

// Service provides email/password authentication
type Service struct {
	store UserStore
	cost  int
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy of the service hashing with cost. Tests use
// bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	cp := *s
	cp.cost = cost
	return &cp
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

// SignUp creates a new user account. The role defaults to editor.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.DisplayName) == "" {
		return store.User{}, ErrMissingFields
	}
	if len(req.Password) < minPasswordLength {
		return store.User{}, ErrWeakPassword
	}

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return store.User{}, ErrEmailTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	role := rbac.RoleEditor
	if req.Role != "" {
		role = rbac.Normalize(req.Role)
	}

	user, err := s.store.CreateUser(ctx, store.User{
		ID:           store.NewID(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
		Role:         string(role),
	})
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Verify checks an email/password pair. Unknown emails and wrong passwords
// both return ErrInvalidCredentials.
func (s *Service) Verify(ctx context.Context, email, password string) (store.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
