package authpw

import (
	"context"
	"errors"
	"testing"

	"inkwell/api/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	lookupErr  error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if m.lookupErr != nil {
		return store.User{}, m.lookupErr
	}
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func newTestService() (*Service, *mockUserStore) {
	users := newMockUserStore()
	return NewService(users).WithCost(bcrypt.MinCost), users
}

func TestSignUp(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{
		Email:       " Avery@Example.com ",
		Password:    "correct horse",
		DisplayName: "Avery",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Email != "avery@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if user.Role != "editor" {
		t.Errorf("expected default editor role, got %q", user.Role)
	}
	if user.PasswordHash == "correct horse" {
		t.Error("password stored in plain text")
	}
	if len(users.users) != 1 {
		t.Errorf("expected one stored user, got %d", len(users.users))
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{name: "missing email", req: SignUpRequest{Password: "longenough", DisplayName: "A"}, want: ErrMissingFields},
		{name: "missing name", req: SignUpRequest{Email: "a@b.co", Password: "longenough"}, want: ErrMissingFields},
		{name: "short password", req: SignUpRequest{Email: "a@b.co", Password: "short", DisplayName: "A"}, want: ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SignUp(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := SignUpRequest{Email: "dup@example.com", Password: "password1", DisplayName: "Dup"}

	if _, err := svc.SignUp(ctx, req); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	if _, err := svc.SignUp(ctx, req); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpLookupFailure(t *testing.T) {
	svc, users := newTestService()
	users.lookupErr = errors.New("db down")

	_, err := svc.SignUp(context.Background(), SignUpRequest{Email: "x@example.com", Password: "password1", DisplayName: "X"})
	if err == nil || errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, err := svc.SignUp(ctx, SignUpRequest{Email: "sam@example.com", Password: "password1", DisplayName: "Sam", Role: "admin"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	user, err := svc.Verify(ctx, "SAM@example.com", "password1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.ID != created.ID || user.Role != "admin" {
		t.Errorf("unexpected user %+v", user)
	}

	if _, err := svc.Verify(ctx, "sam@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Verify(ctx, "nobody@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}
