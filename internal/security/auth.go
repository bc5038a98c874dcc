package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
)

var (
	ErrRateLimited        = errors.New("too many requests")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrNoSession          = errors.New("no active session")
)

// Verifier checks credentials against the account store.
type Verifier interface {
	Verify(ctx context.Context, email, password string) (store.User, error)
}

type Credentials struct {
	Email     string
	Password  string
	IP        string
	UserAgent string

	// RateCounted skips the limiter hit when the request was already counted.
	RateCounted bool
}

type AuthResult struct {
	SessionID   string   `json:"sessionId"`
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	CSRFToken   string   `json:"csrfToken"`
}

// Authenticate checks the IP rate limit, verifies the credentials and opens a
// new session. Every verification failure is reported as
// ErrInvalidCredentials.
func (e *Engine) Authenticate(ctx context.Context, creds Credentials) (AuthResult, error) {
	var limited bool
	if !creds.RateCounted {
		var err error
		limited, err = e.limiter.Hit(ctx, creds.IP)
		if err != nil {
			e.log.WithError(err).Warn("rate limit check failed during login")
		}
	}
	if limited {
		e.recordEvent(store.SecurityEvent{
			Type: "login", Severity: SeverityMedium, IP: creds.IP, UserAgent: creds.UserAgent,
			Details: "login rejected: rate limit exceeded",
		})
		return AuthResult{}, ErrRateLimited
	}

	user, err := e.verifier.Verify(ctx, creds.Email, creds.Password)
	if err != nil {
		e.recordEvent(store.SecurityEvent{
			Type: "login", Severity: SeverityMedium, IP: creds.IP, UserAgent: creds.UserAgent,
			Details: fmt.Sprintf("login failed for %s: %v", creds.Email, err),
		})
		return AuthResult{}, ErrInvalidCredentials
	}

	role := rbac.Normalize(user.Role)
	roles := rbac.Roles(role).ToSlice()
	permissions := rbac.Permissions(role).ToSlice()

	sessionID, err := newSessionID(e.now().UnixMilli())
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate session id: %w", err)
	}
	csrf, err := randomHex(32)
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate csrf token: %w", err)
	}

	now := e.now()
	if err := e.sessions.Save(ctx, session.Record{
		ID:              sessionID,
		UserID:          user.ID,
		Email:           user.Email,
		IsAuthenticated: true,
		Roles:           roles,
		Permissions:     permissions,
		CSRFToken:       csrf,
		CreatedAt:       now,
		LastActivity:    now,
	}); err != nil {
		return AuthResult{}, fmt.Errorf("save session: %w", err)
	}

	e.recordEvent(store.SecurityEvent{
		Type: "login", Severity: SeverityLow, UserID: user.ID, IP: creds.IP, UserAgent: creds.UserAgent,
		Details: "login succeeded",
	})

	return AuthResult{
		SessionID:   sessionID,
		UserID:      user.ID,
		Email:       user.Email,
		Roles:       roles,
		Permissions: permissions,
		CSRFToken:   csrf,
	}, nil
}

// Logout destroys the session.
func (e *Engine) Logout(ctx context.Context, sc *Context) error {
	if err := e.sessions.Delete(ctx, sc.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	e.recordEvent(store.SecurityEvent{
		Type: "logout", Severity: SeverityLow, UserID: sc.UserID, IP: sc.IP, UserAgent: sc.UserAgent,
		Details: "logout",
	})
	return nil
}

// Session returns the stored record of sessionID.
func (e *Engine) Session(ctx context.Context, sessionID string) (session.Record, error) {
	return e.sessions.Get(ctx, sessionID)
}

// GenerateCSRFToken issues a fresh token bound to sessionID.
func (e *Engine) GenerateCSRFToken(ctx context.Context, sessionID string) (string, error) {
	rec, err := e.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	token, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	rec.CSRFToken = token
	if err := e.sessions.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

// ValidateCSRFToken compares token with the one bound to sessionID.
func (e *Engine) ValidateCSRFToken(ctx context.Context, sessionID, token string) bool {
	if token == "" {
		return false
	}
	rec, err := e.sessions.Get(ctx, sessionID)
	if err != nil || rec.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rec.CSRFToken), []byte(token)) == 1
}

func newSessionID(unixMillis int64) (string, error) {
	suffix, err := randomHex(16)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(unixMillis, 10) + "-" + suffix, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
