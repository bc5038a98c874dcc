package security

import (
	"context"
	"strings"

	"inkwell/api/internal/rbac"
)

type Action string

const (
	ActionAllow     Action = "allow"
	ActionDeny      Action = "deny"
	ActionLog       Action = "log"
	ActionChallenge Action = "challenge"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAllow, ActionDeny, ActionLog, ActionChallenge:
		return true
	}
	return false
}

// Condition reports whether a rule matches. A returned error or a panic is
// logged and the rule is treated as not matching.
type Condition func(ctx context.Context, sc *Context) (bool, error)

// Rule is evaluated in ascending Priority order.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	Priority    int       `json:"priority"`
	Action      Action    `json:"action"`
	Message     string    `json:"message"`
	Condition   Condition `json:"-"`
}

// RuleUpdate changes the non-nil fields of a rule.
type RuleUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	Action      *Action `json:"action,omitempty"`
	Message     *string `json:"message,omitempty"`
}

// PathMatch selects what the route rules compare their prefixes with.
type PathMatch string

const (
	MatchPath      PathMatch = "path"
	MatchUserAgent PathMatch = "user-agent"
)

var (
	DefaultProtectedPrefixes = []string{
		"/api/documents",
		"/api/ai",
		"/api/search",
		"/api/notifications",
		"/api/session",
		"/api/csrf",
		"/api/auth/logout",
		"/api/admin",
	}
	DefaultAdminPrefixes = []string{"/api/admin"}
)

func (e *Engine) matches(sc *Context, prefixes []string) bool {
	for _, prefix := range prefixes {
		if e.pathMatch == MatchUserAgent {
			if strings.Contains(sc.UserAgent, prefix) {
				return true
			}
			continue
		}
		if sc.Path == prefix || strings.HasPrefix(sc.Path, prefix+"/") {
			return true
		}
	}
	return false
}

func (e *Engine) defaultRules() []Rule {
	return []Rule{
		{
			ID:          "auth_required",
			Name:        "Authentication Required",
			Description: "Protected routes need an authenticated session",
			Enabled:     true,
			Priority:    1,
			Action:      ActionDeny,
			Message:     "Authentication required",
			Condition: func(_ context.Context, sc *Context) (bool, error) {
				return e.matches(sc, e.protectedPrefixes) && !sc.IsAuthenticated, nil
			},
		},
		{
			ID:          "admin_required",
			Name:        "Admin Access Required",
			Description: "Admin routes need the admin role",
			Enabled:     true,
			Priority:    2,
			Action:      ActionDeny,
			Message:     "Admin access required",
			Condition: func(_ context.Context, sc *Context) (bool, error) {
				return e.matches(sc, e.adminPrefixes) && !sc.HasRole(string(rbac.RoleAdmin)), nil
			},
		},
		{
			ID:          "rate_limit",
			Name:        "Rate Limiting",
			Description: "Too many requests from one IP address",
			Enabled:     true,
			Priority:    3,
			Action:      ActionDeny,
			Message:     "Rate limit exceeded. Please try again later.",
			Condition: func(ctx context.Context, sc *Context) (bool, error) {
				limited, err := e.limiter.Hit(ctx, sc.IP)
				if err == nil {
					sc.rateCounted = true
				}
				return limited, err
			},
		},
		{
			ID:          "session_valid",
			Name:        "Valid Session",
			Description: "Authenticated requests need a live session",
			Enabled:     true,
			Priority:    4,
			Action:      ActionDeny,
			Message:     "Session expired. Please log in again.",
			Condition: func(_ context.Context, sc *Context) (bool, error) {
				return sc.IsAuthenticated && !e.contextSessionValid(sc), nil
			},
		},
	}
}
