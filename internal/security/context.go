package security

import (
	"net"
	"net/http"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	AnonymousSession = "anonymous"
	SessionIDHeader  = "X-Session-Id"
)

// Request is the part of an inbound request the engine looks at.
type Request struct {
	Method        string
	Path          string
	IP            string
	UserAgent     string
	Authorization string
	SessionHeader string
}

// RequestFromHTTP extracts a Request. The client IP is the first
// X-Forwarded-For entry when present.
func RequestFromHTTP(r *http.Request) Request {
	return Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		IP:            ClientIP(r),
		UserAgent:     r.UserAgent(),
		Authorization: r.Header.Get("Authorization"),
		SessionHeader: r.Header.Get(SessionIDHeader),
	}
}

func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SessionID resolves the session of a request: bearer token, then the
// session header, then AnonymousSession.
func (r Request) SessionID() string {
	if token, ok := strings.CutPrefix(r.Authorization, "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if id := strings.TrimSpace(r.SessionHeader); id != "" {
		return id
	}
	return AnonymousSession
}

// Context is the per-request security view of a session.
type Context struct {
	UserID          string
	IsAuthenticated bool
	Permissions     mapset.Set[string]
	Roles           mapset.Set[string]
	IP              string
	UserAgent       string
	SessionID       string
	Method          string
	Path            string
	LastActivity    time.Time

	hasSession       bool
	previousActivity time.Time
	rateCounted      bool
}

// RateCounted reports whether the rate_limit rule already counted this
// request against its IP.
func (c *Context) RateCounted() bool { return c.rateCounted }

func (c *Context) HasRole(role string) bool {
	return c.Roles != nil && c.Roles.Contains(role)
}

func (c *Context) HasPermission(permission string) bool {
	return c.Permissions != nil && c.Permissions.Contains(permission)
}

// Decision is the outcome of ProcessRequest.
type Decision struct {
	Allowed    bool
	Context    *Context
	Reason     string
	StatusCode int
}
