// Package security evaluates every inbound request against an ordered rule set
// and owns the session table, the per-IP rate limiter and the login flow.
package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"inkwell/api/internal/session"
	"inkwell/api/internal/store"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
)

var (
	ErrRuleNotFound  = errors.New("security rule not found")
	ErrDuplicateRule = errors.New("security rule already exists")
	ErrInvalidRule   = errors.New("invalid security rule")
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// EventSink persists security events.
type EventSink interface {
	InsertSecurityEvent(ctx context.Context, event store.SecurityEvent) error
}

type Config struct {
	// SessionTimeout of zero means no policy: sessions never expire by idleness.
	SessionTimeout    time.Duration
	PathMatch         PathMatch
	ProtectedPrefixes []string
	AdminPrefixes     []string
}

type Engine struct {
	sessions session.Store
	limiter  Limiter
	verifier Verifier
	events   EventSink
	log      logrus.FieldLogger
	now      func() time.Time

	sessionTimeout    time.Duration
	pathMatch         PathMatch
	protectedPrefixes []string
	adminPrefixes     []string

	mu    sync.RWMutex
	rules []Rule

	pending sync.WaitGroup
}

type Option func(*Engine)

func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.events = sink }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine seeds the default rules.
func NewEngine(sessions session.Store, limiter Limiter, verifier Verifier, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		sessions:          sessions,
		limiter:           limiter,
		verifier:          verifier,
		log:               logrus.StandardLogger(),
		now:               time.Now,
		sessionTimeout:    cfg.SessionTimeout,
		pathMatch:         cfg.PathMatch,
		protectedPrefixes: cfg.ProtectedPrefixes,
		adminPrefixes:     cfg.AdminPrefixes,
	}
	if e.pathMatch == "" {
		e.pathMatch = MatchPath
	}
	if e.protectedPrefixes == nil {
		e.protectedPrefixes = DefaultProtectedPrefixes
	}
	if e.adminPrefixes == nil {
		e.adminPrefixes = DefaultAdminPrefixes
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = e.defaultRules()
	return e
}

// ProcessRequest builds the security context of req and runs the enabled
// rules in priority order. The first matching deny or challenge rule decides.
func (e *Engine) ProcessRequest(ctx context.Context, req Request) Decision {
	sc := e.buildContext(ctx, req)

	for _, rule := range e.enabledRules() {
		matched, err := e.evaluate(ctx, rule, sc)
		if err != nil {
			e.log.WithError(err).WithField("rule", rule.ID).Warn("security rule failed")
			continue
		}
		if !matched {
			continue
		}
		switch rule.Action {
		case ActionDeny:
			e.recordRule(sc, rule, SeverityMedium)
			return Decision{Allowed: false, Context: sc, Reason: rule.Message, StatusCode: http.StatusForbidden}
		case ActionChallenge:
			e.recordRule(sc, rule, SeverityMedium)
			return Decision{Allowed: false, Context: sc, Reason: rule.Message, StatusCode: http.StatusUnauthorized}
		default:
			e.recordRule(sc, rule, SeverityLow)
		}
	}
	return Decision{Allowed: true, Context: sc}
}

func (e *Engine) buildContext(ctx context.Context, req Request) *Context {
	now := e.now()
	sc := &Context{
		SessionID:    req.SessionID(),
		IP:           req.IP,
		UserAgent:    req.UserAgent,
		Method:       req.Method,
		Path:         req.Path,
		LastActivity: now,
		Roles:        mapset.NewSet[string](),
		Permissions:  mapset.NewSet[string](),
	}

	rec, err := e.sessions.Get(ctx, sc.SessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			e.log.WithError(err).Warn("session lookup failed")
		}
		return sc
	}

	sc.hasSession = true
	sc.previousActivity = rec.LastActivity
	sc.UserID = rec.UserID
	sc.IsAuthenticated = rec.IsAuthenticated
	sc.Roles = mapset.NewSet(rec.Roles...)
	sc.Permissions = mapset.NewSet(rec.Permissions...)

	// An expired session is left untouched so session_valid can reject it.
	if e.activeAt(rec.LastActivity, now) {
		if err := e.sessions.Touch(ctx, sc.SessionID, now); err != nil {
			e.log.WithError(err).Warn("session touch failed")
		}
	}
	return sc
}

func (e *Engine) evaluate(ctx context.Context, rule Rule, sc *Context) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("panic in condition: %v", r)
		}
	}()
	if rule.Condition == nil {
		return false, nil
	}
	return rule.Condition(ctx, sc)
}

func (e *Engine) activeAt(lastActivity, now time.Time) bool {
	if e.sessionTimeout <= 0 {
		return true
	}
	return now.Sub(lastActivity) <= e.sessionTimeout
}

func (e *Engine) contextSessionValid(sc *Context) bool {
	if !sc.hasSession {
		return false
	}
	return e.activeAt(sc.previousActivity, e.now())
}

// IsSessionValid reports whether sessionID exists and has not been idle for
// longer than the session timeout.
func (e *Engine) IsSessionValid(ctx context.Context, sessionID string) bool {
	rec, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return false
	}
	return e.activeAt(rec.LastActivity, e.now())
}

// IsRateLimited counts a request from ip.
func (e *Engine) IsRateLimited(ctx context.Context, ip string) (bool, error) {
	return e.limiter.Hit(ctx, ip)
}

func (e *Engine) enabledRules() []Rule {
	e.mu.RLock()
	enabled := make([]Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	e.mu.RUnlock()
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })
	return enabled
}

// Rules returns the rule set ordered by priority.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	e.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func (e *Engine) AddRule(rule Rule) error {
	if rule.ID == "" || rule.Condition == nil || !rule.Action.Valid() {
		return ErrInvalidRule
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == rule.ID {
			return ErrDuplicateRule
		}
	}
	e.rules = append(e.rules, rule)
	return nil
}

func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rule := range e.rules {
		if rule.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) UpdateRule(id string, update RuleUpdate) (Rule, error) {
	if update.Action != nil && !update.Action.Valid() {
		return Rule{}, ErrInvalidRule
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID != id {
			continue
		}
		rule := &e.rules[i]
		if update.Name != nil {
			rule.Name = *update.Name
		}
		if update.Description != nil {
			rule.Description = *update.Description
		}
		if update.Enabled != nil {
			rule.Enabled = *update.Enabled
		}
		if update.Priority != nil {
			rule.Priority = *update.Priority
		}
		if update.Action != nil {
			rule.Action = *update.Action
		}
		if update.Message != nil {
			rule.Message = *update.Message
		}
		return *rule, nil
	}
	return Rule{}, ErrRuleNotFound
}

// Cleanup drops sessions idle for more than session.MaxIdle and expired rate
// limit counters.
func (e *Engine) Cleanup(ctx context.Context) (sessions int, counters int, err error) {
	sessions, err = e.sessions.PurgeIdle(ctx, e.now().Add(-session.MaxIdle))
	if err != nil {
		return 0, 0, fmt.Errorf("purge sessions: %w", err)
	}
	counters, err = e.limiter.Purge(ctx)
	if err != nil {
		return sessions, 0, fmt.Errorf("purge rate limits: %w", err)
	}
	return sessions, counters, nil
}

// Close waits for event writes that are still in flight.
func (e *Engine) Close() {
	e.pending.Wait()
}

func (e *Engine) recordRule(sc *Context, rule Rule, severity string) {
	e.recordEvent(store.SecurityEvent{
		Type:      "rule_" + string(rule.Action),
		Severity:  severity,
		UserID:    sc.UserID,
		IP:        sc.IP,
		UserAgent: sc.UserAgent,
		Details:   fmt.Sprintf("rule=%s path=%s message=%s", rule.ID, sc.Path, rule.Message),
	})
}

// recordEvent logs event and hands it to the sink on its own goroutine. The
// caller never waits for the write and never sees its error.
func (e *Engine) recordEvent(event store.SecurityEvent) {
	event.ID = store.NewID()
	event.CreatedAt = e.now().UTC()

	entry := e.log.WithFields(logrus.Fields{
		"event":    event.Type,
		"severity": event.Severity,
		"user_id":  event.UserID,
		"ip":       event.IP,
	})
	switch event.Severity {
	case SeverityHigh, SeverityCritical:
		entry.Warn(event.Details)
	default:
		entry.Info(event.Details)
	}

	if e.events == nil {
		return
	}
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.events.InsertSecurityEvent(ctx, event); err != nil {
			e.log.WithError(err).WithField("event", event.Type).Warn("persist security event failed")
		}
	}()
}
