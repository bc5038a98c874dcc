package workspace

import (
	"context"
	"sync"
	"time"

	"inkwell/api/internal/versions"

	"github.com/sirupsen/logrus"
)

// Deps are shared by every workspace of a Manager.
type Deps struct {
	Store            Store
	Indexer          Indexer
	Archiver         versions.Archiver
	AutosaveInterval time.Duration
	Logger           logrus.FieldLogger
	Now              func() time.Time
}

// Manager owns one Workspace per security session.
type Manager struct {
	deps Deps

	mu         sync.Mutex
	workspaces map[string]*Workspace
	// unflushed holds workspaces whose session is gone but whose document
	// could not be saved. EvictIdle retries them.
	unflushed []*Workspace
}

func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{deps: deps, workspaces: make(map[string]*Workspace)}
}

// Get returns the workspace of sessionID, creating it on first use. A session
// that changed owner gets a fresh workspace.
func (m *Manager) Get(ctx context.Context, sessionID, userID string) *Workspace {
	m.mu.Lock()
	ws, ok := m.workspaces[sessionID]
	if ok && ws.userID == userID {
		m.mu.Unlock()
		ws.touch(m.deps.Now())
		return ws
	}
	fresh := newWorkspace(sessionID, userID, m.deps)
	m.workspaces[sessionID] = fresh
	m.mu.Unlock()

	if ok {
		_ = m.retire(ctx, ws)
	}
	return fresh
}

// Close flushes and forgets the workspace of sessionID. If the flush fails
// the workspace is parked for EvictIdle to retry and the error is returned.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	ws, ok := m.workspaces[sessionID]
	delete(m.workspaces, sessionID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.retire(ctx, ws)
}

func (m *Manager) retire(ctx context.Context, ws *Workspace) error {
	if err := ws.Close(ctx); err != nil {
		m.deps.Logger.WithError(err).WithField("session_id", ws.sessionID).Warn("workspace kept with unsaved changes")
		m.mu.Lock()
		m.unflushed = append(m.unflushed, ws)
		m.mu.Unlock()
		return err
	}
	return nil
}

// EvictIdle closes workspaces unused for longer than idle and returns how
// many were closed. A workspace whose document cannot be saved stays.
func (m *Manager) EvictIdle(ctx context.Context, idle time.Duration) int {
	cutoff := m.deps.Now().Add(-idle)

	m.mu.Lock()
	stale := make(map[string]*Workspace)
	for id, ws := range m.workspaces {
		if ws.LastUsed().Before(cutoff) {
			stale[id] = ws
			delete(m.workspaces, id)
		}
	}
	parked := m.unflushed
	m.unflushed = nil
	m.mu.Unlock()

	closed := 0
	for id, ws := range stale {
		if err := ws.Close(ctx); err != nil {
			m.deps.Logger.WithError(err).WithField("session_id", id).Warn("idle workspace kept with unsaved changes")
			m.mu.Lock()
			if _, taken := m.workspaces[id]; taken {
				m.unflushed = append(m.unflushed, ws)
			} else {
				m.workspaces[id] = ws
			}
			m.mu.Unlock()
			continue
		}
		closed++
	}
	for _, ws := range parked {
		if err := m.retire(ctx, ws); err == nil {
			closed++
		}
	}
	if closed > 0 {
		m.deps.Logger.WithField("count", closed).Info("evicted idle workspaces")
	}
	return closed
}

// CloseAll flushes every workspace; used at shutdown. Edits that cannot be
// saved are logged and dropped.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Workspace, 0, len(m.workspaces)+len(m.unflushed))
	for id, ws := range m.workspaces {
		all = append(all, ws)
		delete(m.workspaces, id)
	}
	all = append(all, m.unflushed...)
	m.unflushed = nil
	m.mu.Unlock()
	for _, ws := range all {
		if err := ws.Close(ctx); err != nil {
			m.deps.Logger.WithError(err).WithField("session_id", ws.sessionID).Error("unsaved changes lost at shutdown")
			ws.shutdown()
		}
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

// Parked returns how many closed sessions still hold unsaved documents.
func (m *Manager) Parked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unflushed)
}
