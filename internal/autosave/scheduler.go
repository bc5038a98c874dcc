// Package autosave decides when the content of a workspace is persisted.
//
// Content changes are debounced; only the newest timer survives. At most one
// save runs at a time, and a save is skipped when the content already matches
// the last saved baseline.
package autosave

import (
	"context"
	"sync"
	"time"

	"inkwell/api/internal/plaintext"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 5 * time.Second

	FailedMessage = "Failed to save. Your work is preserved locally."
)

// Snapshot is the editor state to persist.
type Snapshot struct {
	Title       string
	Content     string
	ContentHTML string
}

// Payload is handed to the Saver. Counts treat Content as plain text.
type Payload struct {
	DocumentID     string
	Title          string
	Content        string
	ContentHTML    string
	WordCount      int
	CharacterCount int
	SavedAt        time.Time
}

type Saver interface {
	SaveContent(ctx context.Context, p Payload) error
}

type SaverFunc func(ctx context.Context, p Payload) error

func (f SaverFunc) SaveContent(ctx context.Context, p Payload) error { return f(ctx, p) }

type Status struct {
	IsSaving          bool       `json:"isSaving"`
	LastSaved         *time.Time `json:"lastSaved"`
	HasUnsavedChanges bool       `json:"hasUnsavedChanges"`
	Error             string     `json:"error,omitempty"`
}

type Scheduler struct {
	saver    Saver
	interval time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	mu         sync.Mutex
	documentID string
	enabled    bool
	pending    Snapshot
	baseline   string
	timer      *time.Timer
	generation uint64
	saving     bool
	lastSaved  time.Time
	dirty      bool
	errMsg     string

	background sync.WaitGroup
}

type Option func(*Scheduler)

// WithInterval sets the debounce window. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithEnabled(enabled bool) Option {
	return func(s *Scheduler) { s.enabled = enabled }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New returns a scheduler targeting documentID. An empty id disables saving
// until Reset is called with a target.
func New(saver Saver, documentID string, opts ...Option) *Scheduler {
	s := &Scheduler{
		saver:      saver,
		interval:   DefaultInterval,
		log:        logrus.StandardLogger(),
		now:        func() time.Time { return time.Now().UTC() },
		documentID: documentID,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentID
}

// Reset retargets the scheduler at documentID with baseline as the content
// already persisted. Any pending timer is dropped.
func (s *Scheduler) Reset(documentID string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.documentID = documentID
	s.pending = snap
	s.baseline = snap.Content
	s.dirty = false
	s.errMsg = ""
	s.lastSaved = time.Time{}
}

func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	if !enabled {
		s.cancelLocked()
	}
}

// Change records the latest editor state and restarts the debounce timer when
// the content differs from the saved baseline. Content reverted to the
// baseline drops the pending save and clears the unsaved flag.
func (s *Scheduler) Change(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = snap
	if !s.enabled || s.documentID == "" {
		return
	}
	if snap.Content == s.baseline {
		if s.dirty {
			s.cancelLocked()
			s.dirty = false
			s.errMsg = ""
		}
		return
	}
	s.dirty = true
	s.scheduleLocked()
}

func (s *Scheduler) scheduleLocked() {
	s.cancelLocked()
	gen := s.generation
	s.timer = time.AfterFunc(s.interval, func() { s.fire(gen) })
}

func (s *Scheduler) cancelLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.save(context.Background())
}

// SaveNow cancels the pending timer and saves immediately.
func (s *Scheduler) SaveNow(ctx context.Context) Status {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
	s.save(ctx)
	return s.Status()
}

// MarkSaved moves the baseline to content without writing anything.
func (s *Scheduler) MarkSaved(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = content
	s.lastSaved = s.now()
	s.errMsg = ""
	s.dirty = s.pending.Content != content
	if !s.dirty {
		s.cancelLocked()
	}
}

// PageExit reports whether the client should warn before leaving. When there
// are unsaved changes a save is started without waiting for it.
func (s *Scheduler) PageExit() bool {
	if !s.Status().HasUnsavedChanges {
		return false
	}
	s.saveInBackground()
	return true
}

// VisibilityHidden starts a background save when there are unsaved changes.
func (s *Scheduler) VisibilityHidden() {
	if s.Status().HasUnsavedChanges {
		s.saveInBackground()
	}
}

func (s *Scheduler) saveInBackground() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.save(context.Background())
	}()
}

// Stop drops the pending timer and waits for background saves.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
	s.background.Wait()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{IsSaving: s.saving, HasUnsavedChanges: s.dirty, Error: s.errMsg}
	if !s.lastSaved.IsZero() {
		t := s.lastSaved
		st.LastSaved = &t
	}
	return st
}

func (s *Scheduler) save(ctx context.Context) {
	s.mu.Lock()
	if s.saving || s.documentID == "" || s.pending.Content == s.baseline {
		s.mu.Unlock()
		return
	}
	s.saving = true
	snap := s.pending
	documentID := s.documentID
	s.mu.Unlock()

	words, chars := plaintext.SimpleCounts(snap.Content)
	err := s.saver.SaveContent(ctx, Payload{
		DocumentID:     documentID,
		Title:          snap.Title,
		Content:        snap.Content,
		ContentHTML:    snap.ContentHTML,
		WordCount:      words,
		CharacterCount: chars,
		SavedAt:        s.now(),
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.errMsg = FailedMessage
		s.log.WithError(err).WithField("document_id", documentID).Warn("autosave failed")
		return
	}
	if documentID != s.documentID {
		return
	}
	s.baseline = snap.Content
	s.lastSaved = s.now()
	s.errMsg = ""
	s.dirty = s.pending.Content != snap.Content
	if s.dirty && s.timer == nil && s.enabled {
		s.scheduleLocked()
	}
}
