// Package docstate holds the document currently being edited in a workspace,
// its save status and the list of the owner's documents.
//
// Local mutations are synchronous and optimistic. Remote operations go through
// Remote and only touch local state as documented per method.
package docstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inkwell/api/internal/plaintext"
	"inkwell/api/internal/store"

	"github.com/sirupsen/logrus"
)

type SaveStatus string

const (
	StatusSaved   SaveStatus = "saved"
	StatusSaving  SaveStatus = "saving"
	StatusUnsaved SaveStatus = "unsaved"
)

// Remote is the slice of the document store the session state needs.
type Remote interface {
	CreateDocument(ctx context.Context, doc store.Document) (store.Document, error)
	GetDocument(ctx context.Context, userID, id string) (store.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]store.Document, error)
	UpdateDocument(ctx context.Context, userID, id string, patch store.DocumentPatch) (store.Document, error)
	DeleteDocument(ctx context.Context, userID, id string) error
}

type State struct {
	remote Remote
	userID string
	log    logrus.FieldLogger
	now    func() time.Time

	mu        sync.Mutex
	current   *store.Document
	documents []store.Document
	status    SaveStatus
	revision  uint64
	listeners []func(Event)
}

type Option func(*State)

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *State) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New returns an empty state for userID. Reads and writes through remote are
// scoped to that user.
func New(remote Remote, userID string, opts ...Option) *State {
	s := &State{
		remote: remote,
		userID: userID,
		log:    logrus.StandardLogger(),
		now:    func() time.Time { return time.Now().UTC() },
		status: StatusSaved,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *State) UserID() string { return s.userID }

// Current returns a copy of the current document.
func (s *State) Current() (store.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return store.Document{}, false
	}
	return *s.current, true
}

func (s *State) Documents() []store.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Document, len(s.documents))
	copy(out, s.documents)
	return out
}

func (s *State) Status() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetCurrent replaces the current document. The save status is left alone.
func (s *State) SetCurrent(doc *store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc == nil {
		s.current = nil
		return
	}
	cp := *doc
	s.current = &cp
}

// UpdateTitle is ignored when there is no current document.
func (s *State) UpdateTitle(title string) {
	s.UpdateFields(store.DocumentPatch{Title: &title})
}

// UpdateFields shallow-merges patch into the current document and marks it
// unsaved. It is ignored when there is no current document.
func (s *State) UpdateFields(patch store.DocumentPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	now := s.now()
	patch.UpdatedAt = &now
	patch.Apply(s.current)
	s.status = StatusUnsaved
	s.revision++
}

// Create inserts a new draft for userID and makes it current. Failures are
// logged and reported as (nil, false); state is left unchanged.
func (s *State) Create(ctx context.Context, userID string) (*store.Document, bool) {
	created, err := s.remote.CreateDocument(ctx, store.Document{
		UserID: userID,
		Title:  store.DefaultTitle,
		Status: store.StatusDraft,
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("create document failed")
		return nil, false
	}

	s.mu.Lock()
	cp := created
	s.current = &cp
	s.documents = append([]store.Document{created}, s.documents...)
	s.status = StatusSaved
	s.revision++
	s.mu.Unlock()

	out := created
	return &out, true
}

// Save persists the current document. On failure the status reverts to
// unsaved, a SaveError is emitted and the error is returned. Content is never
// modified by a failed save.
func (s *State) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil
	}
	doc := *s.current
	revision := s.revision
	s.status = StatusSaving
	s.mu.Unlock()

	words, chars := plaintext.Counts(doc.Content)
	now := s.now()
	updated, err := s.remote.UpdateDocument(ctx, s.userID, doc.ID, store.DocumentPatch{
		Title:          &doc.Title,
		Content:        &doc.Content,
		ContentHTML:    &doc.ContentHTML,
		WordCount:      &words,
		CharacterCount: &chars,
		Status:         &doc.Status,
		IsFavorite:     &doc.IsFavorite,
		IsPinned:       &doc.IsPinned,
		WorkspaceID:    doc.WorkspaceID,
		TemplateID:     doc.TemplateID,
		UpdatedAt:      &now,
	})
	if err != nil {
		s.mu.Lock()
		s.status = StatusUnsaved
		s.mu.Unlock()
		s.emit(SaveError{Message: err.Error(), DocumentID: doc.ID})
		return fmt.Errorf("save document: %w", err)
	}

	s.mu.Lock()
	s.applySavedLocked(updated)
	if s.revision == revision {
		s.status = StatusSaved
	} else {
		s.status = StatusUnsaved
	}
	s.mu.Unlock()
	return nil
}

// MarkSaved records that saved was persisted by another path. The status
// becomes saved only if the current document still holds the saved title and
// content.
func (s *State) MarkSaved(saved store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySavedLocked(saved)
	if s.current != nil && s.current.ID == saved.ID &&
		s.current.Content == saved.Content && s.current.Title == saved.Title {
		s.status = StatusSaved
	}
}

func (s *State) applySavedLocked(saved store.Document) {
	if s.current != nil && s.current.ID == saved.ID {
		s.current.WordCount = saved.WordCount
		s.current.CharacterCount = saved.CharacterCount
		s.current.UpdatedAt = saved.UpdatedAt
	}
	for i := range s.documents {
		if s.documents[i].ID == saved.ID {
			s.documents[i] = saved
		}
	}
}

// Load fetches id and makes it current. The status is reset to saved whatever
// the outcome; on failure the current document becomes nil.
func (s *State) Load(ctx context.Context, id string) (*store.Document, error) {
	doc, err := s.remote.GetDocument(ctx, s.userID, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusSaved
	s.revision++
	if err != nil {
		s.current = nil
		return nil, fmt.Errorf("load document: %w", err)
	}
	s.current = &doc
	out := doc
	return &out, nil
}

// LoadAll replaces the document list. A failure clears it.
func (s *State) LoadAll(ctx context.Context, userID string) ([]store.Document, error) {
	docs, err := s.remote.ListDocuments(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.documents = nil
		return nil, fmt.Errorf("load documents: %w", err)
	}
	s.documents = docs
	out := make([]store.Document, len(docs))
	copy(out, docs)
	return out, nil
}

// Delete removes id remotely and then locally. Local state is untouched when
// the remote delete fails.
func (s *State) Delete(ctx context.Context, id string) error {
	if err := s.remote.DeleteDocument(ctx, s.userID, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.documents[:0]
	for _, doc := range s.documents {
		if doc.ID != id {
			kept = append(kept, doc)
		}
	}
	s.documents = kept
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	return nil
}
