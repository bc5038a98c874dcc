// Package workspace binds one client session to its document core: the
// session state, the editor buffer, the autosave scheduler and the version
// history of the open document.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"inkwell/api/internal/autosave"
	"inkwell/api/internal/docstate"
	"inkwell/api/internal/editor"
	"inkwell/api/internal/plaintext"
	"inkwell/api/internal/store"
	"inkwell/api/internal/versions"

	"github.com/sirupsen/logrus"
)

const KindSaveError = "save_error"

var (
	ErrNoDocument       = errors.New("no document open")
	ErrNoPendingRestore = errors.New("no restore pending")
	ErrSaveFailed       = errors.New("save failed")
	// ErrUnsavedChanges means the open document could not be saved, so it
	// was not swapped out.
	ErrUnsavedChanges = errors.New("open document has unsaved changes")
)

// Store is the slice of the persistence layer a workspace writes through.
type Store interface {
	docstate.Remote
	versions.Remote
	InsertNotification(ctx context.Context, n store.Notification) (store.Notification, error)
}

// Indexer is told about persisted documents. search.Service implements it.
type Indexer interface {
	IndexDocument(doc store.Document)
	DeleteDocument(id string)
}

// View is what clients see of the open document.
type View struct {
	Document   store.Document         `json:"document"`
	SaveStatus docstate.SaveStatus    `json:"saveStatus"`
	Autosave   autosave.Status        `json:"autosave"`
	Selection  editor.SelectionFormat `json:"selection"`
}

// ContentChange is a content-change event from the client editor.
type ContentChange struct {
	Title       *string `json:"title,omitempty"`
	Content     string  `json:"content"`
	ContentHTML string  `json:"contentHtml"`
}

// FormatChange toggles formatting on the selection of the editor.
type FormatChange struct {
	Bold      bool   `json:"bold"`
	Italic    bool   `json:"italic"`
	Underline bool   `json:"underline"`
	Alignment string `json:"alignment,omitempty"`
}

type Workspace struct {
	sessionID string
	userID    string
	store     Store
	indexer   Indexer
	archiver  versions.Archiver
	log       logrus.FieldLogger

	state    *docstate.State
	autosave *autosave.Scheduler

	mu       sync.Mutex
	buffer   *editor.Buffer
	history  *versions.History
	pending  *versions.RestorePendingError
	lastUsed time.Time
	notify   sync.WaitGroup

	// metaDirty is set while title, status or flag edits are not persisted.
	// The autosave path only tracks content.
	metaDirty atomic.Bool
}

func newWorkspace(sessionID, userID string, deps Deps) *Workspace {
	log := deps.Logger.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID})
	ws := &Workspace{
		sessionID: sessionID,
		userID:    userID,
		store:     deps.Store,
		indexer:   deps.Indexer,
		archiver:  deps.Archiver,
		log:       log,
		buffer:    editor.NewBuffer(""),
		lastUsed:  deps.Now(),
	}
	ws.state = docstate.New(deps.Store, userID, docstate.WithLogger(log))
	ws.autosave = autosave.New(autosave.SaverFunc(ws.persist), "",
		autosave.WithInterval(deps.AutosaveInterval),
		autosave.WithLogger(log),
	)
	ws.state.Subscribe(ws.onEvent)
	return ws
}

func (w *Workspace) SessionID() string { return w.sessionID }
func (w *Workspace) UserID() string    { return w.userID }

func (w *Workspace) LastUsed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastUsed = now
	w.mu.Unlock()
}

// List loads the owner's documents, newest first.
func (w *Workspace) List(ctx context.Context) ([]store.Document, error) {
	return w.state.LoadAll(ctx, w.userID)
}

// Create inserts a new draft and opens it.
func (w *Workspace) Create(ctx context.Context) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(ctx); err != nil {
		return View{}, err
	}

	doc, ok := w.state.Create(ctx, w.userID)
	if !ok {
		return View{}, fmt.Errorf("create document failed")
	}
	w.attachLocked(*doc)
	if w.indexer != nil {
		w.indexer.IndexDocument(*doc)
	}
	return w.viewLocked(), nil
}

// Open loads id and makes it the document of this workspace. Pending changes
// of the previously open document are flushed first; if that fails the
// previous document stays open and ErrUnsavedChanges is returned.
func (w *Workspace) Open(ctx context.Context, id string) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openLocked(ctx, id); err != nil {
		return View{}, err
	}
	return w.viewLocked(), nil
}

func (w *Workspace) openLocked(ctx context.Context, id string) error {
	if err := w.flushLocked(ctx); err != nil {
		return err
	}
	doc, err := w.state.Load(ctx, id)
	if err != nil {
		w.detachLocked()
		return err
	}
	w.attachLocked(*doc)
	return nil
}

// ensureLocked opens id unless it is already the current document.
func (w *Workspace) ensureLocked(ctx context.Context, id string) error {
	if cur, ok := w.state.Current(); ok && cur.ID == id {
		return nil
	}
	return w.openLocked(ctx, id)
}

func (w *Workspace) attachLocked(doc store.Document) {
	editor.ReplaceAll(w.buffer, doc.Content)
	w.autosave.Reset(doc.ID, autosave.Snapshot{Title: doc.Title, Content: doc.Content, ContentHTML: doc.ContentHTML})
	opts := []versions.Option{versions.WithLogger(w.log)}
	if w.archiver != nil {
		opts = append(opts, versions.WithArchiver(w.archiver))
	}
	w.history = versions.New(w.store, w.userID, doc.ID, w.applyLocked, opts...)
	w.pending = nil
	w.metaDirty.Store(false)
}

func (w *Workspace) detachLocked() {
	editor.ReplaceAll(w.buffer, "")
	w.autosave.Reset("", autosave.Snapshot{})
	w.history = nil
	w.pending = nil
	w.metaDirty.Store(false)
}

// dirtyLocked reports whether the open document holds edits the store has
// not seen.
func (w *Workspace) dirtyLocked() bool {
	if _, ok := w.state.Current(); !ok {
		return false
	}
	return w.autosave.Status().HasUnsavedChanges ||
		w.state.Status() == docstate.StatusUnsaved ||
		w.metaDirty.Load()
}

// flushLocked saves the open document when it is dirty. On failure the
// document and its in-memory edits stay attached.
func (w *Workspace) flushLocked(ctx context.Context) error {
	if !w.dirtyLocked() {
		return nil
	}
	if err := w.saveLocked(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsavedChanges, err)
	}
	return nil
}

// Flush saves pending changes when id is the open document.
func (w *Workspace) Flush(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.state.Current(); ok && cur.ID == id {
		return w.flushLocked(ctx)
	}
	return nil
}

// View returns the state of id, opening it if needed.
func (w *Workspace) View(ctx context.Context, id string) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return View{}, err
	}
	return w.viewLocked(), nil
}

func (w *Workspace) viewLocked() View {
	doc, _ := w.state.Current()
	return View{
		Document:   doc,
		SaveStatus: w.state.Status(),
		Autosave:   w.autosave.Status(),
		Selection:  w.buffer.Selection().Format(),
	}
}

// Update shallow-merges patch into the open document. Content edits go
// through the autosave debounce; title, status and flag edits are saved
// right away.
func (w *Workspace) Update(ctx context.Context, id string, patch store.DocumentPatch) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return View{}, err
	}
	before, _ := w.state.Current()
	if patch.Content != nil {
		editor.ReplaceAll(w.buffer, *patch.Content)
		content := w.buffer.Serialize()
		patch.Content = &content
	}
	w.state.UpdateFields(patch)
	after, _ := w.state.Current()
	if metadataChanged(before, after) {
		w.metaDirty.Store(true)
		if err := w.saveLocked(ctx); err != nil {
			return w.viewLocked(), err
		}
		return w.viewLocked(), nil
	}
	w.changedLocked()
	return w.viewLocked(), nil
}

func metadataChanged(a, b store.Document) bool {
	return a.Title != b.Title ||
		a.Status != b.Status ||
		a.IsFavorite != b.IsFavorite ||
		a.IsPinned != b.IsPinned ||
		!sameRef(a.WorkspaceID, b.WorkspaceID) ||
		!sameRef(a.TemplateID, b.TemplateID)
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Change applies a content-change event from the editor.
func (w *Workspace) Change(ctx context.Context, id string, change ContentChange) (View, error) {
	return w.Update(ctx, id, store.DocumentPatch{
		Title:       change.Title,
		Content:     &change.Content,
		ContentHTML: &change.ContentHTML,
	})
}

func (w *Workspace) changedLocked() {
	doc, ok := w.state.Current()
	if !ok {
		return
	}
	w.autosave.Change(autosave.Snapshot{Title: doc.Title, Content: doc.Content, ContentHTML: doc.ContentHTML})
	if !w.autosave.Status().HasUnsavedChanges && !w.metaDirty.Load() {
		// Back at the persisted content.
		w.state.MarkSaved(doc)
	}
}

// Save persists the open document through the session state.
func (w *Workspace) Save(ctx context.Context, id string) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return View{}, err
	}
	if err := w.saveLocked(ctx); err != nil {
		return w.viewLocked(), err
	}
	return w.viewLocked(), nil
}

func (w *Workspace) saveLocked(ctx context.Context) error {
	if err := w.state.Save(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	doc, ok := w.state.Current()
	if !ok {
		return nil
	}
	w.metaDirty.Store(false)
	w.autosave.MarkSaved(doc.Content)
	if w.indexer != nil {
		w.indexer.IndexDocument(doc)
	}
	return nil
}

// Delete removes id. The workspace closes it when it was open.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, open := w.state.Current()
	if err := w.state.Delete(ctx, id); err != nil {
		return err
	}
	if open && cur.ID == id {
		w.detachLocked()
	}
	if w.indexer != nil {
		w.indexer.DeleteDocument(id)
	}
	return nil
}

func (w *Workspace) AutosaveStatus(ctx context.Context, id string) (autosave.Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return autosave.Status{}, err
	}
	return w.autosave.Status(), nil
}

func (w *Workspace) SaveNow(ctx context.Context, id string) (autosave.Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return autosave.Status{}, err
	}
	return w.autosave.SaveNow(ctx), nil
}

// Exit handles the page-exit and visibility-hidden signals. For a page exit it
// reports whether the client should warn the user. Unsaved title or flag
// edits are saved on the spot and only warn when that save fails.
func (w *Workspace) Exit(ctx context.Context, id string, hiddenOnly bool) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.state.Current(); !ok || cur.ID != id {
		return false, ErrNoDocument
	}
	if hiddenOnly {
		w.autosave.VisibilityHidden()
		return false, nil
	}
	if w.autosave.PageExit() {
		return true, nil
	}
	if w.metaDirty.Load() || w.state.Status() == docstate.StatusUnsaved {
		return w.saveLocked(ctx) != nil, nil
	}
	return false, nil
}

// Format applies formatting toggles to the editor selection.
func (w *Workspace) Format(ctx context.Context, id string, change FormatChange) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return View{}, err
	}
	sel := w.buffer.Selection()
	if change.Bold {
		sel.ToggleBold()
	}
	if change.Italic {
		sel.ToggleItalic()
	}
	if change.Underline {
		sel.ToggleUnderline()
	}
	if change.Alignment != "" {
		sel.SetAlignment(change.Alignment)
	}
	return w.viewLocked(), nil
}

// ApplyText merges generated text into the open document through the
// apply-content signal.
func (w *Workspace) ApplyText(ctx context.Context, id, text string) (View, error) {
	w.mu.Lock()
	if err := w.ensureLocked(ctx, id); err != nil {
		w.mu.Unlock()
		return View{}, err
	}
	w.mu.Unlock()

	w.state.RequestApply(text)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked(), nil
}

func (w *Workspace) onEvent(e docstate.Event) {
	switch ev := e.(type) {
	case docstate.ApplyContent:
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.state.Current(); !ok {
			return
		}
		w.buffer.InsertText(ev.Content)
		content := w.buffer.Serialize()
		w.state.UpdateFields(store.DocumentPatch{Content: &content})
		w.changedLocked()
	case docstate.SaveError:
		w.notifySaveError(ev)
	}
}

func (w *Workspace) notifySaveError(ev docstate.SaveError) {
	w.notify.Add(1)
	go func() {
		defer w.notify.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := w.store.InsertNotification(ctx, store.Notification{
			UserID:     w.userID,
			Kind:       KindSaveError,
			Message:    "Failed to save document: " + ev.Message,
			DocumentID: ev.DocumentID,
		})
		if err != nil {
			w.log.WithError(err).Warn("record save error notification")
		}
	}()
}

// persist is the autosave write path. Stored counts use the same extraction
// as an explicit save, not the raw counts of the payload.
func (w *Workspace) persist(ctx context.Context, p autosave.Payload) error {
	words, chars := plaintext.Counts(p.Content)
	saved, err := w.store.UpdateDocument(ctx, w.userID, p.DocumentID, store.DocumentPatch{
		Title:          &p.Title,
		Content:        &p.Content,
		ContentHTML:    &p.ContentHTML,
		WordCount:      &words,
		CharacterCount: &chars,
		UpdatedAt:      &p.SavedAt,
	})
	if err != nil {
		return err
	}
	if !w.metaDirty.Load() {
		w.state.MarkSaved(saved)
	}
	if w.indexer != nil {
		w.indexer.IndexDocument(saved)
	}
	return nil
}

// Versions lists the snapshots of id with display labels.
func (w *Workspace) Versions(ctx context.Context, id string) ([]versions.Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return nil, err
	}
	list, err := w.history.List(ctx)
	if err != nil {
		return nil, err
	}
	return versions.Labelled(list), nil
}

// Preview selects version number of id for display.
func (w *Workspace) Preview(ctx context.Context, id string, number int) (store.Version, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return store.Version{}, err
	}
	return w.history.Preview(ctx, number)
}

// Restore backs up the open content of id as a new snapshot, then replaces it
// with version number. When only the apply step fails the returned error is a
// *versions.RestorePendingError and RetryRestore can finish the job.
func (w *Workspace) Restore(ctx context.Context, id string, number int) (versions.RestoreResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLocked(ctx, id); err != nil {
		return versions.RestoreResult{}, err
	}
	target, err := w.history.Preview(ctx, number)
	if err != nil {
		return versions.RestoreResult{}, err
	}
	doc, _ := w.state.Current()
	result, err := w.history.Restore(ctx, target, w.buffer.Serialize(), doc.ContentHTML)
	w.pending = nil
	var pending *versions.RestorePendingError
	if errors.As(err, &pending) {
		w.pending = pending
	}
	return result, err
}

// RetryRestore re-runs the apply step of the last restore of id whose backup
// was saved.
func (w *Workspace) RetryRestore(ctx context.Context, id string) (versions.RestoreResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.state.Current(); !ok || cur.ID != id {
		return versions.RestoreResult{}, ErrNoDocument
	}
	if w.pending == nil {
		return versions.RestoreResult{}, ErrNoPendingRestore
	}
	result, err := w.history.RetryApply(ctx, w.pending)
	if err != nil {
		var pending *versions.RestorePendingError
		if errors.As(err, &pending) {
			w.pending = pending
		}
		return result, err
	}
	w.pending = nil
	return result, nil
}

// applyLocked is the restore callback. It runs with w.mu held.
func (w *Workspace) applyLocked(ctx context.Context, target store.Version) error {
	editor.ReplaceAll(w.buffer, target.Content)
	content := w.buffer.Serialize()
	html := target.ContentHTML
	w.state.UpdateFields(store.DocumentPatch{Content: &content, ContentHTML: &html})
	w.changedLocked()
	return w.saveLocked(ctx)
}

// Close flushes pending changes and waits for background work. When the flush
// fails the workspace keeps running and the error is returned.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	err := w.flushLocked(ctx)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.shutdown()
	return nil
}

func (w *Workspace) shutdown() {
	w.mu.Lock()
	history := w.history
	w.mu.Unlock()

	w.autosave.Stop()
	if history != nil {
		history.Wait()
	}
	w.notify.Wait()
}
