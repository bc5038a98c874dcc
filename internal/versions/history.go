// Package versions lists, previews and restores content snapshots of a
// document.
package versions

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"inkwell/api/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	LabelLatest   = "Latest"
	LabelOriginal = "Original"
)

type Remote interface {
	ListVersions(ctx context.Context, userID, documentID string) ([]store.Version, error)
	GetVersion(ctx context.Context, userID, documentID string, number int) (store.Version, error)
	// CreateVersion assigns the next version number.
	CreateVersion(ctx context.Context, version store.Version) (store.Version, error)
}

// ApplyFunc replaces the live document content with target.
type ApplyFunc func(ctx context.Context, target store.Version) error

// Archiver receives every snapshot created by a restore. It runs after the
// restore has returned and its errors are only logged.
type Archiver interface {
	ArchiveVersion(ctx context.Context, version store.Version) error
}

// RestorePendingError means the backup snapshot was written but applying the
// target failed. RetryApply can be called with it.
type RestorePendingError struct {
	Backup store.Version
	Target store.Version
	Err    error
}

func (e *RestorePendingError) Error() string {
	return fmt.Sprintf("backup saved as version %d, restore of version %d pending: %v",
		e.Backup.VersionNumber, e.Target.VersionNumber, e.Err)
}

func (e *RestorePendingError) Unwrap() error { return e.Err }

type RestoreResult struct {
	Backup   *store.Version `json:"backup,omitempty"`
	Restored store.Version  `json:"restored"`
}

type Entry struct {
	store.Version
	Label string `json:"label"`
}

type History struct {
	remote     Remote
	userID     string
	documentID string
	apply      ApplyFunc
	archiver   Archiver
	log        logrus.FieldLogger

	mu       sync.Mutex
	selected *store.Version
	archive  sync.WaitGroup
}

type Option func(*History)

func WithArchiver(a Archiver) Option {
	return func(h *History) { h.archiver = a }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(h *History) { h.log = log }
}

func New(remote Remote, userID, documentID string, apply ApplyFunc, opts ...Option) *History {
	h := &History{
		remote:     remote,
		userID:     userID,
		documentID: documentID,
		apply:      apply,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *History) DocumentID() string { return h.documentID }

// List returns the snapshots newest first. No snapshots is not an error.
func (h *History) List(ctx context.Context) ([]store.Version, error) {
	list, err := h.remote.ListVersions(ctx, h.userID, h.documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	if list == nil {
		list = []store.Version{}
	}
	return list, nil
}

// Preview selects a snapshot for display. Nothing is written.
func (h *History) Preview(ctx context.Context, number int) (store.Version, error) {
	v, err := h.remote.GetVersion(ctx, h.userID, h.documentID, number)
	if err != nil {
		return store.Version{}, fmt.Errorf("preview version %d: %w", number, err)
	}
	h.mu.Lock()
	h.selected = &v
	h.mu.Unlock()
	return v, nil
}

func (h *History) Selected() (store.Version, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.selected == nil {
		return store.Version{}, false
	}
	return *h.selected, true
}

func (h *History) ClearSelection() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selected = nil
}

// Restore snapshots the current content, then applies target. The backup is
// skipped only when the current content is empty; whitespace is kept. If the apply step fails after a
// backup was written the error is a *RestorePendingError.
func (h *History) Restore(ctx context.Context, target store.Version, currentContent, currentHTML string) (RestoreResult, error) {
	var result RestoreResult
	if currentContent != "" {
		backup, err := h.remote.CreateVersion(ctx, store.Version{
			DocumentID:  h.documentID,
			UserID:      h.userID,
			Content:     currentContent,
			ContentHTML: currentHTML,
		})
		if err != nil {
			return RestoreResult{}, fmt.Errorf("back up current content: %w", err)
		}
		result.Backup = &backup
		h.archiveAsync(backup)
	}

	if err := h.apply(ctx, target); err != nil {
		if result.Backup != nil {
			return result, &RestorePendingError{Backup: *result.Backup, Target: target, Err: err}
		}
		return RestoreResult{}, fmt.Errorf("apply version %d: %w", target.VersionNumber, err)
	}

	h.ClearSelection()
	result.Restored = target
	return result, nil
}

// RetryApply re-runs only the apply step of a restore whose backup already
// succeeded.
func (h *History) RetryApply(ctx context.Context, pending *RestorePendingError) (RestoreResult, error) {
	if err := h.apply(ctx, pending.Target); err != nil {
		return RestoreResult{}, &RestorePendingError{Backup: pending.Backup, Target: pending.Target, Err: err}
	}
	backup := pending.Backup
	return RestoreResult{Backup: &backup, Restored: pending.Target}, nil
}

// Wait blocks until queued archive writes are done.
func (h *History) Wait() {
	h.archive.Wait()
}

func (h *History) archiveAsync(v store.Version) {
	if h.archiver == nil {
		return
	}
	h.archive.Add(1)
	go func() {
		defer h.archive.Done()
		if err := h.archiver.ArchiveVersion(context.Background(), v); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"document_id": v.DocumentID,
				"version":     v.VersionNumber,
			}).Warn("archive version failed")
		}
	}()
}

// Label names a snapshot within a newest-first list.
func Label(list []store.Version, v store.Version) string {
	if len(list) == 0 {
		return strconv.Itoa(v.VersionNumber)
	}
	if v.VersionNumber == list[0].VersionNumber {
		return LabelLatest
	}
	if v.VersionNumber == list[len(list)-1].VersionNumber {
		return LabelOriginal
	}
	return strconv.Itoa(v.VersionNumber)
}

func Labelled(list []store.Version) []Entry {
	out := make([]Entry, 0, len(list))
	for _, v := range list {
		out = append(out, Entry{Version: v, Label: Label(list, v)})
	}
	return out
}
