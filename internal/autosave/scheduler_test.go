package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 40 * time.Millisecond

type recordingSaver struct {
	mu      sync.Mutex
	calls   []Payload
	err     error
	release chan struct{}
}

func (r *recordingSaver) SaveContent(_ context.Context, p Payload) error {
	r.mu.Lock()
	r.calls = append(r.calls, p)
	release := r.release
	err := r.err
	r.mu.Unlock()
	if release != nil {
		<-release
	}
	return err
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingSaver) last() Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func (r *recordingSaver) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func TestDebounceCoalescesToLastContent(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, "doc-1", WithInterval(testInterval))
	defer s.Stop()

	for _, content := range []string{"H", "He", "Hel", "Hello world"} {
		s.Change(Snapshot{Title: "Notes", Content: content})
		time.Sleep(testInterval / 4)
	}

	require.Eventually(t, func() bool { return saver.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * testInterval)
	assert.Equal(t, 1, saver.count())

	p := saver.last()
	assert.Equal(t, "doc-1", p.DocumentID)
	assert.Equal(t, "Hello world", p.Content)
	assert.Equal(t, "Notes", p.Title)
	assert.Equal(t, 2, p.WordCount)
	assert.Equal(t, 11, p.CharacterCount)

	st := s.Status()
	assert.False(t, st.HasUnsavedChanges)
	assert.NotNil(t, st.LastSaved)
	assert.Empty(t, st.Error)
}

func TestNoRedundantSave(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, "doc-1", WithInterval(time.Hour))
	s.Reset("doc-1", Snapshot{Content: "already saved"})

	s.Change(Snapshot{Content: "already saved"})
	s.SaveNow(context.Background())
	assert.Zero(t, saver.count())
	assert.False(t, s.Status().HasUnsavedChanges)

	s.Change(Snapshot{Content: "new text"})
	s.SaveNow(context.Background())
	s.SaveNow(context.Background())
	assert.Equal(t, 1, saver.count())
}

func TestInFlightGuardSkipsSecondSave(t *testing.T) {
	saver := &recordingSaver{release: make(chan struct{})}
	s := New(saver, "doc-1", WithInterval(time.Hour))

	s.Change(Snapshot{Content: "first"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SaveNow(context.Background())
	}()
	require.Eventually(t, func() bool { return s.Status().IsSaving }, time.Second, time.Millisecond)

	s.Change(Snapshot{Content: "second"})
	st := s.SaveNow(context.Background())
	assert.Equal(t, 1, saver.count())
	assert.True(t, st.HasUnsavedChanges)
	assert.True(t, st.IsSaving)

	close(saver.release)
	<-done

	assert.True(t, s.Status().HasUnsavedChanges)
	s.SaveNow(context.Background())
	assert.Equal(t, 2, saver.count())
	assert.Equal(t, "second", saver.last().Content)
	assert.False(t, s.Status().HasUnsavedChanges)
}

func TestTimerFiringDuringSaveRetriesAfterwards(t *testing.T) {
	saver := &recordingSaver{release: make(chan struct{})}
	s := New(saver, "doc-1", WithInterval(testInterval))
	defer s.Stop()

	s.Change(Snapshot{Content: "first"})
	require.Eventually(t, func() bool { return s.Status().IsSaving }, time.Second, time.Millisecond)

	s.Change(Snapshot{Content: "second"})
	time.Sleep(3 * testInterval)
	assert.Equal(t, 1, saver.count())

	close(saver.release)
	require.Eventually(t, func() bool { return saver.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "second", saver.last().Content)
	require.Eventually(t, func() bool { return !s.Status().HasUnsavedChanges }, time.Second, 5*time.Millisecond)
}

func TestFailureKeepsChangesAndReportsError(t *testing.T) {
	saver := &recordingSaver{err: errors.New("connection reset")}
	s := New(saver, "doc-1", WithInterval(time.Hour))

	s.Change(Snapshot{Content: "keep me"})
	st := s.SaveNow(context.Background())
	assert.Equal(t, FailedMessage, st.Error)
	assert.True(t, st.HasUnsavedChanges)
	assert.Nil(t, st.LastSaved)

	saver.setErr(nil)
	st = s.SaveNow(context.Background())
	assert.Empty(t, st.Error)
	assert.False(t, st.HasUnsavedChanges)
	assert.Equal(t, 2, saver.count())
	assert.Equal(t, "keep me", saver.last().Content)
}

func TestDisabledOrUntargetedIgnoresChanges(t *testing.T) {
	saver := &recordingSaver{}

	disabled := New(saver, "doc-1", WithInterval(testInterval), WithEnabled(false))
	disabled.Change(Snapshot{Content: "text"})
	assert.False(t, disabled.Status().HasUnsavedChanges)

	untargeted := New(saver, "", WithInterval(testInterval))
	untargeted.Change(Snapshot{Content: "text"})
	untargeted.SaveNow(context.Background())
	assert.False(t, untargeted.Status().HasUnsavedChanges)

	time.Sleep(3 * testInterval)
	assert.Zero(t, saver.count())
}

func TestMarkSavedCancelsPendingSave(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, "doc-1", WithInterval(testInterval))

	s.Change(Snapshot{Content: "persisted elsewhere"})
	s.MarkSaved("persisted elsewhere")
	assert.False(t, s.Status().HasUnsavedChanges)

	time.Sleep(3 * testInterval)
	assert.Zero(t, saver.count())
}

func TestRevertToBaselineClearsPendingSave(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, "doc-1", WithInterval(testInterval))
	defer s.Stop()

	s.Change(Snapshot{Content: "Hello"})
	assert.True(t, s.Status().HasUnsavedChanges)
	s.Change(Snapshot{Content: ""})
	assert.False(t, s.Status().HasUnsavedChanges)
	assert.False(t, s.PageExit())

	time.Sleep(3 * testInterval)
	assert.Zero(t, saver.count())
	assert.Empty(t, s.Status().Error)
}

func TestRevertAfterFailureClearsError(t *testing.T) {
	saver := &recordingSaver{err: errors.New("offline")}
	s := New(saver, "doc-1", WithInterval(time.Hour))
	defer s.Stop()

	s.Change(Snapshot{Content: "typo"})
	st := s.SaveNow(context.Background())
	require.Equal(t, FailedMessage, st.Error)

	s.Change(Snapshot{Content: ""})
	st = s.Status()
	assert.False(t, st.HasUnsavedChanges)
	assert.Empty(t, st.Error)
}

func TestPageExitWarnsAndSaves(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, "doc-1", WithInterval(time.Hour))

	assert.False(t, s.PageExit())

	s.Change(Snapshot{Content: "unsaved words"})
	assert.True(t, s.PageExit())
	s.Stop()
	assert.Equal(t, 1, saver.count())
	assert.False(t, s.Status().HasUnsavedChanges)
}

func TestVisibilityHiddenSaves(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, "doc-1", WithInterval(time.Hour))

	s.Change(Snapshot{Content: "tab hidden"})
	s.VisibilityHidden()
	s.Stop()
	assert.Equal(t, 1, saver.count())
}
