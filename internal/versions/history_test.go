package versions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"inkwell/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu        sync.Mutex
	versions  []store.Version
	createErr error
}

func (f *fakeRemote) ListVersions(_ context.Context, userID, documentID string) ([]store.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Version
	for _, v := range f.versions {
		if v.DocumentID == documentID && v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (f *fakeRemote) GetVersion(_ context.Context, userID, documentID string, number int) (store.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions {
		if v.DocumentID == documentID && v.UserID == userID && v.VersionNumber == number {
			return v, nil
		}
	}
	return store.Version{}, store.ErrNotFound
}

func (f *fakeRemote) CreateVersion(_ context.Context, v store.Version) (store.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return store.Version{}, f.createErr
	}
	next := 1
	for _, existing := range f.versions {
		if existing.DocumentID == v.DocumentID && existing.VersionNumber >= next {
			next = existing.VersionNumber + 1
		}
	}
	v.ID = store.NewID()
	v.VersionNumber = next
	f.versions = append(f.versions, v)
	return v, nil
}

type liveDocument struct {
	mu      sync.Mutex
	content string
	err     error
}

func (d *liveDocument) apply(_ context.Context, target store.Version) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.content = target.Content
	return nil
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []store.Version
}

func (r *recordingArchiver) ArchiveVersion(_ context.Context, v store.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, v)
	return nil
}

func TestListEmptyIsNotAnError(t *testing.T) {
	h := New(&fakeRemote{}, "user-1", "doc-1", (&liveDocument{}).apply)
	list, err := h.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestRestoreFromNoVersions(t *testing.T) {
	remote := &fakeRemote{}
	live := &liveDocument{content: "A"}
	archiver := &recordingArchiver{}
	h := New(remote, "user-1", "doc-1", live.apply, WithArchiver(archiver))

	result, err := h.Restore(context.Background(), store.Version{Content: "B", VersionNumber: 0}, "A", "<p>A</p>")
	require.NoError(t, err)
	h.Wait()

	require.NotNil(t, result.Backup)
	assert.Equal(t, 1, result.Backup.VersionNumber)
	assert.Equal(t, "A", result.Backup.Content)
	assert.Equal(t, "<p>A</p>", result.Backup.ContentHTML)
	assert.Equal(t, "B", live.content)

	list, err := h.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Content)
	require.Len(t, archiver.archived, 1)
}

func TestSuccessiveRestoresNumberMonotonically(t *testing.T) {
	remote := &fakeRemote{}
	live := &liveDocument{content: "draft"}
	h := New(remote, "user-1", "doc-1", live.apply)

	first, err := h.Restore(context.Background(), store.Version{Content: "one"}, "draft", "")
	require.NoError(t, err)
	second, err := h.Restore(context.Background(), store.Version{Content: "two"}, live.content, "")
	require.NoError(t, err)

	assert.Equal(t, first.Backup.VersionNumber+1, second.Backup.VersionNumber)
	assert.Equal(t, "one", second.Backup.Content)
	assert.Equal(t, "two", live.content)
}

func TestRestoreSkipsBackupWithoutContent(t *testing.T) {
	remote := &fakeRemote{}
	live := &liveDocument{}
	h := New(remote, "user-1", "doc-1", live.apply)

	result, err := h.Restore(context.Background(), store.Version{Content: "B"}, "", "")
	require.NoError(t, err)
	assert.Nil(t, result.Backup)
	assert.Empty(t, remote.versions)
	assert.Equal(t, "B", live.content)
}

func TestRestoreBacksUpWhitespaceContent(t *testing.T) {
	remote := &fakeRemote{}
	live := &liveDocument{}
	h := New(remote, "user-1", "doc-1", live.apply)

	result, err := h.Restore(context.Background(), store.Version{Content: "B"}, "  \n", "")
	require.NoError(t, err)
	require.NotNil(t, result.Backup)
	assert.Equal(t, "  \n", result.Backup.Content)
	assert.Equal(t, "B", live.content)
}

func TestRestoreBackupFailureAborts(t *testing.T) {
	remote := &fakeRemote{createErr: errors.New("insert failed")}
	live := &liveDocument{content: "A"}
	h := New(remote, "user-1", "doc-1", live.apply)

	_, err := h.Restore(context.Background(), store.Version{Content: "B"}, "A", "")
	require.Error(t, err)
	assert.Equal(t, "A", live.content)
}

func TestRestoreApplyFailureIsPending(t *testing.T) {
	remote := &fakeRemote{}
	live := &liveDocument{content: "A", err: errors.New("editor closed")}
	h := New(remote, "user-1", "doc-1", live.apply)

	target := store.Version{Content: "B", VersionNumber: 7}
	_, err := h.Restore(context.Background(), target, "A", "")

	var pending *RestorePendingError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, "A", pending.Backup.Content)
	assert.Equal(t, 7, pending.Target.VersionNumber)
	assert.Len(t, remote.versions, 1)

	live.err = nil
	result, err := h.RetryApply(context.Background(), pending)
	require.NoError(t, err)
	assert.Equal(t, "B", live.content)
	assert.Equal(t, pending.Backup.ID, result.Backup.ID)
	assert.Len(t, remote.versions, 1)
}

func TestPreviewSelectsWithoutWriting(t *testing.T) {
	remote := &fakeRemote{}
	h := New(remote, "user-1", "doc-1", (&liveDocument{}).apply)
	_, err := remote.CreateVersion(context.Background(), store.Version{DocumentID: "doc-1", UserID: "user-1", Content: "old"})
	require.NoError(t, err)

	v, err := h.Preview(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "old", v.Content)
	selected, ok := h.Selected()
	require.True(t, ok)
	assert.Equal(t, "old", selected.Content)
	assert.Len(t, remote.versions, 1)

	_, err = h.Preview(context.Background(), 9)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLabels(t *testing.T) {
	list := []store.Version{{VersionNumber: 3}, {VersionNumber: 2}, {VersionNumber: 1}}
	entries := Labelled(list)
	require.Len(t, entries, 3)
	assert.Equal(t, LabelLatest, entries[0].Label)
	assert.Equal(t, "2", entries[1].Label)
	assert.Equal(t, LabelOriginal, entries[2].Label)

	single := Labelled([]store.Version{{VersionNumber: 1}})
	assert.Equal(t, LabelLatest, single[0].Label)
}
