package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "inkwell.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s Store, email string) User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), User{Email: email, DisplayName: "Avery", PasswordHash: "x"})
	require.NoError(t, err)
	return user
}

func TestGormDocumentLifecycle(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "avery@example.com")
	other := seedUser(t, s, "blake@example.com")

	doc, err := s.CreateDocument(ctx, Document{UserID: owner.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, DefaultTitle, doc.Title)
	assert.Equal(t, StatusDraft, doc.Status)

	title := "Quarterly plan"
	content := "Hello world"
	words, chars := 2, 11
	updated, err := s.UpdateDocument(ctx, owner.ID, doc.ID, DocumentPatch{
		Title:          &title,
		Content:        &content,
		WordCount:      &words,
		CharacterCount: &chars,
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 11, updated.CharacterCount)

	_, err = s.GetDocument(ctx, other.ID, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound, "documents are scoped by owner")

	_, err = s.UpdateDocument(ctx, other.ID, doc.ID, DocumentPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := s.SearchDocuments(ctx, owner.ID, "hello", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, s.DeleteDocument(ctx, owner.ID, doc.ID))
	assert.ErrorIs(t, s.DeleteDocument(ctx, owner.ID, doc.ID), ErrNotFound)
}

func TestGormListDocumentsNewestFirst(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "avery@example.com")

	first, err := s.CreateDocument(ctx, Document{UserID: owner.ID, Title: "first"})
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, Document{UserID: owner.ID, Title: "second"})
	require.NoError(t, err)

	title := "first, edited"
	_, err = s.UpdateDocument(ctx, owner.ID, first.ID, DocumentPatch{Title: &title})
	require.NoError(t, err)

	docs, err := s.ListDocuments(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, first.ID, docs[0].ID)
}

func TestGormCreateVersionNumbersSequentially(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "avery@example.com")
	doc, err := s.CreateDocument(ctx, Document{UserID: owner.ID})
	require.NoError(t, err)

	versions, err := s.ListVersions(ctx, owner.ID, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	v1, err := s.CreateVersion(ctx, Version{DocumentID: doc.ID, UserID: owner.ID, Content: "A"})
	require.NoError(t, err)
	v2, err := s.CreateVersion(ctx, Version{DocumentID: doc.ID, UserID: owner.ID, Content: "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, v1.VersionNumber+1, v2.VersionNumber)

	versions, err = s.ListVersions(ctx, owner.ID, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber)

	got, err := s.GetVersion(ctx, owner.ID, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Content)

	_, err = s.CreateVersion(ctx, Version{DocumentID: "missing", UserID: owner.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormCreateVersionConcurrentSnapshotsStayUnique(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "avery@example.com")
	doc, err := s.CreateDocument(ctx, Document{UserID: owner.ID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.CreateVersion(ctx, Version{DocumentID: doc.ID, UserID: owner.ID, Content: "x"})
		}()
	}
	wg.Wait()

	versions, err := s.ListVersions(ctx, owner.ID, doc.ID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, v := range versions {
		assert.False(t, seen[v.VersionNumber], "duplicate version number %d", v.VersionNumber)
		seen[v.VersionNumber] = true
	}
}

func TestGormNotifications(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "avery@example.com")

	n, err := s.InsertNotification(ctx, Notification{UserID: owner.ID, Kind: "save_error", Message: "Failed"})
	require.NoError(t, err)

	require.NoError(t, s.MarkNotificationRead(ctx, owner.ID, n.ID))
	require.NoError(t, s.MarkNotificationRead(ctx, owner.ID, n.ID), "marking twice is idempotent")
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "someone-else", n.ID), ErrNotFound)

	items, err := s.ListNotifications(ctx, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotNil(t, items[0].ReadAt)
}

func TestDocumentPatchApply(t *testing.T) {
	doc := Document{Title: "old", Content: "keep", IsPinned: true}
	title := "new"
	fav := true
	DocumentPatch{Title: &title, IsFavorite: &fav}.Apply(&doc)

	assert.Equal(t, "new", doc.Title)
	assert.Equal(t, "keep", doc.Content)
	assert.True(t, doc.IsFavorite)
	assert.True(t, doc.IsPinned)
}
