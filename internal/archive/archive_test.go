package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"inkwell/api/internal/store"
)

func TestArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if _, err := svc.History("doc-1", 10); !errors.Is(err, ErrNoArchive) {
		t.Fatalf("History() before archive error = %v, want ErrNoArchive", err)
	}

	for i, content := range []string{"first draft", "second draft"} {
		err := svc.ArchiveVersion(ctx, store.Version{
			DocumentID:    "doc-1",
			UserID:        "user-1",
			VersionNumber: i + 1,
			Content:       content,
			CreatedAt:     created.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("ArchiveVersion(%d) error = %v", i+1, err)
		}
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1", ".git")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Message != "version 2" {
		t.Fatalf("newest commit message = %q", history[0].Message)
	}

	snap, err := svc.Snapshot("doc-1", 1)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Content != "first draft" || snap.VersionNumber != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if _, err := svc.Snapshot("doc-1", 9); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Snapshot(9) error = %v, want ErrNotFound", err)
	}

	limited, err := svc.History("doc-1", 1)
	if err != nil {
		t.Fatalf("History(limit) error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestArchiveConcurrentDocuments(t *testing.T) {
	svc := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			docID := "doc-a"
			if n%2 == 1 {
				docID = "doc-b"
			}
			errs <- svc.ArchiveVersion(ctx, store.Version{DocumentID: docID, UserID: "user-1", VersionNumber: n + 1, Content: "x"})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ArchiveVersion() error = %v", err)
		}
	}

	for _, docID := range []string{"doc-a", "doc-b"} {
		history, err := svc.History(docID, 0)
		if err != nil {
			t.Fatalf("History(%s) error = %v", docID, err)
		}
		if len(history) != 4 {
			t.Fatalf("History(%s) = %d commits, want 4", docID, len(history))
		}
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Avery Stone"); got != "Avery.Stone" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("@@"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q, want user", got)
	}
}
