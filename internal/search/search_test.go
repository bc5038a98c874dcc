package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"inkwell/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	docs []store.Document
	err  error
}

func (f *fakeSource) SearchDocuments(_ context.Context, userID, query string, limit int) ([]store.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]store.Document, 0)
	for _, doc := range f.docs {
		if doc.UserID != userID {
			continue
		}
		if strings.Contains(strings.ToLower(doc.Title+" "+doc.Content), strings.ToLower(query)) {
			out = append(out, doc)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) ListAllDocuments(context.Context) ([]store.Document, error) {
	return f.docs, f.err
}

type fakeEngine struct {
	mu      sync.Mutex
	healthy bool
	err     error
	results []Result
	indexed []DocumentRecord
	deleted []string
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(context.Context, Query) ([]Result, int, error) {
	return f.results, len(f.results), f.err
}

func (f *fakeEngine) IndexDocument(_ context.Context, doc DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc)
	return nil
}

func (f *fakeEngine) IndexDocuments(_ context.Context, docs []DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, docs...)
	return nil
}

func (f *fakeEngine) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func sampleDocs() []store.Document {
	now := time.Now().UTC()
	return []store.Document{
		{ID: "d1", UserID: "u1", Title: "Roadmap", Content: `{"body":{"sections":[{"blocks":[{"inlines":[{"text":"quarterly roadmap"}]}]}]}}`, Status: store.StatusDraft, UpdatedAt: now},
		{ID: "d2", UserID: "u2", Title: "Roadmap copy", Content: "roadmap", Status: store.StatusDraft, UpdatedAt: now},
		{ID: "d3", UserID: "u1", Title: "Notes", Content: "roadmap notes", Status: store.StatusPublished, UpdatedAt: now},
	}
}

func TestSearchFallsBackToStoreWithoutEngine(t *testing.T) {
	svc := NewService(nil, NewStoreSearcher(&fakeSource{docs: sampleDocs()}))

	resp := svc.Search(context.Background(), Query{UserID: "u1", Text: "roadmap"})
	assert.Equal(t, SourceStore, resp.Source)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.NotEqual(t, "d2", r.ID, "results must stay within the owner")
	}
	assert.Equal(t, "quarterly roadmap", resp.Results[0].Snippet)
}

func TestSearchFiltersStatusInFallback(t *testing.T) {
	svc := NewService(nil, NewStoreSearcher(&fakeSource{docs: sampleDocs()}))
	resp := svc.Search(context.Background(), Query{UserID: "u1", Text: "roadmap", Status: store.StatusPublished})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "d3", resp.Results[0].ID)
}

func TestSearchUsesHealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: true, results: []Result{{ID: "hit"}}}
	svc := NewService(engine, NewStoreSearcher(&fakeSource{docs: sampleDocs()}))

	resp := svc.Search(context.Background(), Query{UserID: "u1", Text: "roadmap"})
	assert.Equal(t, SourceIndex, resp.Source)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "hit", resp.Results[0].ID)
}

func TestSearchFallsBackOnEngineError(t *testing.T) {
	engine := &fakeEngine{healthy: true, err: errors.New("boom")}
	svc := NewService(engine, NewStoreSearcher(&fakeSource{docs: sampleDocs()}))

	resp := svc.Search(context.Background(), Query{UserID: "u1", Text: "notes"})
	assert.Equal(t, SourceStore, resp.Source)
	require.Len(t, resp.Results, 1)
}

func TestSearchStoreErrorReturnsEmpty(t *testing.T) {
	svc := NewService(nil, NewStoreSearcher(&fakeSource{err: errors.New("db down")}))
	resp := svc.Search(context.Background(), Query{UserID: "u1", Text: "x"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestBlankQueryReturnsNothing(t *testing.T) {
	svc := NewService(nil, NewStoreSearcher(&fakeSource{docs: sampleDocs()}))
	resp := svc.Search(context.Background(), Query{UserID: "u1", Text: "   "})
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.Total)
}

func TestIndexAndReindex(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	svc := NewService(engine, NewStoreSearcher(&fakeSource{docs: sampleDocs()}))

	svc.IndexDocument(sampleDocs()[0])
	svc.DeleteDocument("d2")
	svc.Wait()

	engine.mu.Lock()
	require.Len(t, engine.indexed, 1)
	assert.Equal(t, "quarterly roadmap", engine.indexed[0].Text)
	assert.Equal(t, "u1", engine.indexed[0].OwnerID)
	assert.Equal(t, []string{"d2"}, engine.deleted)
	engine.mu.Unlock()

	count, err := svc.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestReindexRequiresEngine(t *testing.T) {
	svc := NewService(nil, NewStoreSearcher(&fakeSource{}))
	_, err := svc.ReindexAll(context.Background())
	assert.Error(t, err)
}

func TestSnippetWindowsAroundMatch(t *testing.T) {
	text := strings.Repeat("lorem ", 60) + "needle " + strings.Repeat("ipsum ", 60)
	got := snippet(strings.TrimSpace(text), "needle")
	assert.Contains(t, got, "needle")
	assert.True(t, strings.HasPrefix(got, "…"))
	assert.True(t, strings.HasSuffix(got, "…"))
}
