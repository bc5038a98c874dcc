package search

import (
	"context"
	"fmt"
	"strings"

	"inkwell/api/internal/plaintext"
	"inkwell/api/internal/store"
)

const snippetRunes = 160

// DocumentSource is the slice of the store used when the index is unavailable.
type DocumentSource interface {
	SearchDocuments(ctx context.Context, userID, query string, limit int) ([]store.Document, error)
	ListAllDocuments(ctx context.Context) ([]store.Document, error)
}

// StoreSearcher implements Searcher on top of the primary database.
type StoreSearcher struct {
	source DocumentSource
}

func NewStoreSearcher(source DocumentSource) *StoreSearcher {
	return &StoreSearcher{source: source}
}

// Healthy always returns true; if the database is down the whole app is down.
func (s *StoreSearcher) Healthy() bool {
	return true
}

func (s *StoreSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	docs, err := s.source.SearchDocuments(ctx, q.UserID, q.Text, limit+offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store search: %w", err)
	}

	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		if q.Status != "" && doc.Status != q.Status {
			continue
		}
		results = append(results, Result{
			ID:        doc.ID,
			Title:     doc.Title,
			Snippet:   snippet(plaintext.Extract(doc.Content), q.Text),
			Status:    doc.Status,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	total := len(results)
	if offset >= len(results) {
		return []Result{}, total, nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}

// LoadAllRecords returns every document for a full reindex.
func (s *StoreSearcher) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	docs, err := s.source.ListAllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	records := make([]DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, RecordFromDocument(doc))
	}
	return records, nil
}

// snippet returns a window of text around the first query term found.
func snippet(text, query string) string {
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	start := 0
	lower := strings.ToLower(text)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if idx := strings.Index(lower, term); idx >= 0 {
			start = len([]rune(lower[:idx])) - snippetRunes/4
			break
		}
	}
	if start < 0 {
		start = 0
	}
	end := start + snippetRunes
	if end > len(runes) {
		end = len(runes)
		start = end - snippetRunes
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
