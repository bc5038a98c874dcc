// Package search indexes document titles and text for owner-scoped lookups.
package search

import (
	"context"
	"time"

	"inkwell/api/internal/plaintext"
	"inkwell/api/internal/store"
)

const defaultLimit = 20

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Query describes a search request. UserID is required; results never cross owners.
type Query struct {
	UserID string
	Text   string
	Status string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push documents into a search index.
type Indexer interface {
	IndexDocument(ctx context.Context, doc DocumentRecord) error
	IndexDocuments(ctx context.Context, docs []DocumentRecord) error
	DeleteDocument(ctx context.Context, id string) error
}

// Engine is a searchable index, Meilisearch in production.
type Engine interface {
	Searcher
	Indexer
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updatedAt"`
}

// RecordFromDocument flattens doc into its indexable form.
func RecordFromDocument(doc store.Document) DocumentRecord {
	return DocumentRecord{
		ID:        doc.ID,
		OwnerID:   doc.UserID,
		Title:     doc.Title,
		Text:      plaintext.Extract(doc.Content),
		Status:    doc.Status,
		UpdatedAt: doc.UpdatedAt.Unix(),
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultLimit
	}
	return limit
}
