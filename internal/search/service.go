package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inkwell/api/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	SourceIndex = "index"
	SourceStore = "store"
)

// Service is the facade that tries the search engine first and falls back to
// the store.
type Service struct {
	engine   Engine
	fallback *StoreSearcher
	wg       sync.WaitGroup
}

// NewService creates a search service. engine may be nil when Meilisearch is
// not configured.
func NewService(engine Engine, fallback *StoreSearcher) *Service {
	return &Service{engine: engine, fallback: fallback}
}

// Search tries the engine if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engine != nil && s.engine.Healthy() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceIndex}
		}
		logrus.WithError(err).Warn("search: engine error, falling back to store")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		logrus.WithError(err).Error("search: store fallback failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Source: SourceStore}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceStore}
}

// IndexDocument indexes a document without blocking the caller.
func (s *Service) IndexDocument(doc store.Document) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	record := RecordFromDocument(doc)
	s.background(func(ctx context.Context) {
		if err := s.engine.IndexDocument(ctx, record); err != nil {
			logrus.WithError(err).WithField("document_id", record.ID).Warn("search: index document")
		}
	})
}

// DeleteDocument removes a document from the index without blocking the caller.
func (s *Service) DeleteDocument(id string) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	s.background(func(ctx context.Context) {
		if err := s.engine.DeleteDocument(ctx, id); err != nil {
			logrus.WithError(err).WithField("document_id", id).Warn("search: delete document")
		}
	})
}

// ReindexAll pushes every stored document to the engine and returns the count.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if s.engine == nil {
		return 0, fmt.Errorf("search engine not configured")
	}
	if !s.engine.Healthy() {
		return 0, fmt.Errorf("search engine unhealthy")
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.engine.IndexDocuments(ctx, records); err != nil {
		return 0, fmt.Errorf("reindex documents: %w", err)
	}
	return len(records), nil
}

// Wait blocks until pending index writes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
