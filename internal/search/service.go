package search

import (
	"context"
	"log/slog"

	"ideaforge/api/internal/store"
)

// Service is the facade that tries each backend in order until one answers.
type Service struct {
	index  Index
	tiers  []Searcher
	logger *slog.Logger
}

// NewService creates a search service. index may be nil when no search
// engine is configured; documents are then only found through the tiers.
func NewService(logger *slog.Logger, index Index, tiers ...Searcher) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		index:  index,
		tiers:  tiers,
		logger: logger.With("component", "search"),
	}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	for _, tier := range s.tiers {
		if !tier.Healthy() {
			continue
		}
		results, total, err := tier.Search(ctx, q)
		if err != nil {
			s.logger.Warn("search backend failed, trying next", "backend", tier.Name(), "project_id", q.ProjectID, "error", err)
			continue
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: tier.Name()}
	}
	return Response{Results: []Result{}, Total: 0, Query: q.Text}
}

// IndexDocument indexes a document (fire-and-forget).
func (s *Service) IndexDocument(doc store.Document) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	rec := RecordFromDocument(doc)
	go func() {
		if err := s.index.IndexDocument(rec); err != nil {
			s.logger.Warn("index document failed", "document_id", rec.ID, "error", err)
		}
	}()
}

// RemoveDocument removes a document from the search index (fire-and-forget).
func (s *Service) RemoveDocument(id string) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.DeleteDocument(id); err != nil {
			s.logger.Warn("delete document from index failed", "document_id", id, "error", err)
		}
	}()
}

// Reindex pushes every document loaded from Postgres into the index.
func (s *Service) Reindex(ctx context.Context, source *PgFTS) {
	bulk, ok := s.index.(interface{ IndexDocuments([]Record) error })
	if !ok || source == nil || !s.index.Healthy() {
		return
	}
	records, err := source.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", "error", err)
		return
	}
	if err := bulk.IndexDocuments(records); err != nil {
		s.logger.Warn("reindex failed", "count", len(records), "error", err)
		return
	}
	s.logger.Info("reindexed documents", "count", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
