// Package search finds project documents by their text. Meilisearch is
// preferred; Postgres full-text search and a plain scan of the project's
// documents are the fallbacks.
package search

import (
	"context"

	"ideaforge/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
}

// Query describes a search request. ProjectID is required.
type Query struct {
	Text      string
	ProjectID string
	Type      string // empty = all document types
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend,omitempty"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Index can push documents into a search index.
type Index interface {
	IndexDocument(rec Record) error
	DeleteDocument(id string) error
	Healthy() bool
}

// Record is the data we index for a document.
type Record struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

func RecordFromDocument(doc store.Document) Record {
	return Record{
		ID:        doc.ID,
		ProjectID: doc.ProjectID,
		Type:      doc.Type,
		Title:     doc.Title,
		Content:   doc.Content,
	}
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	if q.Limit > 100 {
		return 100
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
