package search

import (
	"context"
	"strings"

	"ideaforge/api/internal/store"
)

// Lister is what Scan reads documents from.
type Lister interface {
	ProjectDocuments(ctx context.Context, projectID string) []store.Document
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context, projectID string) []store.Document

func (f ListerFunc) ProjectDocuments(ctx context.Context, projectID string) []store.Document {
	return f(ctx, projectID)
}

// Scan matches every word of the query against a project's documents in
// memory. It is the last resort, used with the memory store driver or when
// the other backends fail.
type Scan struct {
	docs Lister
}

func NewScan(docs Lister) *Scan {
	return &Scan{docs: docs}
}

func (s *Scan) Name() string  { return "scan" }
func (s *Scan) Healthy() bool { return true }

func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}

	var matches []Result
	for _, doc := range s.docs.ProjectDocuments(ctx, q.ProjectID) {
		if q.Type != "" && doc.Type != q.Type {
			continue
		}
		haystack := strings.ToLower(doc.Title + "\n" + doc.Content)
		if !containsAll(haystack, terms) {
			continue
		}
		matches = append(matches, Result{
			ID:        doc.ID,
			ProjectID: doc.ProjectID,
			Type:      doc.Type,
			Title:     doc.Title,
			Snippet:   snippet(doc.Content, terms[0]),
		})
	}

	total := len(matches)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	return matches[start:end], total, nil
}

func containsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// snippet returns up to 30 words of content around the first occurrence of
// term.
func snippet(content, term string) string {
	words := strings.Fields(content)
	at := 0
	for i, word := range words {
		if strings.Contains(strings.ToLower(word), term) {
			at = i
			break
		}
	}
	start := max(at-10, 0)
	end := min(start+30, len(words))
	return strings.Join(words[start:end], " ")
}
