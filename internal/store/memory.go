package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps documents in process. It backs the "memory" store driver
// for local development and stands in for Postgres in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) InsertDocument(_ context.Context, item Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[item.ID]; exists {
		return Document{}, fmt.Errorf("insert document: duplicate id %s", item.ID)
	}
	s.docs[item.ID] = item
	return item, nil
}

func (s *MemoryStore) UpsertDocument(_ context.Context, item Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.docs[item.ID]; ok {
		item.ProjectID = existing.ProjectID
		item.UserID = existing.UserID
		item.CreatedAt = existing.CreatedAt
	}
	s.docs[item.ID] = item
	return item, nil
}

func (s *MemoryStore) InsertDocumentNoReturn(_ context.Context, item Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[item.ID]; !exists {
		s.docs[item.ID] = item
	}
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, documentID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.docs[documentID]
	if !ok {
		return Document{}, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return item, nil
}

func (s *MemoryStore) ListProjectDocuments(_ context.Context, projectID string) ([]Document, error) {
	return s.filter(func(d Document) bool { return d.ProjectID == projectID }), nil
}

func (s *MemoryStore) FindDocuments(_ context.Context, projectID, documentType, title string) ([]Document, error) {
	return s.filter(func(d Document) bool {
		return d.ProjectID == projectID && d.Type == documentType && (title == "" || d.Title == title)
	}), nil
}

func (s *MemoryStore) UpdateDocumentContent(_ context.Context, documentID, content string, updatedAt time.Time) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.docs[documentID]
	if !ok {
		return Document{}, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	item.Content = content
	item.UpdatedAt = updatedAt
	s.docs[documentID] = item
	return item, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	delete(s.docs, documentID)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) filter(keep func(Document) bool) []Document {
	s.mu.RLock()
	items := make([]Document, 0)
	for _, item := range s.docs {
		if keep(item) {
			items = append(items, item)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool { return Newer(items[i], items[j]) })
	return items
}
