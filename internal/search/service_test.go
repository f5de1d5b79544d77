package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"ideaforge/api/internal/store"
)

type fakeSearcher struct {
	name    string
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeSearcher) Name() string  { return f.name }
func (f *fakeSearcher) Healthy() bool { return f.healthy }
func (f *fakeSearcher) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

type fakeIndex struct {
	healthy bool
	indexed chan Record
	deleted chan string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{healthy: true, indexed: make(chan Record, 1), deleted: make(chan string, 1)}
}

func (f *fakeIndex) Healthy() bool { return f.healthy }
func (f *fakeIndex) IndexDocument(rec Record) error {
	f.indexed <- rec
	return nil
}
func (f *fakeIndex) DeleteDocument(id string) error {
	f.deleted <- id
	return nil
}

func TestServiceFallsThroughTiers(t *testing.T) {
	down := &fakeSearcher{name: "meilisearch", healthy: false}
	failing := &fakeSearcher{name: "postgres", healthy: true, err: errors.New("boom")}
	scan := &fakeSearcher{name: "scan", healthy: true, results: []Result{{ID: "d1"}}}

	resp := NewService(nil, nil, down, failing, scan).Search(context.Background(), Query{Text: "x", ProjectID: "p1"})
	if resp.Backend != "scan" || resp.Total != 1 || resp.Results[0].ID != "d1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if down.calls != 0 {
		t.Fatal("unhealthy backend must be skipped")
	}
	if failing.calls != 1 {
		t.Fatal("failing backend should be tried once")
	}
}

func TestServiceReturnsEmptyWhenAllFail(t *testing.T) {
	failing := &fakeSearcher{name: "postgres", healthy: true, err: errors.New("boom")}
	resp := NewService(nil, nil, failing).Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestServiceIndexesInBackground(t *testing.T) {
	index := newFakeIndex()
	svc := NewService(nil, index)

	svc.IndexDocument(store.Document{ID: "d1", ProjectID: "p1", Title: "Plan", Type: "project_planning", Content: "text"})
	select {
	case rec := <-index.indexed:
		if rec.ID != "d1" || rec.ProjectID != "p1" || rec.Content != "text" {
			t.Fatalf("unexpected record %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("document was not indexed")
	}

	svc.RemoveDocument("d1")
	select {
	case id := <-index.deleted:
		if id != "d1" {
			t.Fatalf("deleted %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("document was not removed")
	}
}

func TestServiceSkipsUnhealthyIndex(t *testing.T) {
	index := newFakeIndex()
	index.healthy = false
	svc := NewService(nil, index)
	svc.IndexDocument(store.Document{ID: "d1"})
	select {
	case <-index.indexed:
		t.Fatal("unhealthy index must not be written")
	case <-time.After(50 * time.Millisecond):
	}
}
