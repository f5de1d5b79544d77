package documents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ideaforge/api/internal/store"
)

func TestDefaultCreatePolicyReadBack(t *testing.T) {
	remote := newFakeRemote()
	remote.insertFn = func(context.Context, store.Document) (store.Document, error) {
		return store.Document{}, errors.New("insert failed")
	}
	remote.upsertFn = func(context.Context, store.Document) (store.Document, error) {
		return store.Document{}, errors.New("upsert failed")
	}

	doc := overviewDoc("content")
	doc.ID = "doc-1"
	created, err := DefaultCreatePolicy().Execute(context.Background(), remote, doc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if created.ID != "doc-1" || created.Content != "content" {
		t.Fatalf("read-back returned %+v", created)
	}
}

func TestCreatePolicyJoinsErrors(t *testing.T) {
	remote := downRemote()
	doc := overviewDoc("content")
	doc.ID = "doc-1"

	_, err := DefaultCreatePolicy().Execute(context.Background(), remote, doc)
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, errRemoteDown) {
		t.Fatalf("unexpected error %v", err)
	}
	for _, name := range []string{"insert attempt 1", "upsert attempt 1", "insert_read_back attempt 1"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q should mention %q", err, name)
		}
	}
}

func TestCreatePolicyHonoursAttempts(t *testing.T) {
	calls := 0
	policy := CreatePolicy{{
		Name:     "flaky",
		Attempts: 3,
		Run: func(_ context.Context, _ Remote, doc store.Document) (store.Document, error) {
			calls++
			if calls < 3 {
				return store.Document{}, errors.New("transient")
			}
			return doc, nil
		},
	}}
	if _, err := policy.Execute(context.Background(), newFakeRemote(), overviewDoc("x")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestCreatePolicyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DefaultCreatePolicy().Execute(ctx, newFakeRemote(), overviewDoc("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEmptyCreatePolicy(t *testing.T) {
	if _, err := (CreatePolicy{}).Execute(context.Background(), newFakeRemote(), overviewDoc("x")); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
