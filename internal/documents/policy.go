package documents

import (
	"context"
	"errors"
	"fmt"

	"ideaforge/api/internal/store"
)

// CreateStrategy is one way of getting a document into the remote store.
// Attempts caps how many times it is tried before moving on.
type CreateStrategy struct {
	Name     string
	Attempts int
	Run      func(ctx context.Context, remote Remote, doc store.Document) (store.Document, error)
}

// CreatePolicy is tried in order; the first strategy to succeed wins.
type CreatePolicy []CreateStrategy

// DefaultCreatePolicy tries a plain insert, then an upsert on the same id,
// then an insert without RETURNING followed by a read-back. Each gets one
// attempt; there is no backoff.
func DefaultCreatePolicy() CreatePolicy {
	return CreatePolicy{
		{
			Name:     "insert",
			Attempts: 1,
			Run: func(ctx context.Context, remote Remote, doc store.Document) (store.Document, error) {
				return remote.InsertDocument(ctx, doc)
			},
		},
		{
			Name:     "upsert",
			Attempts: 1,
			Run: func(ctx context.Context, remote Remote, doc store.Document) (store.Document, error) {
				return remote.UpsertDocument(ctx, doc)
			},
		},
		{
			Name:     "insert_read_back",
			Attempts: 1,
			Run: func(ctx context.Context, remote Remote, doc store.Document) (store.Document, error) {
				if err := remote.InsertDocumentNoReturn(ctx, doc); err != nil {
					return store.Document{}, err
				}
				return remote.GetDocument(ctx, doc.ID)
			},
		},
	}
}

// Execute runs the strategies in order. On total failure the returned error
// joins every attempt's error and wraps ErrStoreUnavailable.
func (p CreatePolicy) Execute(ctx context.Context, remote Remote, doc store.Document) (store.Document, error) {
	var errs []error
	for _, strategy := range p {
		attempts := strategy.Attempts
		if attempts < 1 {
			attempts = 1
		}
		for attempt := 1; attempt <= attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return store.Document{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			}
			created, err := strategy.Run(ctx, remote, doc)
			if err == nil {
				return created, nil
			}
			errs = append(errs, fmt.Errorf("%s attempt %d: %w", strategy.Name, attempt, err))
		}
	}
	if len(errs) == 0 {
		return store.Document{}, fmt.Errorf("%w: no create strategies configured", ErrStoreUnavailable)
	}
	return store.Document{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, errors.Join(errs...))
}
