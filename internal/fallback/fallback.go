// Package fallback provides the local key-value store documents fall back to
// when the remote store cannot take a write.
package fallback

import (
	"context"
)

// Store is a flat string key-value store. Writers to the same key race with
// last-write-wins semantics; nothing here serializes them.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// DocumentKey is where a fallback copy of a project's document of the given
// type lives. One entry per (project, type).
func DocumentKey(projectID, documentType string) string {
	return "document_" + projectID + "_" + documentType
}

// DocumentPrefix matches every fallback document of a project.
func DocumentPrefix(projectID string) string {
	return "document_" + projectID + "_"
}

// CombinedKey holds the flat combined view of a category's sections.
func CombinedKey(projectID, documentType string) string {
	return "combined_" + projectID + "_" + documentType
}
