package store

import (
	"errors"
	"time"
)

// CurrentSchemaVersion is stamped on every document written by this service.
// Rows created by earlier clients carry version 1.
const CurrentSchemaVersion = 2

var ErrNotFound = errors.New("document not found")

type Document struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"projectId"`
	UserID          string    `json:"userId"`
	Title           string    `json:"title"`
	Type            string    `json:"type"`
	Content         string    `json:"content"`
	IsAutoGenerated bool      `json:"isAutoGenerated"`
	FilePath        *string   `json:"filePath,omitempty"`
	FileType        *string   `json:"fileType,omitempty"`
	FileSize        *int64    `json:"fileSize,omitempty"`
	SchemaVersion   int       `json:"schemaVersion"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasFile reports whether the document references an uploaded blob.
func (d Document) HasFile() bool {
	return d.FilePath != nil && *d.FilePath != ""
}

// Newer orders documents newest first by UpdatedAt, breaking ties by the
// larger ID. Every listing and the migration sweep use this order, so the
// document a lookup returns first is the one a sweep keeps.
func Newer(a, b Document) bool {
	if a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.ID > b.ID
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
