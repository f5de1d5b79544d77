// Package blob stores uploaded project files in an object bucket.
package blob

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

type Store interface {
	Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectPath string) error
	PublicURL(objectPath string) string
}

// ObjectPath namespaces an upload under its project and makes it unique.
func ObjectPath(projectID, fileName string) string {
	return path.Join(projectID, uuid.NewString()+"-"+SanitizeFileName(fileName))
}

// SanitizeFileName keeps letters, digits, dot, dash and underscore and maps
// whitespace to dashes.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune('-')
		}
	}
	result := strings.Trim(b.String(), ".")
	if len(result) > 100 {
		result = result[len(result)-100:]
	}
	if result == "" {
		return "upload"
	}
	return result
}
