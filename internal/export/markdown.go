package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"ideaforge/api/internal/markers"
	"ideaforge/api/internal/sections"
	"ideaforge/api/internal/sectionsync"
	"ideaforge/api/internal/store"
)

var (
	markdown  = goldmark.New(goldmark.WithExtensions(extension.GFM))
	sanitizer = bluemonday.UGCPolicy()
)

// Markdown renders a document as a standalone Markdown file. Structured
// category documents lose their markers and become one heading per section.
func Markdown(doc store.Document) string {
	body := strings.TrimSpace(doc.Content)
	if category, ok := sections.CategoryByType(doc.Type); ok && hasAnyMarker(body, category) {
		blocks := sectionsync.Blocks(category, sectionsync.Sources{Structured: body})
		for i := range blocks {
			if blocks[i].Content == "" {
				blocks[i].Content = blocks[i].Placeholder
			}
		}
		body = markers.Combine(blocks)
	}
	if strings.HasPrefix(body, "# ") {
		return body + "\n"
	}
	return "# " + doc.Title + "\n\n" + body + "\n"
}

func hasAnyMarker(content string, category sections.Category) bool {
	for _, key := range category.ShortKeys() {
		if markers.HasMarkers(content, key) {
			return true
		}
	}
	return false
}

// RenderHTML converts Markdown to sanitized HTML.
func RenderHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return string(sanitizer.SanitizeBytes(buf.Bytes())), nil
}
