// Package markers stores several named sections in one flat Markdown string
// using paired HTML comment markers, and reads them back.
//
// Content is not escaped. A section whose text itself contains marker
// comments decodes unpredictably.
package markers

import (
	"strings"
)

const notYetGenerated = "Not yet generated"

// Block is one section to encode, in display order.
type Block struct {
	Key         string
	Title       string
	Content     string
	Placeholder string
}

func StartMarker(key string) string {
	return "<!-- SECTION:" + key + " -->"
}

func EndMarker(key string) string {
	return "<!-- END:" + key + " -->"
}

// Encode renders a titled document with one marker-delimited block per
// section. Empty content is replaced by the block's placeholder.
func Encode(title string, blocks []Block) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n")
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		content := block.Content
		if strings.TrimSpace(content) == "" {
			content = block.Placeholder
		}
		b.WriteString(StartMarker(block.Key))
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n")
		b.WriteString(EndMarker(block.Key))
	}
	return b.String()
}

// Result holds decoded sections. Keys whose markers were absent or out of
// order are listed in Missing instead.
type Result struct {
	Sections map[string]string
	Missing  []string
}

// Found is the number of sections successfully extracted.
func (r Result) Found() int {
	return len(r.Sections)
}

// Get returns the decoded section or placeholder when it was missing.
func (r Result) Get(key, placeholder string) string {
	if content, ok := r.Sections[key]; ok {
		return content
	}
	return placeholder
}

// Decode extracts each expected key independently. It never fails; the worst
// case is every key reported missing.
func Decode(blob string, keys []string) Result {
	result := Result{Sections: make(map[string]string, len(keys))}
	for _, key := range keys {
		content, ok := extract(blob, key)
		if !ok {
			result.Missing = append(result.Missing, key)
			continue
		}
		result.Sections[key] = content
	}
	return result
}

func extract(blob, key string) (string, bool) {
	start := StartMarker(key)
	startIdx := strings.Index(blob, start)
	if startIdx < 0 {
		return "", false
	}
	bodyStart := startIdx + len(start)
	endIdx := strings.Index(blob[bodyStart:], EndMarker(key))
	if endIdx < 0 {
		return "", false
	}
	return strings.TrimSpace(blob[bodyStart : bodyStart+endIdx]), true
}

// HasMarkers reports whether blob contains a start marker for key.
func HasMarkers(blob, key string) bool {
	return strings.Contains(blob, StartMarker(key))
}

// Combine renders the flat legacy view: every block under a level-two
// heading, in order, with empty blocks marked as not yet generated.
func Combine(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		content := strings.TrimSpace(block.Content)
		if content == "" {
			content = notYetGenerated
		}
		parts = append(parts, "## "+block.Title+"\n\n"+content)
	}
	return strings.Join(parts, "\n\n")
}
