// Package sectionsync maps a section key onto its backing document and keeps
// the category's structured document and combined view in step with it.
package sectionsync

import (
	"context"
	"log/slog"
	"strings"

	"ideaforge/api/internal/fallback"
	"ideaforge/api/internal/markers"
	"ideaforge/api/internal/sections"
	"ideaforge/api/internal/store"
	"ideaforge/api/internal/util"
)

// Documents is the slice of the document adapter the synchronizer needs.
type Documents interface {
	Create(ctx context.Context, doc store.Document) *store.Document
	Find(ctx context.Context, projectID, documentType, title string) []store.Document
	Update(ctx context.Context, documentID, content string) *store.Document
}

type Synchronizer struct {
	docs   Documents
	local  fallback.Store
	logger *slog.Logger
}

func New(docs Documents, local fallback.Store, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		docs:   docs,
		local:  local,
		logger: logger.With("component", "sectionsync"),
	}
}

// SaveSection writes content to the section's document, creating it when
// absent, and then recomputes the category. The only error is
// sections.ErrUnknownSection; a persistence failure yields a nil document.
func (s *Synchronizer) SaveSection(ctx context.Context, projectID, userID, key, content string) (*store.Document, error) {
	section, err := sections.Lookup(key)
	if err != nil {
		s.logger.Error("save of unknown section", "operation", "save_section", "project_id", projectID, "key", key, "error", err)
		return nil, err
	}

	var saved *store.Document
	existing := s.docs.Find(ctx, projectID, section.DocumentType, section.Title)
	if len(existing) > 0 {
		saved = s.docs.Update(ctx, existing[0].ID, content)
	} else {
		saved = s.docs.Create(ctx, store.Document{
			ProjectID: projectID,
			UserID:    userID,
			Title:     section.Title,
			Type:      section.DocumentType,
			Content:   content,
		})
	}
	if saved == nil {
		s.logger.Warn("section not persisted", "operation", "save_section", "project_id", projectID, "key", key)
	}

	// The fallback store keeps one entry per document type, so a local
	// structured document would overwrite the section just saved.
	rewriteCanonical := saved != nil && !util.IsLocalID(saved.ID)
	s.recompute(ctx, projectID, userID, section.Category, rewriteCanonical)
	return saved, nil
}

// GetSection finds the section's document by type and title, then by the
// pre-split layout where the type was the section key itself.
func (s *Synchronizer) GetSection(ctx context.Context, projectID, key string) (*store.Document, error) {
	section, err := sections.Lookup(key)
	if err != nil {
		s.logger.Error("read of unknown section", "operation", "get_section", "project_id", projectID, "key", key, "error", err)
		return nil, err
	}
	if docs := s.docs.Find(ctx, projectID, section.DocumentType, section.Title); len(docs) > 0 {
		return &docs[0], nil
	}
	if docs := s.docs.Find(ctx, projectID, section.Key, ""); len(docs) > 0 {
		return &docs[0], nil
	}
	return nil, nil
}

// ReadSection returns the section's text. Structured content is decoded, and
// when no section document exists the category's structured document is
// consulted before falling back to the placeholder.
func (s *Synchronizer) ReadSection(ctx context.Context, projectID, key string) (string, error) {
	doc, err := s.GetSection(ctx, projectID, key)
	if err != nil {
		return "", err
	}
	section, _ := sections.Lookup(key)
	if doc != nil {
		return SectionText(section, doc.Content), nil
	}

	canonical := s.docs.Find(ctx, projectID, section.DocumentType, section.Category.Title())
	for _, c := range canonical {
		decoded := markers.Decode(c.Content, []string{section.ShortKey})
		if text, ok := decoded.Sections[section.ShortKey]; ok {
			return text, nil
		}
	}
	return section.Placeholder(), nil
}

// CombinedView returns the flat combined form of a category, from the
// fallback cache when present.
func (s *Synchronizer) CombinedView(ctx context.Context, projectID string, category sections.Category) string {
	key := fallback.CombinedKey(projectID, category.DocumentType())
	if cached, ok, err := s.local.Get(ctx, key); err == nil && ok {
		return cached
	}
	combined := markers.Combine(s.collect(ctx, projectID, category))
	s.cacheCombined(ctx, projectID, category, combined)
	return combined
}

// Recompute rebuilds the structured document and combined view of a
// category from whatever section documents exist.
func (s *Synchronizer) Recompute(ctx context.Context, projectID, userID string, category sections.Category) {
	s.recompute(ctx, projectID, userID, category, true)
}

func (s *Synchronizer) recompute(ctx context.Context, projectID, userID string, category sections.Category, rewriteCanonical bool) {
	blocks := s.collect(ctx, projectID, category)
	s.cacheCombined(ctx, projectID, category, markers.Combine(blocks))
	if !rewriteCanonical {
		return
	}

	content := markers.Encode(category.Title(), blocks)
	canonical := s.docs.Find(ctx, projectID, category.DocumentType(), category.Title())
	if len(canonical) > 0 {
		if canonical[0].Content == content {
			return
		}
		if s.docs.Update(ctx, canonical[0].ID, content) == nil {
			s.logger.Warn("structured document not updated", "operation", "recompute", "project_id", projectID, "category", category)
		}
		return
	}
	created := s.docs.Create(ctx, store.Document{
		ProjectID:       projectID,
		UserID:          userID,
		Title:           category.Title(),
		Type:            category.DocumentType(),
		Content:         content,
		IsAutoGenerated: true,
	})
	if created == nil {
		s.logger.Warn("structured document not created", "operation", "recompute", "project_id", projectID, "category", category)
	}
}

// collect gathers the current text of every section of a category.
func (s *Synchronizer) collect(ctx context.Context, projectID string, category sections.Category) []markers.Block {
	docs := s.docs.Find(ctx, projectID, category.DocumentType(), "")
	bySection := make(map[string]string)
	var structured string
	for _, doc := range docs {
		// Newest first, so the first hit per title wins.
		if doc.Title == category.Title() {
			if structured == "" {
				structured = doc.Content
			}
			continue
		}
		if _, seen := bySection[doc.Title]; !seen {
			bySection[doc.Title] = doc.Content
		}
	}

	sources := Sources{
		Sections:   make(map[string]string),
		Structured: structured,
	}
	for _, section := range category.Sections() {
		if content, ok := bySection[section.Title]; ok {
			sources.Sections[section.ShortKey] = SectionText(section, content)
			continue
		}
		if legacy := s.docs.Find(ctx, projectID, section.Key, ""); len(legacy) > 0 {
			sources.Sections[section.ShortKey] = SectionText(section, legacy[0].Content)
		}
	}
	return Blocks(category, sources)
}

func (s *Synchronizer) cacheCombined(ctx context.Context, projectID string, category sections.Category, combined string) {
	if err := s.local.Set(ctx, fallback.CombinedKey(projectID, category.DocumentType()), combined); err != nil {
		s.logger.Warn("combined view not cached", "operation", "recompute", "project_id", projectID, "category", category, "error", err)
	}
}

// Sources feeds Blocks. Sections is keyed by short key and wins over text
// decoded from the Structured document.
type Sources struct {
	Sections   map[string]string
	Structured string
}

// Blocks assembles a category's sections in display order. Placeholder text
// counts as absent, so a section never ends up holding another's default.
func Blocks(category sections.Category, src Sources) []markers.Block {
	list := category.Sections()
	var decoded markers.Result
	if src.Structured != "" {
		decoded = markers.Decode(src.Structured, category.ShortKeys())
	}
	blocks := make([]markers.Block, 0, len(list))
	for _, section := range list {
		content := Meaningful(section, src.Sections[section.ShortKey])
		if content == "" {
			content = Meaningful(section, decoded.Sections[section.ShortKey])
		}
		blocks = append(blocks, markers.Block{
			Key:         section.ShortKey,
			Title:       section.Title,
			Content:     content,
			Placeholder: section.Placeholder(),
		})
	}
	return blocks
}

// SectionText extracts a section from content that may be either plain text
// or a structured document holding the section's markers.
func SectionText(section sections.Section, content string) string {
	if markers.HasMarkers(content, section.ShortKey) {
		decoded := markers.Decode(content, []string{section.ShortKey})
		if text, ok := decoded.Sections[section.ShortKey]; ok {
			return text
		}
	}
	return strings.TrimSpace(content)
}

// Meaningful trims content and blanks it out when it is only a placeholder.
func Meaningful(section sections.Section, content string) string {
	content = strings.TrimSpace(content)
	if content == section.Placeholder() || content == "Not yet generated" {
		return ""
	}
	return content
}
