package export

import (
	"context"
	"fmt"
	"log/slog"

	"ideaforge/api/internal/sections"
	"ideaforge/api/internal/store"
)

// DocumentSource loads the document being exported.
type DocumentSource interface {
	Get(ctx context.Context, documentID string) *store.Document
}

// Service provides document export functionality
type Service struct {
	docs   DocumentSource
	logger *slog.Logger
	pdf    func(ctx context.Context, html, title string) (*Result, error)
	docx   func(ctx context.Context, html, title string) (*Result, error)
}

func NewService(docs DocumentSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:   docs,
		logger: logger.With("component", "export"),
		pdf:    exportPDF,
		docx:   exportDOCX,
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc := s.docs.Get(ctx, req.DocumentID)
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", req.DocumentID, store.ErrNotFound)
	}
	if doc.HasFile() {
		return nil, fmt.Errorf("%w: document %s is an uploaded file", ErrContentUnavailable, doc.ID)
	}

	md := Markdown(*doc)
	if req.Format == FormatMarkdown {
		return &Result{
			Data:     []byte(md),
			Filename: sanitizeFilename(doc.Title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	}

	body, err := RenderHTML(md)
	if err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	data := TemplateData{
		Title:       doc.Title,
		ContentHTML: body,
		UpdatedAt:   doc.UpdatedAt,
	}
	if category, ok := sections.CategoryByType(doc.Type); ok {
		data.Category = category.Title()
	}
	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		result, err = s.pdf(ctx, html, doc.Title)
	case FormatDOCX:
		result, err = s.docx(ctx, html, doc.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		s.logger.Warn("export failed", "document_id", doc.ID, "format", req.Format, "error", err)
		return nil, err
	}
	return result, nil
}
