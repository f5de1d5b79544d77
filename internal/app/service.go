package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"ideaforge/api/internal/auth"
	"ideaforge/api/internal/documents"
	"ideaforge/api/internal/export"
	"ideaforge/api/internal/migration"
	"ideaforge/api/internal/revisions"
	"ideaforge/api/internal/search"
	"ideaforge/api/internal/sections"
	"ideaforge/api/internal/sectionsync"
	"ideaforge/api/internal/store"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// RevisionReader is the read side of the revision history.
type RevisionReader interface {
	History(projectID, documentID string, limit int) ([]revisions.Revision, error)
	ContentAt(projectID, documentID, hash string) (string, error)
}

// Deps wires the service. Search, Export, Revisions, Verifier and Pinger
// are optional.
type Deps struct {
	Documents *documents.Adapter
	Sections  *sectionsync.Synchronizer
	Sweeper   *migration.Sweeper
	Search    *search.Service
	Export    *export.Service
	Revisions RevisionReader
	Verifier  auth.Verifier
	Pinger    Pinger
	Logger    *slog.Logger
}

type Service struct {
	docs      *documents.Adapter
	sections  *sectionsync.Synchronizer
	sweeper   *migration.Sweeper
	search    *search.Service
	export    *export.Service
	revisions RevisionReader
	verifier  auth.Verifier
	pinger    Pinger
	logger    *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:      deps.Documents,
		sections:  deps.Sections,
		sweeper:   deps.Sweeper,
		search:    deps.Search,
		export:    deps.Export,
		revisions: deps.Revisions,
		verifier:  deps.Verifier,
		pinger:    deps.Pinger,
		logger:    logger.With("component", "app"),
	}
}

type CreateDocumentInput struct {
	Title           string `json:"title"`
	Type            string `json:"type"`
	Content         string `json:"content"`
	IsAutoGenerated bool   `json:"isAutoGenerated"`
}

type UpdateDocumentInput struct {
	Content *string `json:"content"`
}

type SaveSectionInput struct {
	Content *string `json:"content"`
}

// SectionView is a section document together with its decoded text.
type SectionView struct {
	Key      string          `json:"key"`
	Title    string          `json:"title"`
	Category string          `json:"category"`
	Content  string          `json:"content"`
	Document *store.Document `json:"document"`
}

type DocumentView struct {
	store.Document
	FileURL string `json:"fileUrl,omitempty"`
}

// Identify resolves the calling user. With a verifier configured only a
// valid bearer token is accepted; otherwise the X-User-ID header is trusted.
func (s *Service) Identify(authorization, headerUserID string) (string, error) {
	if s.verifier != nil {
		token := auth.BearerToken(strings.TrimSpace(authorization))
		if token == "" {
			return "", auth.ErrInvalidToken
		}
		claims, err := s.verifier.Verify(token)
		if err != nil {
			return "", err
		}
		return claims.UserID(), nil
	}
	userID := strings.TrimSpace(headerUserID)
	if userID == "" {
		return "", auth.ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) ProjectDocuments(ctx context.Context, projectID string) []DocumentView {
	docs := s.docs.ProjectDocuments(ctx, projectID)
	views := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, s.view(doc))
	}
	return views
}

func (s *Service) CreateDocument(ctx context.Context, projectID, userID string, input CreateDocumentInput) (DocumentView, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Type) == "" {
		return DocumentView{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title and type are required", nil)
	}
	created := s.docs.Create(ctx, store.Document{
		ProjectID:       projectID,
		UserID:          userID,
		Title:           strings.TrimSpace(input.Title),
		Type:            strings.TrimSpace(input.Type),
		Content:         input.Content,
		IsAutoGenerated: input.IsAutoGenerated,
	})
	if created == nil {
		return DocumentView{}, saveFailed()
	}
	return s.view(*created), nil
}

func (s *Service) UploadDocument(ctx context.Context, projectID, userID, fileName, contentType string, size int64, body io.Reader) (DocumentView, error) {
	if size > documents.MaxUploadSize {
		return DocumentView{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File is too large", map[string]any{"maxBytes": documents.MaxUploadSize})
	}
	created := s.docs.Upload(ctx, documents.UploadInput{
		ProjectID:   projectID,
		UserID:      userID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		Body:        body,
	})
	if created == nil {
		return DocumentView{}, domainError(http.StatusServiceUnavailable, "UPLOAD_FAILED", "Failed to upload file", nil)
	}
	return s.view(*created), nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (DocumentView, error) {
	doc := s.docs.Get(ctx, documentID)
	if doc == nil {
		return DocumentView{}, notFound()
	}
	return s.view(*doc), nil
}

func (s *Service) UpdateDocument(ctx context.Context, documentID string, input UpdateDocumentInput) (DocumentView, error) {
	if input.Content == nil {
		return DocumentView{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content is required", nil)
	}
	if s.docs.Get(ctx, documentID) == nil {
		return DocumentView{}, notFound()
	}
	updated := s.docs.Update(ctx, documentID, *input.Content)
	if updated == nil {
		return DocumentView{}, saveFailed()
	}
	return s.view(*updated), nil
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if s.docs.Get(ctx, documentID) == nil {
		return notFound()
	}
	if !s.docs.Delete(ctx, documentID) {
		return domainError(http.StatusServiceUnavailable, "DELETE_FAILED", "Failed to delete document", nil)
	}
	return nil
}

func (s *Service) SaveSection(ctx context.Context, projectID, userID, key string, input SaveSectionInput) (SectionView, error) {
	if input.Content == nil {
		return SectionView{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content is required", nil)
	}
	doc, err := s.sections.SaveSection(ctx, projectID, userID, key, *input.Content)
	if err != nil {
		return SectionView{}, mapSectionError(err, key)
	}
	if doc == nil {
		return SectionView{}, saveFailed()
	}
	return s.GetSection(ctx, projectID, key)
}

func (s *Service) GetSection(ctx context.Context, projectID, key string) (SectionView, error) {
	doc, err := s.sections.GetSection(ctx, projectID, key)
	if err != nil {
		return SectionView{}, mapSectionError(err, key)
	}
	text, err := s.sections.ReadSection(ctx, projectID, key)
	if err != nil {
		return SectionView{}, mapSectionError(err, key)
	}
	section, _ := sections.Lookup(key)
	return SectionView{
		Key:      section.Key,
		Title:    section.Title,
		Category: string(section.Category),
		Content:  text,
		Document: doc,
	}, nil
}

func (s *Service) CombinedView(ctx context.Context, projectID, categoryName string) (string, error) {
	category, err := sections.ParseCategory(categoryName)
	if err != nil {
		return "", domainError(http.StatusBadRequest, "UNKNOWN_CATEGORY", "Unknown category", map[string]any{"category": categoryName})
	}
	return s.sections.CombinedView(ctx, projectID, category), nil
}

// Activate runs the migration sweep for a project.
func (s *Service) Activate(ctx context.Context, projectID, userID string) migration.Report {
	return s.sweeper.Run(ctx, projectID, userID)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) Export(ctx context.Context, documentID, format string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusNotImplemented, "EXPORT_UNAVAILABLE", "Export is not available", nil)
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", map[string]any{"format": format})
	}
	result, err := s.export.Export(ctx, export.Request{DocumentID: documentID, Format: parsed})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, notFound()
	case errors.Is(err, export.ErrContentUnavailable):
		return nil, domainError(http.StatusUnprocessableEntity, "EXPORT_NO_CONTENT", "This document has no exportable content", nil)
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusNotImplemented, "EXPORT_UNAVAILABLE", "This export format is not available on the server", nil)
	default:
		return nil, fmt.Errorf("export %s: %w", documentID, err)
	}
}

func (s *Service) History(ctx context.Context, documentID string, limit int) ([]revisions.Revision, error) {
	doc := s.docs.Get(ctx, documentID)
	if doc == nil {
		return nil, notFound()
	}
	if s.revisions == nil {
		return []revisions.Revision{}, nil
	}
	items, err := s.revisions.History(doc.ProjectID, doc.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", documentID, err)
	}
	return items, nil
}

func (s *Service) ContentAt(ctx context.Context, documentID, hash string) (string, error) {
	doc := s.docs.Get(ctx, documentID)
	if doc == nil || s.revisions == nil {
		return "", notFound()
	}
	content, err := s.revisions.ContentAt(doc.ProjectID, doc.ID, hash)
	if errors.Is(err, revisions.ErrNoHistory) || errors.Is(err, plumbing.ErrObjectNotFound) {
		return "", notFound()
	}
	if err != nil {
		return "", fmt.Errorf("content of %s at %s: %w", documentID, hash, err)
	}
	return content, nil
}

// Ping checks the health of service dependencies.
func (s *Service) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger.Ping(ctx)
}

func (s *Service) view(doc store.Document) DocumentView {
	return DocumentView{Document: doc, FileURL: s.docs.FileURL(doc)}
}

func mapSectionError(err error, key string) error {
	if errors.Is(err, sections.ErrUnknownSection) {
		return domainError(http.StatusBadRequest, "UNKNOWN_SECTION", "Unknown section", map[string]any{"key": key})
	}
	return err
}

func notFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func saveFailed() *DomainError {
	return domainError(http.StatusServiceUnavailable, "SAVE_FAILED", "Failed to save. Please try again.", nil)
}
