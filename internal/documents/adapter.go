// Package documents is the single entry point for persisting project
// documents. Remote failures are logged and degraded to nil/false/empty
// results; they never reach callers as errors.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ideaforge/api/internal/blob"
	"ideaforge/api/internal/fallback"
	"ideaforge/api/internal/store"
	"ideaforge/api/internal/util"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

const (
	// UploadDocumentType tags documents that wrap an uploaded file.
	UploadDocumentType = "user_upload"

	MaxTitleLength = 255
	MaxUploadSize  = 25 << 20
)

var ErrStoreUnavailable = errors.New("document store unavailable")

// Remote is the table-oriented store documents live in.
type Remote interface {
	InsertDocument(ctx context.Context, item store.Document) (store.Document, error)
	UpsertDocument(ctx context.Context, item store.Document) (store.Document, error)
	InsertDocumentNoReturn(ctx context.Context, item store.Document) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	ListProjectDocuments(ctx context.Context, projectID string) ([]store.Document, error)
	FindDocuments(ctx context.Context, projectID, documentType, title string) ([]store.Document, error)
	UpdateDocumentContent(ctx context.Context, documentID, content string, updatedAt time.Time) (store.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Indexer receives every document persisted remotely. Implementations must
// not block.
type Indexer interface {
	IndexDocument(doc store.Document)
	RemoveDocument(documentID string)
}

// Recorder keeps a content history of remote writes.
type Recorder interface {
	Record(ctx context.Context, doc store.Document) error
}

type Adapter struct {
	remote   Remote
	local    fallback.Store
	blobs    blob.Store
	policy   CreatePolicy
	indexer  Indexer
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Adapter)

func WithBlobStore(blobs blob.Store) Option {
	return func(a *Adapter) { a.blobs = blobs }
}

func WithIndexer(indexer Indexer) Option {
	return func(a *Adapter) { a.indexer = indexer }
}

func WithRecorder(recorder Recorder) Option {
	return func(a *Adapter) { a.recorder = recorder }
}

func WithCreatePolicy(policy CreatePolicy) Option {
	return func(a *Adapter) { a.policy = policy }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func New(remote Remote, local fallback.Store, logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		remote: remote,
		local:  local,
		policy: DefaultCreatePolicy(),
		logger: logger.With("component", "documents"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create persists a new document. When every remote strategy fails the
// document is kept in the local fallback store under a local_ id instead.
// Nil means even that failed.
func (a *Adapter) Create(ctx context.Context, doc store.Document) *store.Document {
	if err := validateDocument(doc); err != nil {
		a.logger.Warn("rejected document", "operation", "create", "project_id", doc.ProjectID, "error", err)
		return nil
	}

	now := a.now()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.SchemaVersion = store.CurrentSchemaVersion

	created, err := a.policy.Execute(ctx, a.remote, doc)
	if err == nil {
		a.afterWrite(ctx, created)
		return &created
	}
	a.logger.Warn("remote create failed, writing local fallback",
		"operation", "create",
		"project_id", doc.ProjectID,
		"type", doc.Type,
		"error", err,
	)

	doc.ID = util.NewID(util.LocalIDPrefix)
	if err := a.saveLocal(ctx, doc); err != nil {
		a.logger.Error("local fallback write failed",
			"operation", "create",
			"project_id", doc.ProjectID,
			"type", doc.Type,
			"error", err,
		)
		return nil
	}
	return &doc
}

// ProjectDocuments returns the project's remote documents plus any fallback
// documents whose type has no remote counterpart.
func (a *Adapter) ProjectDocuments(ctx context.Context, projectID string) []store.Document {
	docs, err := a.Snapshot(ctx, projectID)
	if err != nil {
		a.logger.Warn("remote list failed, serving fallback documents only",
			"operation", "read",
			"project_id", projectID,
			"error", err,
		)
	}
	return docs
}

// Snapshot is ProjectDocuments for callers that must know whether the remote
// half of the result is missing. The documents are still returned on error.
func (a *Adapter) Snapshot(ctx context.Context, projectID string) ([]store.Document, error) {
	remoteDocs, remoteErr := a.remote.ListProjectDocuments(ctx, projectID)
	localDocs := a.localDocuments(ctx, projectID)

	merged := make([]store.Document, 0, len(remoteDocs)+len(localDocs))
	remoteTypes := make(map[string]struct{}, len(remoteDocs))
	for _, doc := range remoteDocs {
		remoteTypes[doc.Type] = struct{}{}
		merged = append(merged, doc)
	}
	for _, doc := range localDocs {
		if _, shadowed := remoteTypes[doc.Type]; shadowed {
			continue
		}
		merged = append(merged, doc)
	}

	if remoteErr != nil {
		return merged, fmt.Errorf("%w: %w", ErrStoreUnavailable, remoteErr)
	}
	return merged, nil
}

// Find looks documents up by type and, if title is non-empty, title. Newest
// first. Falls back to the local copy for the type when the remote query fails.
func (a *Adapter) Find(ctx context.Context, projectID, documentType, title string) []store.Document {
	docs, err := a.remote.FindDocuments(ctx, projectID, documentType, title)
	if err == nil {
		return docs
	}
	a.logger.Warn("remote find failed, checking local fallback",
		"operation", "find",
		"project_id", projectID,
		"type", documentType,
		"error", err,
	)
	doc, ok := a.loadLocal(ctx, fallback.DocumentKey(projectID, documentType))
	if !ok || (title != "" && doc.Title != title) {
		return nil
	}
	return []store.Document{doc}
}

func (a *Adapter) Get(ctx context.Context, documentID string) *store.Document {
	if util.IsLocalID(documentID) {
		doc, _, ok := a.loadLocalByID(ctx, documentID)
		if !ok {
			return nil
		}
		return &doc
	}
	doc, err := a.remote.GetDocument(ctx, documentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("remote get failed", "operation", "get", "document_id", documentID, "error", err)
		}
		return nil
	}
	return &doc
}

// Update replaces a document's content and advances updatedAt. Documents
// with a local_ id are rewritten in the fallback store without touching the
// remote store.
func (a *Adapter) Update(ctx context.Context, documentID, content string) *store.Document {
	now := a.now()
	if util.IsLocalID(documentID) {
		doc, key, ok := a.loadLocalByID(ctx, documentID)
		if !ok {
			a.logger.Warn("local document not found", "operation", "update", "document_id", documentID)
			return nil
		}
		doc.Content = content
		doc.UpdatedAt = now
		if err := a.writeLocal(ctx, key, doc); err != nil {
			a.logger.Error("local fallback update failed", "operation", "update", "document_id", documentID, "error", err)
			return nil
		}
		return &doc
	}

	updated, err := a.remote.UpdateDocumentContent(ctx, documentID, content, now)
	if err != nil {
		a.logger.Warn("remote update failed", "operation", "update", "document_id", documentID, "error", err)
		return nil
	}
	a.afterWrite(ctx, updated)
	return &updated
}

// Delete removes a document. An uploaded file is removed from blob storage
// first; failing to do so is logged and does not stop the record deletion.
func (a *Adapter) Delete(ctx context.Context, documentID string) bool {
	if util.IsLocalID(documentID) {
		return a.deleteLocal(ctx, documentID, false)
	}

	doc, err := a.remote.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false
		}
		a.logger.Warn("remote lookup before delete failed", "operation", "delete", "document_id", documentID, "error", err)
	} else {
		a.removeFile(ctx, doc)
	}

	if err := a.remote.DeleteDocument(ctx, documentID); err != nil {
		a.logger.Warn("remote delete failed", "operation", "delete", "document_id", documentID, "error", err)
		return false
	}
	if a.indexer != nil {
		a.indexer.RemoveDocument(documentID)
	}
	return true
}

type UploadInput struct {
	ProjectID   string
	UserID      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload stores the file in blob storage and records a document pointing at
// it. The blob is removed again when no record could be written.
func (a *Adapter) Upload(ctx context.Context, in UploadInput) *store.Document {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.ProjectID, validation.Required),
		validation.Field(&in.FileName, validation.Required, validation.Length(1, MaxTitleLength)),
		validation.Field(&in.Size, validation.Required, validation.Max(int64(MaxUploadSize))),
		validation.Field(&in.Body, validation.NotNil),
	); err != nil {
		a.logger.Warn("rejected upload", "operation", "upload", "project_id", in.ProjectID, "error", err)
		return nil
	}
	if a.blobs == nil {
		a.logger.Warn("upload storage not configured", "operation", "upload", "project_id", in.ProjectID)
		return nil
	}

	objectPath := blob.ObjectPath(in.ProjectID, in.FileName)
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.blobs.Put(ctx, objectPath, in.Body, in.Size, contentType); err != nil {
		a.logger.Warn("blob upload failed", "operation", "upload", "project_id", in.ProjectID, "error", err)
		return nil
	}

	size := in.Size
	created := a.Create(ctx, store.Document{
		ProjectID: in.ProjectID,
		UserID:    in.UserID,
		Title:     in.FileName,
		Type:      UploadDocumentType,
		FilePath:  &objectPath,
		FileType:  &contentType,
		FileSize:  &size,
	})
	if created == nil {
		if err := a.blobs.Remove(ctx, objectPath); err != nil {
			a.logger.Warn("orphaned upload cleanup failed", "operation", "upload", "path", objectPath, "error", err)
		}
	}
	return created
}

// FileURL returns the public URL of a document's uploaded file, if any.
func (a *Adapter) FileURL(doc store.Document) string {
	if !doc.HasFile() || a.blobs == nil {
		return ""
	}
	return a.blobs.PublicURL(*doc.FilePath)
}

// LocalDocument reads the fallback copy for (project, type) directly.
func (a *Adapter) LocalDocument(ctx context.Context, projectID, documentType string) (store.Document, bool) {
	return a.loadLocal(ctx, fallback.DocumentKey(projectID, documentType))
}

// LocalDocuments lists every fallback entry of a project, including those
// whose type also has remote documents and so never appear in Snapshot.
func (a *Adapter) LocalDocuments(ctx context.Context, projectID string) []store.Document {
	return a.localDocuments(ctx, projectID)
}

// DropLocal removes a fallback entry once its document lives remotely. Any
// uploaded file is left in place for the remote record.
func (a *Adapter) DropLocal(ctx context.Context, documentID string) bool {
	return a.deleteLocal(ctx, documentID, true)
}

func (a *Adapter) afterWrite(ctx context.Context, doc store.Document) {
	if a.indexer != nil {
		a.indexer.IndexDocument(doc)
	}
	if a.recorder != nil {
		if err := a.recorder.Record(ctx, doc); err != nil {
			a.logger.Warn("revision record failed", "operation", "record", "document_id", doc.ID, "error", err)
		}
	}
}

func (a *Adapter) removeFile(ctx context.Context, doc store.Document) {
	if !doc.HasFile() || a.blobs == nil {
		return
	}
	if err := a.blobs.Remove(ctx, *doc.FilePath); err != nil {
		a.logger.Warn("file removal failed, deleting record anyway",
			"operation", "delete",
			"document_id", doc.ID,
			"path", *doc.FilePath,
			"error", err,
		)
	}
}

func validateDocument(doc store.Document) error {
	return validation.ValidateStruct(&doc,
		validation.Field(&doc.ProjectID, validation.Required),
		validation.Field(&doc.Title, validation.Required, validation.Length(1, MaxTitleLength)),
		validation.Field(&doc.Type, validation.Required, validation.Length(1, 100)),
	)
}

// Local fallback layout: the document JSON lives under
// document_{projectId}_{type}, and the document id maps to that key so
// id-based operations can find it.

func (a *Adapter) saveLocal(ctx context.Context, doc store.Document) error {
	key := fallback.DocumentKey(doc.ProjectID, doc.Type)
	if err := a.writeLocal(ctx, key, doc); err != nil {
		return err
	}
	if err := a.local.Set(ctx, doc.ID, key); err != nil {
		return fmt.Errorf("index local document: %w", err)
	}
	return nil
}

func (a *Adapter) writeLocal(ctx context.Context, key string, doc store.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal local document: %w", err)
	}
	return a.local.Set(ctx, key, string(payload))
}

func (a *Adapter) loadLocal(ctx context.Context, key string) (store.Document, bool) {
	raw, ok, err := a.local.Get(ctx, key)
	if err != nil {
		a.logger.Warn("local fallback read failed", "operation", "read", "key", key, "error", err)
		return store.Document{}, false
	}
	if !ok {
		return store.Document{}, false
	}
	var doc store.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		a.logger.Warn("corrupt local fallback entry", "operation", "read", "key", key, "error", err)
		return store.Document{}, false
	}
	return doc, true
}

func (a *Adapter) loadLocalByID(ctx context.Context, documentID string) (store.Document, string, bool) {
	key, ok, err := a.local.Get(ctx, documentID)
	if err != nil || !ok {
		return store.Document{}, "", false
	}
	doc, ok := a.loadLocal(ctx, key)
	// The key may since have been overwritten by another document of the
	// same type.
	if !ok || doc.ID != documentID {
		return store.Document{}, "", false
	}
	return doc, key, true
}

func (a *Adapter) localDocuments(ctx context.Context, projectID string) []store.Document {
	keys, err := a.local.Keys(ctx, fallback.DocumentPrefix(projectID))
	if err != nil {
		a.logger.Warn("local fallback scan failed", "operation", "read", "project_id", projectID, "error", err)
		return nil
	}
	docs := make([]store.Document, 0, len(keys))
	for _, key := range keys {
		doc, ok := a.loadLocal(ctx, key)
		if !ok || doc.ProjectID != projectID {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func (a *Adapter) deleteLocal(ctx context.Context, documentID string, keepFile bool) bool {
	doc, key, ok := a.loadLocalByID(ctx, documentID)
	if !ok {
		_ = a.local.Delete(ctx, documentID)
		return false
	}
	if !keepFile {
		a.removeFile(ctx, doc)
	}
	if err := a.local.Delete(ctx, key); err != nil {
		a.logger.Warn("local fallback delete failed", "operation", "delete", "document_id", documentID, "error", err)
		return false
	}
	_ = a.local.Delete(ctx, documentID)
	return true
}
