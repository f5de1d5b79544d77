package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ideaforge/api/internal/auth"
	"ideaforge/api/internal/documents"
	"ideaforge/api/internal/export"
	"ideaforge/api/internal/fallback"
	"ideaforge/api/internal/migration"
	"ideaforge/api/internal/revisions"
	"ideaforge/api/internal/search"
	"ideaforge/api/internal/sectionsync"
	"ideaforge/api/internal/store"
)

type testService struct {
	svc     *Service
	remote  *store.MemoryStore
	local   *fallback.MemoryStore
	adapter *documents.Adapter
}

// newTestService wires the real components over in-memory stores. Fields set
// in deps are kept.
func newTestService(t *testing.T, deps Deps) testService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	remote := store.NewMemoryStore()
	local := fallback.NewMemoryStore()
	history := revisions.New(t.TempDir())
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := documents.New(remote, local, logger,
		documents.WithRecorder(history),
		documents.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)

	deps.Documents = adapter
	deps.Sections = sectionsync.New(adapter, local, logger)
	deps.Sweeper = migration.NewSweeper(adapter, logger, migration.WithCombinedCache(local))
	deps.Search = search.NewService(logger, nil, search.NewScan(adapter))
	deps.Export = export.NewService(adapter, logger)
	deps.Revisions = history
	deps.Logger = logger
	return testService{
		svc:     NewService(deps),
		remote:  remote,
		local:   local,
		adapter: adapter,
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	server := NewHTTPServer(newTestService(t, Deps{}).svc, "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/projects/p1/documents", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if decodeResponse(t, rr)["code"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestBearerTokenIdentity(t *testing.T) {
	ts := newTestService(t, Deps{Verifier: auth.NewHMACVerifier("test-secret")})
	server := NewHTTPServer(ts.svc, "*")
	token, err := auth.IssueHS256("test-secret", "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueHS256: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/documents",
		strings.NewReader(`{"title":"Notes","type":"notes","content":"hello"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	doc := decodeResponse(t, rr)["document"].(map[string]any)
	if doc["userId"] != "user-42" {
		t.Fatalf("expected owner from token subject, got %v", doc["userId"])
	}

	// The header fallback is disabled once tokens are verified.
	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/projects/p1/documents", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for header identity, got %d", rr.Code)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ts := newTestService(t, Deps{})
	handler := NewHTTPServer(ts.svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/projects/p1/documents", map[string]any{
		"title": "Notes", "type": "notes", "content": "first draft",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeResponse(t, rr)["document"].(map[string]any)
	id := created["id"].(string)

	rr = doRequest(t, handler, http.MethodGet, "/api/projects/p1/documents", nil)
	list := decodeResponse(t, rr)["documents"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected 1 document, got %d", len(list))
	}

	rr = doRequest(t, handler, http.MethodPut, "/api/documents/"+id, map[string]any{"content": "second draft"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/documents/"+id, nil)
	doc := decodeResponse(t, rr)["document"].(map[string]any)
	if doc["content"] != "second draft" {
		t.Fatalf("expected updated content, got %v", doc["content"])
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/documents/"+id+"/history", nil)
	revs := decodeResponse(t, rr)["revisions"].([]any)
	if len(revs) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revs))
	}
	oldest := revs[1].(map[string]any)["hash"].(string)
	rr = doRequest(t, handler, http.MethodGet, "/api/documents/"+id+"/history/"+oldest, nil)
	if decodeResponse(t, rr)["content"] != "first draft" {
		t.Fatalf("expected first draft at oldest revision, got %s", rr.Body.String())
	}

	for _, hash := range []string{"0123456789abcdef0123456789abcdef01234567", "not-a-hash"} {
		rr = doRequest(t, handler, http.MethodGet, "/api/documents/"+id+"/history/"+hash, nil)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("history/%s: expected 404, got %d", hash, rr.Code)
		}
	}

	rr = doRequest(t, handler, http.MethodDelete, "/api/documents/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	rr = doRequest(t, handler, http.MethodGet, "/api/documents/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, Deps{}).svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/projects/p1/documents", map[string]any{"content": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/documents", strings.NewReader("{not json"))
	req.Header.Set("X-User-ID", "u1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest || decodeResponse(t, rr)["code"] != "INVALID_BODY" {
		t.Fatalf("expected INVALID_BODY, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, Deps{}).svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodPut, "/api/documents/missing", map[string]any{"content": "x"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestSectionEndpoints(t *testing.T) {
	ts := newTestService(t, Deps{})
	handler := NewHTTPServer(ts.svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodGet, "/api/projects/p1/sections/project_overview_goals", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get empty section: expected 200, got %d", rr.Code)
	}
	section := decodeResponse(t, rr)["section"].(map[string]any)
	if section["document"] != nil || section["content"] != "No goals defined yet." {
		t.Fatalf("expected placeholder section, got %v", section)
	}

	rr = doRequest(t, handler, http.MethodPut, "/api/projects/p1/sections/project_overview_goals", map[string]any{"content": "Ship v1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("save section: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	section = decodeResponse(t, rr)["section"].(map[string]any)
	if section["content"] != "Ship v1" || section["title"] != "Goals" || section["category"] != "overview" {
		t.Fatalf("unexpected section %v", section)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/projects/p1/categories/overview/combined", nil)
	combined := decodeResponse(t, rr)["content"].(string)
	if !strings.Contains(combined, "## Goals\n\nShip v1") {
		t.Fatalf("combined view missing saved section: %q", combined)
	}

	docs, _ := ts.remote.FindDocuments(context.Background(), "p1", "project_overview", "Project Overview")
	if len(docs) != 1 {
		t.Fatalf("expected structured document to be created, got %d", len(docs))
	}
}

func TestSectionErrors(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, Deps{}).svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodPut, "/api/projects/p1/sections/bogus", map[string]any{"content": "x"})
	if rr.Code != http.StatusBadRequest || decodeResponse(t, rr)["code"] != "UNKNOWN_SECTION" {
		t.Fatalf("expected UNKNOWN_SECTION, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, handler, http.MethodPut, "/api/projects/p1/sections/project_overview_goals", map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing content, got %d", rr.Code)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/projects/p1/categories/nope/combined", nil)
	if rr.Code != http.StatusBadRequest || decodeResponse(t, rr)["code"] != "UNKNOWN_CATEGORY" {
		t.Fatalf("expected UNKNOWN_CATEGORY, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestActivateRunsSweep(t *testing.T) {
	ts := newTestService(t, Deps{})
	handler := NewHTTPServer(ts.svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/projects/p1/activate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	report := decodeResponse(t, rr)["report"].(map[string]any)
	if report["created"] != float64(3) || report["converged"] != true {
		t.Fatalf("unexpected report %v", report)
	}

	rr = doRequest(t, handler, http.MethodPost, "/api/projects/p1/activate", nil)
	report = decodeResponse(t, rr)["report"].(map[string]any)
	if report["created"] != float64(0) || report["converged"] != true {
		t.Fatalf("second sweep should be a no-op, got %v", report)
	}
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestService(t, Deps{})
	handler := NewHTTPServer(ts.svc, "*").Handler()
	doRequest(t, handler, http.MethodPost, "/api/projects/p1/documents", map[string]any{
		"title": "Pricing", "type": "notes", "content": "tiered pricing for teams",
	})
	doRequest(t, handler, http.MethodPost, "/api/projects/p1/documents", map[string]any{
		"title": "Hiring", "type": "notes", "content": "two engineers",
	})

	rr := doRequest(t, handler, http.MethodGet, "/api/projects/p1/search?q=pricing", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	results := payload["results"].([]any)
	if len(results) != 1 || payload["backend"] != "scan" {
		t.Fatalf("unexpected search response %v", payload)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/projects/p1/search", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without q, got %d", rr.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	ts := newTestService(t, Deps{})
	handler := NewHTTPServer(ts.svc, "*").Handler()
	rr := doRequest(t, handler, http.MethodPost, "/api/projects/p1/documents", map[string]any{
		"title": "Pitch", "type": "notes", "content": "# Pitch\n\nWe build things.",
	})
	id := decodeResponse(t, rr)["document"].(map[string]any)["id"].(string)

	rr = doRequest(t, handler, http.MethodGet, "/api/documents/"+id+"/export?format=md", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "Pitch.md") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rr.Body.String(), "We build things.") {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/documents/"+id+"/export?format=odt", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported format, got %d", rr.Code)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/documents/missing/export?format=md", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing document, got %d", rr.Code)
	}
}

func TestUploadWithoutBlobStore(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, Deps{}).svc, "*").Handler()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "plan.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4"))
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/uploads", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable || decodeResponse(t, rr)["code"] != "UPLOAD_FAILED" {
		t.Fatalf("expected UPLOAD_FAILED, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestUploadRequiresFile(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, Deps{}).svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/projects/p1/uploads", map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, Deps{}).svc, "*").Handler()

	rr := doRequest(t, handler, http.MethodGet, "/api/nothing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}
