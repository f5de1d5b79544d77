package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("IDEAFORGE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("IDEAFORGE_TEST_DATABASE_URL is not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	migrationsDir := filepath.Join("..", "..", "db", "migrations")

	if err := ApplyMigrations(ctx, db, migrationsDir, nil); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if err := applyDownMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrationsDir, nil); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestPostgresStoreDocumentLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations"), nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)
	now := time.Now().UTC().Truncate(time.Millisecond)
	path := "p1/file.pdf"
	size := int64(42)

	doc := Document{
		ID: "11111111-1111-4111-8111-111111111111", ProjectID: "p1", UserID: "u1",
		Title: "Objectives & Goals", Type: "project_planning", Content: "Grow",
		FilePath: &path, FileSize: &size, SchemaVersion: CurrentSchemaVersion,
		CreatedAt: now, UpdatedAt: now,
	}
	created, err := s.InsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	if created.FilePath == nil || *created.FilePath != path || created.FileType != nil {
		t.Fatalf("unexpected nullable columns %+v", created)
	}

	doc.Content = "Grow faster"
	if _, err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	found, err := s.FindDocuments(ctx, "p1", "project_planning", "Objectives & Goals")
	if err != nil || len(found) != 1 || found[0].Content != "Grow faster" {
		t.Fatalf("FindDocuments() = %+v, %v", found, err)
	}

	updated, err := s.UpdateDocumentContent(ctx, doc.ID, "Final", now.Add(time.Minute))
	if err != nil || updated.Content != "Final" {
		t.Fatalf("UpdateDocumentContent() = %+v, %v", updated, err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	type migration struct {
		version string
		path    string
	}
	downs := make([]migration, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		downs = append(downs, migration{version: match[1], path: filepath.Join(migrationsDir, entry.Name())})
	}

	sort.Slice(downs, func(i, j int) bool {
		return downs[i].version > downs[j].version
	})

	for _, down := range downs {
		sqlBytes, err := os.ReadFile(down.path)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}
	return nil
}
