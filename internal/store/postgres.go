package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const documentColumns = `id, project_id, user_id, title, type, content, is_auto_generated,
	file_path, file_type, file_size, schema_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		item     Document
		filePath sql.NullString
		fileType sql.NullString
		fileSize sql.NullInt64
	)
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.UserID,
		&item.Title,
		&item.Type,
		&item.Content,
		&item.IsAutoGenerated,
		&filePath,
		&fileType,
		&fileSize,
		&item.SchemaVersion,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if filePath.Valid {
		item.FilePath = &filePath.String
	}
	if fileType.Valid {
		item.FileType = &fileType.String
	}
	if fileSize.Valid {
		item.FileSize = &fileSize.Int64
	}
	return item, nil
}

func documentArgs(item Document) []any {
	return []any{
		item.ID,
		item.ProjectID,
		item.UserID,
		item.Title,
		item.Type,
		item.Content,
		item.IsAutoGenerated,
		item.FilePath,
		item.FileType,
		item.FileSize,
		item.SchemaVersion,
		item.CreatedAt,
		item.UpdatedAt,
	}
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+documentColumns,
		documentArgs(item)...)
	created, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpsertDocument(ctx context.Context, item Document) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			type=EXCLUDED.type,
			content=EXCLUDED.content,
			is_auto_generated=EXCLUDED.is_auto_generated,
			file_path=EXCLUDED.file_path,
			file_type=EXCLUDED.file_type,
			file_size=EXCLUDED.file_size,
			schema_version=EXCLUDED.schema_version,
			updated_at=EXCLUDED.updated_at
		RETURNING `+documentColumns,
		documentArgs(item)...)
	saved, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("upsert document: %w", err)
	}
	return saved, nil
}

// InsertDocumentNoReturn inserts without a RETURNING clause, for callers that
// read the row back separately.
func (s *PostgresStore) InsertDocumentNoReturn(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, documentArgs(item)...)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID)
	item, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListProjectDocuments(ctx context.Context, projectID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE project_id=$1
		ORDER BY updated_at DESC, id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

// FindDocuments matches on project and type, and on title when one is given.
// Results are newest first.
func (s *PostgresStore) FindDocuments(ctx context.Context, projectID, documentType, title string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE project_id=$1 AND type=$2 AND ($3 = '' OR title=$3)
		ORDER BY updated_at DESC, id DESC
	`, projectID, documentType, title)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentID, content string, updatedAt time.Time) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET content=$2, updated_at=$3
		WHERE id=$1
		RETURNING `+documentColumns,
		documentID, content, updatedAt)
	item, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("update document: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
