package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	DocType   string    `json:"doc_type"`
	FilePath  string    `json:"file_path,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const documentColumns = `id, title, content, doc_type, file_path, chat_id, created_at_unix`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var d Document
	var created sql.NullInt64
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.DocType, &d.FilePath, &d.ChatID, &created); err != nil {
		return Document{}, err
	}
	d.CreatedAt = fromUnix(created)
	return d, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveDocument inserts a document, assigning an id and timestamp when unset.
func (s *Store) SaveDocument(ctx context.Context, d Document) (*Document, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return nil, fmt.Errorf("%w: document without title", ErrInvalidRecord)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DocType == "" {
		d.DocType = "report"
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, doc_type, file_path, chat_id, created_at_unix) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Content, d.DocType, d.FilePath, d.ChatID, d.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	d.CreatedAt = time.Unix(d.CreatedAt.Unix(), 0).UTC()
	return &d, nil
}

func (s *Store) DocumentByID(ctx context.Context, id string) (*Document, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, strings.TrimSpace(id))
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("document by id: %w", err)
	}
	return &d, nil
}

func (s *Store) SearchDocumentsByTitle(ctx context.Context, query string, limit int) ([]Document, error) {
	out, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE LOWER(title) LIKE ? ESCAPE '\' ORDER BY created_at_unix DESC, id LIMIT ?`,
		likePattern(query), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search documents by title: %w", err)
	}
	return out, nil
}

func (s *Store) SearchDocumentsByContent(ctx context.Context, query string, limit int) ([]Document, error) {
	out, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE LOWER(content) LIKE ? ESCAPE '\' ORDER BY created_at_unix DESC, id LIMIT ?`,
		likePattern(query), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search documents by content: %w", err)
	}
	return out, nil
}
