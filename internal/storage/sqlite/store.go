// Package sqlite implements the document and chat message stores on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/wfrp3e/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"github.com/louisbranch/wfrp3e/internal/storage/cursor"
	"github.com/louisbranch/wfrp3e/internal/storage/filter"
	"github.com/louisbranch/wfrp3e/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Store provides SQLite-backed documents and chat messages.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens an engine SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetDocument loads one document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (storage.Document, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Document{}, err
	}
	return getDocument(ctx, s.sqlDB, strings.TrimSpace(id))
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, id string) (storage.Document, error) {
	if id == "" {
		return storage.Document{}, fmt.Errorf("document id is required")
	}
	var doc storage.Document
	var data string
	var updatedAt int64
	err := q.QueryRowContext(ctx, `
SELECT id, kind, name, data, updated_at
FROM documents
WHERE id = ?
`, id).Scan(&doc.ID, &doc.Kind, &doc.Name, &data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.Data = json.RawMessage(data)
	doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return doc, nil
}

// PutDocument inserts or replaces a document.
func (s *Store) PutDocument(ctx context.Context, doc storage.Document) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	doc.ID = strings.TrimSpace(doc.ID)
	doc.Kind = strings.TrimSpace(doc.Kind)
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.Kind == "" {
		return fmt.Errorf("document kind is required")
	}
	if len(doc.Data) == 0 {
		doc.Data = json.RawMessage("{}")
	}
	if !json.Valid(doc.Data) {
		return fmt.Errorf("document %s data is not valid JSON", doc.ID)
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = s.now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO documents (id, kind, name, data, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	name = excluded.name,
	data = excluded.data,
	updated_at = excluded.updated_at
`,
		doc.ID,
		doc.Kind,
		doc.Name,
		string(doc.Data),
		doc.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// UpdateDocument applies a partial field update inside one transaction.
func (s *Store) UpdateDocument(ctx context.Context, id string, fields map[string]any) (storage.Document, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Document{}, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Document{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := getDocument(ctx, tx, strings.TrimSpace(id))
	if err != nil {
		return storage.Document{}, err
	}
	data, err := storage.ApplyFields(doc.Data, fields)
	if err != nil {
		return storage.Document{}, fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	doc.Data = data
	doc.UpdatedAt = s.now().UTC()

	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET data = ?, updated_at = ? WHERE id = ?
`, string(doc.Data), doc.UpdatedAt.UnixMilli(), doc.ID); err != nil {
		return storage.Document{}, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Document{}, fmt.Errorf("commit update: %w", err)
	}
	return doc, nil
}

// PutMessage appends a chat message and returns it with its sequence.
func (s *Store) PutMessage(ctx context.Context, msg storage.Message) (storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Message{}, err
	}
	msg.ID = strings.TrimSpace(msg.ID)
	msg.Kind = strings.TrimSpace(msg.Kind)
	if msg.ID == "" {
		return storage.Message{}, fmt.Errorf("message id is required")
	}
	if msg.Kind == "" {
		return storage.Message{}, fmt.Errorf("message kind is required")
	}
	if msg.Mode == "" {
		msg.Mode = "public"
	}
	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage("{}")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	msg.UpdatedAt = msg.CreatedAt

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO messages (
	id,
	actor_id,
	kind,
	outcome,
	mode,
	content,
	sound,
	payload,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		msg.ID,
		msg.ActorID,
		msg.Kind,
		msg.Outcome,
		msg.Mode,
		msg.Content,
		boolToInt(msg.Sound),
		string(msg.Payload),
		msg.CreatedAt.UTC().UnixMilli(),
		msg.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return storage.Message{}, fmt.Errorf("put message: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return storage.Message{}, fmt.Errorf("message sequence: %w", err)
	}
	msg.Seq = seq
	return msg, nil
}

const messageColumns = `
	seq,
	id,
	actor_id,
	kind,
	outcome,
	mode,
	content,
	sound,
	payload,
	created_at,
	updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (storage.Message, error) {
	var msg storage.Message
	var sound int
	var payload string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&msg.Seq,
		&msg.ID,
		&msg.ActorID,
		&msg.Kind,
		&msg.Outcome,
		&msg.Mode,
		&msg.Content,
		&sound,
		&payload,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Message{}, err
	}
	msg.Sound = sound != 0
	msg.Payload = json.RawMessage(payload)
	msg.CreatedAt = time.UnixMilli(createdAt).UTC()
	msg.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return msg, nil
}

// GetMessage loads one chat message by ID.
func (s *Store) GetMessage(ctx context.Context, id string) (storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Message{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Message{}, fmt.Errorf("message id is required")
	}
	msg, err := scanMessage(s.sqlDB.QueryRowContext(ctx, "SELECT"+messageColumns+"\nFROM messages WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Message{}, fmt.Errorf("message %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// UpdatePayload replaces a message's payload and outcome.
func (s *Store) UpdatePayload(ctx context.Context, id, outcome string, payload json.RawMessage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("message %s payload is not valid JSON", id)
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE messages SET payload = ?, outcome = ?, updated_at = ? WHERE id = ?
`, string(payload), outcome, s.now().UTC().UnixMilli(), strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListMessages lists messages oldest first, filtered by an AIP-160 expression.
func (s *Store) ListMessages(ctx context.Context, filterStr string, pageSize int, pageToken string) (storage.MessagePage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MessagePage{}, err
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	cond, err := filter.ParseMessageFilter(filterStr)
	if err != nil {
		return storage.MessagePage{}, fmt.Errorf("invalid filter: %w", err)
	}

	afterSeq := int64(0)
	if pageToken != "" {
		c, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.MessagePage{}, fmt.Errorf("invalid page token: %w", err)
		}
		if err := cursor.ValidateFilterHash(c, filterStr); err != nil {
			return storage.MessagePage{}, fmt.Errorf("invalid page token: %w", err)
		}
		afterSeq = c.Seq
	}

	query := "SELECT" + messageColumns + "\nFROM messages\nWHERE seq > ?"
	params := []any{afterSeq}
	if !cond.Empty() {
		query += " AND " + cond.Clause
		params = append(params, cond.Params...)
	}
	query += "\nORDER BY seq ASC\nLIMIT ?"
	params = append(params, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return storage.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]storage.Message, 0, pageSize)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return storage.MessagePage{}, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return storage.MessagePage{}, fmt.Errorf("iterate messages: %w", err)
	}

	page := storage.MessagePage{Messages: messages}
	if len(messages) > pageSize {
		page.Messages = messages[:pageSize]
		token, err := cursor.Encode(cursor.New(page.Messages[pageSize-1].Seq, filterStr))
		if err != nil {
			return storage.MessagePage{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var (
	_ storage.DocumentStore = (*Store)(nil)
	_ storage.MessageStore  = (*Store)(nil)
)
