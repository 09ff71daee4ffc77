package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dapp-works/urpc/ports"
)

// DocumentStore implements ports.DocumentStore using SQLite.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new document store.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Get retrieves the document at key.
func (s *DocumentStore) Get(ctx context.Context, key string) (any, error) {
	var body string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE key = ?`,
		key,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return decode(body)
}

// Put stores or replaces the document at key.
func (s *DocumentStore) Put(ctx context.Context, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return upsert(ctx, s.db.DB, key, body)
}

// Update reads, transforms and writes the document at key in one
// transaction. fn receives nil when no document exists.
func (s *DocumentStore) Update(ctx context.Context, key string, fn func(doc any) (any, error)) (any, error) {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current any
	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		if current, err = decode(body); err != nil {
			return nil, err
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := upsert(ctx, tx, key, raw); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return decode(string(raw))
}

// Delete removes the document at key. Deleting a missing key is not an error.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key)
	return err
}

// Keys lists every stored key in ascending order.
func (s *DocumentStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT key FROM documents ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, key string, body []byte) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO documents (key, body, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP`,
		key, string(body),
	)
	return err
}

func decode(body string) (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocumentStore)(nil)
