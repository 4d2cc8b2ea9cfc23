// Package store persists user-owned items as JSON documents in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"stack/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner);
`

// Item is a stored document. Data holds the caller-supplied JSON object;
// id, owner, and the timestamps are managed by the store.
type Item struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is a SQLite-backed document store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new item owned by owner and returns it with generated
// id and timestamps.
func (s *Store) Create(ctx context.Context, owner string, data map[string]any) (Item, error) {
	now := time.Now().UTC()
	item := Item{
		ID:        uuid.New().String(),
		Owner:     owner,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	blob, err := json.Marshal(data)
	if err != nil {
		return Item{}, fmt.Errorf("encoding item data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (id, owner, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Owner, string(blob),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Item{}, fmt.Errorf("inserting item: %w", err)
	}
	return item, nil
}

// Get returns the item with the given id, or domain.ErrNotFound.
// Ownership is the caller's concern: the item is returned regardless of
// owner so handlers can distinguish 403 from 404.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, data, created_at, updated_at FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// List returns up to limit items owned by owner, newest first.
func (s *Store) List(ctx context.Context, owner string, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, data, created_at, updated_at FROM items
		 WHERE owner = ? ORDER BY created_at DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Update replaces the data of an existing item and bumps updated_at.
func (s *Store) Update(ctx context.Context, id string, data map[string]any) (Item, error) {
	blob, err := json.Marshal(data)
	if err != nil {
		return Item{}, fmt.Errorf("encoding item data: %w", err)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET data = ?, updated_at = ? WHERE id = ?`,
		string(blob), now.Format(time.RFC3339Nano), id)
	if err != nil {
		return Item{}, fmt.Errorf("updating item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Item{}, domain.ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the item with the given id, or returns domain.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var blob, createdAt, updatedAt string
	if err := row.Scan(&item.ID, &item.Owner, &blob, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, domain.ErrNotFound
		}
		return Item{}, fmt.Errorf("scanning item: %w", err)
	}
	if err := json.Unmarshal([]byte(blob), &item.Data); err != nil {
		return Item{}, fmt.Errorf("decoding item data: %w", err)
	}
	var err error
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Item{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Item{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return item, nil
}
