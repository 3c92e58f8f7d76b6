// Package catalog persists file metadata in SQLite and answers the lookups
// the upload pipeline needs: by owner and hash, by owner and name, by id.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no entry matches the lookup.
	ErrNotFound = errors.New("catalog: entry not found")

	// ErrDuplicateName is returned when an insert violates the unique
	// (owner, name) constraint. It is the last line of defense against two
	// concurrent uploads racing past the duplicate check.
	ErrDuplicateName = errors.New("catalog: entry with this name already exists")
)

// Entry is the catalog's unit of record for one stored file.
type Entry struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	Name       string    `json:"fileName"`
	StorageKey string    `json:"filePath"`
	Category   string    `json:"category"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadDate"`
}

// Catalog is a SQLite-backed metadata store.
type Catalog struct {
	DB   *sql.DB
	path string
}

// New opens (or creates) the catalog database at dbPath and ensures the
// schema exists. Use ":memory:" for an ephemeral catalog.
func New(dbPath string) (*Catalog, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "/" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create catalog directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	c := &Catalog{DB: db, path: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	_, err := c.DB.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id          TEXT PRIMARY KEY,
			owner       TEXT NOT NULL,
			name        TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			category    TEXT NOT NULL,
			hash        TEXT NOT NULL,
			size        INTEGER NOT NULL,
			uploaded_at TIMESTAMP NOT NULL,
			UNIQUE(owner, name)
		);
		CREATE INDEX IF NOT EXISTS idx_files_owner_hash ON files(owner, hash);
	`)
	if err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.DB.Close()
}

// Insert stores a new entry. It returns ErrDuplicateName when the
// (owner, name) pair already exists.
func (c *Catalog) Insert(ctx context.Context, entry *Entry) error {
	_, err := c.DB.ExecContext(ctx,
		`INSERT INTO files (id, owner, name, storage_key, category, hash, size, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Owner, entry.Name, entry.StorageKey, entry.Category,
		entry.Hash, entry.Size, entry.UploadedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// GetByHash returns the owner's entry with the given content hash.
func (c *Catalog) GetByHash(ctx context.Context, owner, hash string) (*Entry, error) {
	row := c.DB.QueryRowContext(ctx,
		selectColumns+` WHERE owner = ? AND hash = ?`, owner, hash)
	return scanEntry(row)
}

// GetByName returns the owner's entry with the given display name.
func (c *Catalog) GetByName(ctx context.Context, owner, name string) (*Entry, error) {
	row := c.DB.QueryRowContext(ctx,
		selectColumns+` WHERE owner = ? AND name = ?`, owner, name)
	return scanEntry(row)
}

// GetByID returns the entry with the given id, scoped to owner so one tenant
// cannot address another tenant's files.
func (c *Catalog) GetByID(ctx context.Context, owner, id string) (*Entry, error) {
	row := c.DB.QueryRowContext(ctx,
		selectColumns+` WHERE owner = ? AND id = ?`, owner, id)
	return scanEntry(row)
}

// ListByOwner returns all of the owner's entries, most recently uploaded
// first.
func (c *Catalog) ListByOwner(ctx context.Context, owner string) ([]Entry, error) {
	rows, err := c.DB.QueryContext(ctx,
		selectColumns+` WHERE owner = ? ORDER BY uploaded_at DESC, name ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Owner, &e.Name, &e.StorageKey,
			&e.Category, &e.Hash, &e.Size, &e.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// Update rewrites the mutable columns of an existing entry in place.
func (c *Catalog) Update(ctx context.Context, entry *Entry) error {
	result, err := c.DB.ExecContext(ctx,
		`UPDATE files SET name = ?, category = ?, hash = ?, size = ?, uploaded_at = ?
		 WHERE id = ?`,
		entry.Name, entry.Category, entry.Hash, entry.Size, entry.UploadedAt, entry.ID,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to update entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the entry with the given id.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	result, err := c.DB.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `SELECT id, owner, name, storage_key, category, hash, size, uploaded_at FROM files`

func scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Owner, &e.Name, &e.StorageKey,
		&e.Category, &e.Hash, &e.Size, &e.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	return &e, nil
}
