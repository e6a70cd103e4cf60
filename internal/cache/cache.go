// Package cache stores raw document bytes keyed by invoice record id, so OCR
// can be re-run without re-upload. Backed by a local SQLite file rather than
// process memory: a cache miss after restart is the exception, not the rule.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nfscan/nfscan/internal/common"
)

// DocumentCache holds original document bytes per invoice id. Get reports a
// miss with common.ErrDocumentNotCached, distinct from storage errors.
type DocumentCache interface {
	Put(ctx context.Context, invoiceID, filename string, data []byte) error
	Get(ctx context.Context, invoiceID string) (filename string, data []byte, err error)
	Delete(ctx context.Context, invoiceID string) error
	Close() error
}

type sqliteCache struct {
	db *sql.DB
}

// Open initializes the cache database at baseDir/documents.db. The baseDir
// parameter lets tests use t.TempDir().
func Open(baseDir string) (DocumentCache, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "documents.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	invoice_id TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	data       BLOB NOT NULL,
	stored_at  INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &sqliteCache{db: db}, nil
}

func (c *sqliteCache) Put(ctx context.Context, invoiceID, filename string, data []byte) error {
	const q = `
INSERT INTO documents (invoice_id, filename, data, stored_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(invoice_id) DO UPDATE SET
	filename = excluded.filename,
	data = excluded.data,
	stored_at = excluded.stored_at;`
	_, err := c.db.ExecContext(ctx, q, invoiceID, filename, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (c *sqliteCache) Get(ctx context.Context, invoiceID string) (string, []byte, error) {
	const q = `SELECT filename, data FROM documents WHERE invoice_id = ?;`
	var filename string
	var data []byte
	err := c.db.QueryRowContext(ctx, q, invoiceID).Scan(&filename, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w: %s", common.ErrDocumentNotCached, invoiceID)
	}
	if err != nil {
		return "", nil, fmt.Errorf("cache get: %w", err)
	}
	return filename, data, nil
}

func (c *sqliteCache) Delete(ctx context.Context, invoiceID string) error {
	const q = `DELETE FROM documents WHERE invoice_id = ?;`
	if _, err := c.db.ExecContext(ctx, q, invoiceID); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *sqliteCache) Close() error {
	return c.db.Close()
}
