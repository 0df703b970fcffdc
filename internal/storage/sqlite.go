package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteBackend implements ObjectStore using SQLite as the underlying data
// store. Object data is stored as BLOBs directly in the database, making
// this suitable for single-node or offline deployments with small photos.
type SQLiteBackend struct {
	db     *sql.DB
	bucket string
	now    func() time.Time
}

// NewSQLiteBackend creates a new SQLiteBackend backed by the given database
// file path. It creates the parent directory, opens the database, applies
// performance PRAGMAs, and creates the required table.
func NewSQLiteBackend(dbPath, bucket string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating SQLite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite storage database: %w", err)
	}

	b := &SQLiteBackend{db: db, bucket: bucket, now: time.Now}
	if err := b.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite storage database: %w", err)
	}
	return b, nil
}

// initDB applies PRAGMAs and creates the required tables.
func (b *SQLiteBackend) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := b.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS photo_objects (
			bucket       TEXT    NOT NULL,
			name         TEXT    NOT NULL,
			data         BLOB    NOT NULL,
			content_type TEXT    NOT NULL DEFAULT '',
			metadata     TEXT    NOT NULL DEFAULT '{}',
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (bucket, name)
		);
	`
	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("creating storage schema: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database connection.
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Shutdown closes the database when the injector shuts down.
func (b *SQLiteBackend) Shutdown() error {
	return b.Close()
}

// Bucket returns the logical bucket name rows are scoped to.
func (b *SQLiteBackend) Bucket() string {
	return b.bucket
}

// PutObject reads all data from the reader and upserts it as a row.
func (b *SQLiteBackend) PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading object data: %w", err)
	}

	meta := opts.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO photo_objects (bucket, name, data, content_type, metadata, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.bucket, name, data, opts.ContentType, string(metaJSON), b.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storing object data: %w", err)
	}
	return nil
}

// ListObjects returns the names under prefix in name order.
func (b *SQLiteBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT name FROM photo_objects WHERE bucket = ? AND instr(name, ?) = 1 ORDER BY name`,
		b.bucket, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning object name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// StatObject reads the object's attributes without loading its data.
func (b *SQLiteBackend) StatObject(ctx context.Context, name string) (*ObjectInfo, error) {
	var (
		contentType string
		metaJSON    string
		size        int64
		updatedNano int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT content_type, metadata, length(data), updated_at FROM photo_objects WHERE bucket = ? AND name = ?`,
		b.bucket, name,
	).Scan(&contentType, &metaJSON, &size, &updatedNano)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object row: %w", err)
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", name, err)
	}

	return &ObjectInfo{
		Name:        name,
		ContentType: contentType,
		Size:        size,
		Updated:     time.Unix(0, updatedNano).UTC(),
		Metadata:    meta,
	}, nil
}

// SignedURL is not supported: there is nothing to sign against.
func (b *SQLiteBackend) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	return "", ErrSigningUnsupported
}

// PublicHost returns localhost.
func (b *SQLiteBackend) PublicHost() string {
	return "localhost"
}

// HealthCheck pings the database.
func (b *SQLiteBackend) HealthCheck(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Ensure SQLiteBackend implements ObjectStore at compile time.
var _ ObjectStore = (*SQLiteBackend)(nil)
