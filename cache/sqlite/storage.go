package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonwraymond/sitecache/cache"
	"github.com/jonwraymond/sitecache/cache/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Storage is a SQLite-backed cache.Storage.
type Storage struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer keeps same-key puts strictly last-write-wins.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the database.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return cache.ErrNilStorage
	}
	return s.db.PingContext(ctx)
}

// Open returns the store named name, creating it if needed.
func (s *Storage) Open(ctx context.Context, name string) (cache.Store, error) {
	if err := cache.ValidateName(name); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO cache_stores (name, seq, created_at)
VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM cache_stores), ?)`,
		name, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	return &store{db: s.db, name: name}, nil
}

// Has reports whether a store named name exists.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	return storeExists(ctx, s.db, name)
}

// Delete removes the store named name and all of its entries.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete store %q: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE store_name = ?`, name); err != nil {
		return false, fmt.Errorf("delete entries of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cache_stores WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete store %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete store %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("delete store %q: %w", name, err)
	}
	return n > 0, nil
}

// Keys lists store names in creation order.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cache_stores ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan store name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Match searches every store in creation order.
func (s *Storage) Match(ctx context.Context, key cache.Key) (*cache.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT e.method, e.url, e.status, e.header, e.body, e.response_type, e.stored_at
FROM cache_entries e
JOIN cache_stores s ON s.name = e.store_name
WHERE e.key_digest = ?
ORDER BY s.seq
LIMIT 1`, key.Digest())
	return scanEntry(row)
}

type store struct {
	db   *sql.DB
	name string
}

func (st *store) Name() string {
	return st.name
}

func (st *store) Match(ctx context.Context, key cache.Key) (*cache.Entry, bool, error) {
	row := st.db.QueryRowContext(ctx, `
SELECT method, url, status, header, body, response_type, stored_at
FROM cache_entries
WHERE store_name = ? AND key_digest = ?`, st.name, key.Digest())
	return scanEntry(row)
}

func (st *store) Put(ctx context.Context, key cache.Key, entry *cache.Entry) error {
	if entry == nil {
		return cache.ErrNilEntry
	}
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := storeExists(ctx, tx, st.name)
	if err != nil {
		return err
	}
	if !exists {
		return cache.ErrStoreDeleted
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO cache_entries (
	store_name, key_digest, method, url, status, header, body, response_type, stored_at, seq
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
	(SELECT COALESCE(MAX(seq), 0) + 1 FROM cache_entries WHERE store_name = ?))
ON CONFLICT (store_name, key_digest) DO UPDATE SET
	status = excluded.status,
	header = excluded.header,
	body = excluded.body,
	response_type = excluded.response_type,
	stored_at = excluded.stored_at`,
		st.name, key.Digest(), key.Method, key.URL,
		entry.StatusCode, string(header), entry.Body, string(entry.Type),
		storedAt.UnixMilli(), st.name,
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (st *store) Delete(ctx context.Context, key cache.Key) (bool, error) {
	res, err := st.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE store_name = ? AND key_digest = ?`,
		st.name, key.Digest(),
	)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (st *store) Keys(ctx context.Context) ([]cache.Key, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT method, url FROM cache_entries WHERE store_name = ? ORDER BY seq`, st.name)
	if err != nil {
		return nil, fmt.Errorf("list keys of %q: %w", st.name, err)
	}
	defer rows.Close()

	var keys []cache.Key
	for rows.Next() {
		var k cache.Key
		if err := rows.Scan(&k.Method, &k.URL); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func storeExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM cache_stores WHERE name = ?`, name,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("check store %q: %w", name, err)
	}
	return n > 0, nil
}

func scanEntry(row *sql.Row) (*cache.Entry, bool, error) {
	var (
		e        cache.Entry
		header   string
		typ      string
		storedAt int64
	)
	err := row.Scan(&e.Key.Method, &e.Key.URL, &e.StatusCode, &header, &e.Body, &typ, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan entry: %w", err)
	}
	e.Header = make(http.Header)
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, false, fmt.Errorf("decode header: %w", err)
	}
	e.Type = cache.ResponseType(typ)
	e.StoredAt = time.UnixMilli(storedAt).UTC()
	return &e, true, nil
}

// Ensure Storage implements cache.Storage
var _ cache.Storage = (*Storage)(nil)
