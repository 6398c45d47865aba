package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"nxinfo/internal/title"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases must
// be deleted.
const schemaVersion = 1

// DefaultSize is the number of batches kept when no size is configured.
const DefaultSize = 10

var (
	// ErrSchemaMismatch indicates the database was created by another
	// schema version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrEmpty is returned when no batch has been stored yet.
	ErrEmpty = errors.New("history is empty")
	// ErrNotFound is returned for an unknown batch ID.
	ErrNotFound = errors.New("batch not found")
)

// Batch is one stored scan. Titles is only filled by Latest and Get.
type Batch struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	Source     string         `json:"source"`
	TitleCount int            `json:"title_count"`
	Titles     []*title.Title `json:"titles,omitempty"`
}

// Store is the history database.
type Store struct {
	db   *sql.DB
	path string
	size int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open creates or opens the history database at path, keeping at most size
// batches.
func Open(path string, size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &Store{db: db, path: path, size: size, enc: enc, dec: dec}
	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.dec != nil {
		s.dec.Close()
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Save stores a batch and prunes everything beyond the configured size.
func (s *Store) Save(ctx context.Context, id, source string, titles []*title.Title) error {
	raw, err := json.Marshal(titles)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	payload := s.enc.EncodeAll(raw, nil)
	created := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, created_at, source, title_count, payload) VALUES (?, ?, ?, ?, ?)`,
		id, created, source, len(titles), payload,
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM batches WHERE id NOT IN (
            SELECT id FROM batches ORDER BY created_at DESC, rowid DESC LIMIT ?
        )`, s.size,
	); err != nil {
		return fmt.Errorf("prune batches: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// List returns batch summaries, newest first.
func (s *Store) List(ctx context.Context) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, title_count FROM batches ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b       Batch
			created string
		)
		if err := rows.Scan(&b.ID, &created, &b.Source, &b.TitleCount); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.CreatedAt = parseTime(created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Latest returns the newest batch with its titles.
func (s *Store) Latest(ctx context.Context) (*Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, title_count, payload FROM batches ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	b, err := s.scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmpty
	}
	return b, err
}

// Get returns one batch with its titles.
func (s *Store) Get(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, title_count, payload FROM batches WHERE id = ?`, id)
	b, err := s.scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return b, err
}

func (s *Store) scanBatch(row *sql.Row) (*Batch, error) {
	var (
		b       Batch
		created string
		payload []byte
	)
	if err := row.Scan(&b.ID, &created, &b.Source, &b.TitleCount, &payload); err != nil {
		return nil, err
	}
	b.CreatedAt = parseTime(created)
	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress batch %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(raw, &b.Titles); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", b.ID, err)
	}
	return &b, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
