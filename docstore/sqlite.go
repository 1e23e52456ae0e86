package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schema string

var _ Store = (*SQLiteStore)(nil)

// filterColumns maps filterable metadata keys to columns. Values never reach
// the SQL text.
var filterColumns = map[string]string{
	KeyFilename:    "filename",
	KeyFingerprint: "fingerprint",
	KeySource:      "source",
}

// SQLiteStore persists chunks in a single SQLite file and ranks them by
// brute-force cosine distance, which is fast enough for a personal corpus.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Upsert(ctx context.Context, entries []Entry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, filename, fingerprint, ordinal, source, mtime, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			fingerprint = excluded.fingerprint,
			ordinal = excluded.ordinal,
			source = excluded.source,
			mtime = excluded.mtime,
			text = excluded.text,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx, e.ID, e.Meta.Filename, e.Meta.Fingerprint, e.Meta.Ordinal,
			e.Meta.Source, unixNano(e.Meta.ModTime), e.Text, float32SliceToBytes(e.Vector))
		if err != nil {
			return fmt.Errorf("upserting %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	return nil
}

func (s *SQLiteStore) DeleteWhere(ctx context.Context, filter Filter) error {
	col, ok := filterColumns[filter.Key]
	if !ok {
		return fmt.Errorf("unsupported filter key %q", filter.Key)
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE "+col+" = ?", filter.Value)
	if err != nil {
		return fmt.Errorf("deleting where %s=%s: %w", filter.Key, filter.Value, err)
	}

	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, fingerprint, ordinal, source, mtime, text, vector FROM chunks
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			m     Match
			mtime int64
			blob  []byte
		)
		if err := rows.Scan(&m.ID, &m.Meta.Filename, &m.Meta.Fingerprint, &m.Meta.Ordinal,
			&m.Meta.Source, &mtime, &m.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		m.Meta.ModTime = fromUnixNano(mtime)
		d, err := cosineDistance(vector, bytesToFloat32Slice(blob))
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", m.ID, err)
		}
		m.Distance = d
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return topK(matches, k), nil
}

func (s *SQLiteStore) ListMetadata(ctx context.Context) ([]Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, fingerprint, ordinal, source, mtime FROM chunks
	`)
	if err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}
	defer rows.Close()

	var res []Metadata //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			m     Metadata
			mtime int64
		)
		if err := rows.Scan(&m.Filename, &m.Fingerprint, &m.Ordinal, &m.Source, &mtime); err != nil {
			return nil, fmt.Errorf("scanning metadata: %w", err)
		}
		m.ModTime = fromUnixNano(mtime)
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata: %w", err)
	}

	return res, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
