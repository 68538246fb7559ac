// Package sqlstore provides a SQLite-backed [livequery.Store].
//
// Records of one entity live in a single table as (entity, id, data) rows;
// data is produced by a [Codec] (JSON by default). Writes go through a [Tx]:
// operations are buffered, committed in one SQL transaction and then published
// as one mutation event per operation followed by one commit event.
//
// A Store is not safe for concurrent use. Events are delivered synchronously
// from [Tx.Commit].
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/livequery/pkg/livequery"
)

const (
	schemaVersion       = 1
	sqliteBusyTimeoutMs = 10000
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrExists is returned by [Tx.Insert] for a taken id.
	ErrExists = errors.New("record already exists")

	// ErrNotFound is returned by [Tx.Update] and [Tx.Delete] for unknown ids.
	ErrNotFound = errors.New("record not found")

	// ErrWrongEntity is returned by Execute for specs of another entity.
	ErrWrongEntity = errors.New("fetch spec entity does not match store")

	// ErrSchemaVersion is returned by [Open] when the database was written by
	// an incompatible version.
	ErrSchemaVersion = errors.New("unsupported schema version")

	errEmptyID  = errors.New("record has empty id")
	errTxClosed = errors.New("transaction closed")
)

// Codec converts records to and from their stored bytes.
type Codec[R livequery.Record] interface {
	Encode(rec R) ([]byte, error)
	Decode(data []byte) (R, error)
}

// JSONCodec stores records with encoding/json. R's exported fields must carry
// everything ID needs.
type JSONCodec[R livequery.Record] struct{}

// Encode implements [Codec].
func (JSONCodec[R]) Encode(rec R) ([]byte, error) { return json.Marshal(rec) }

// Decode implements [Codec].
func (JSONCodec[R]) Decode(data []byte) (R, error) {
	var rec R

	err := json.Unmarshal(data, &rec)

	return rec, err
}

// Options configures [Open].
type Options[R livequery.Record] struct {
	// Codec defaults to [JSONCodec].
	Codec Codec[R]
}

// Store is a SQLite record store for one entity.
type Store[R livequery.Record] struct {
	db     *sql.DB
	entity string
	codec  Codec[R]
	hub    livequery.Hub[R]
	closed bool
}

// NewID returns a fresh time-ordered record id (UUIDv7).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Open opens (creating if needed) the database at path for entity. Use
// ":memory:" for a private in-memory database.
func Open[R livequery.Record](ctx context.Context, path string, entity string, opts Options[R]) (*Store[R], error) {
	if entity == "" {
		return nil, errors.New("open: entity is empty")
	}

	db, err := openSqlite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	err = ensureSchema(ctx, db)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open: %w", err), db.Close())
	}

	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec[R]{}
	}

	return &Store[R]{db: db, entity: entity, codec: codec}, nil
}

// Close closes the database. Subscriptions stay registered but no further
// events are published.
func (s *Store[R]) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}

	return nil
}

// Entity returns the entity name events are published under.
func (s *Store[R]) Entity() string { return s.entity }

// Subscribe implements [livequery.Store].
func (s *Store[R]) Subscribe(category livequery.Category, fn func(livequery.Event[R])) (func(), error) {
	return s.hub.Subscribe(category, fn)
}

// Subscribers returns the number of live subscriptions.
func (s *Store[R]) Subscribers() int { return s.hub.Subscribers() }

// Execute implements [livequery.Store]. Rows are decoded in id order and
// filtered with spec.Where; the first decode or predicate error aborts.
func (s *Store[R]) Execute(ctx context.Context, spec livequery.FetchSpec[R]) ([]R, error) {
	if s.closed {
		return nil, ErrClosed
	}

	if spec.Entity != "" && spec.Entity != s.entity {
		return nil, fmt.Errorf("execute %q: %w (store holds %q)", spec.Entity, ErrWrongEntity, s.entity)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM records WHERE entity = ? ORDER BY id", s.entity)
	if err != nil {
		return nil, fmt.Errorf("execute: sqlite: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []R

	for rows.Next() {
		var (
			id   string
			data []byte
		)

		err = rows.Scan(&id, &data)
		if err != nil {
			return nil, fmt.Errorf("execute: sqlite: %w", err)
		}

		rec, err := s.codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("execute: decode %s: %w", id, err)
		}

		ok, err := spec.Match(rec)
		if err != nil {
			return nil, fmt.Errorf("execute: record %s: %w", id, err)
		}

		if ok {
			out = append(out, rec)
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("execute: sqlite: %w", err)
	}

	return out, nil
}

// Get reads one record.
func (s *Store[R]) Get(ctx context.Context, id string) (R, bool, error) {
	var zero R

	if s.closed {
		return zero, false, ErrClosed
	}

	var data []byte

	err := s.db.QueryRowContext(ctx, "SELECT data FROM records WHERE entity = ? AND id = ?", s.entity, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}

	if err != nil {
		return zero, false, fmt.Errorf("get %s: sqlite: %w", id, err)
	}

	rec, err := s.codec.Decode(data)
	if err != nil {
		return zero, false, fmt.Errorf("get %s: decode: %w", id, err)
	}

	return rec, true, nil
}

// Count returns the number of stored records.
func (s *Store[R]) Count(ctx context.Context) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}

	var n int

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE entity = ?", s.entity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count: sqlite: %w", err)
	}

	return n, nil
}

// Update runs fn in a transaction and commits it when fn returns nil.
func (s *Store[R]) Update(ctx context.Context, fn func(tx *Tx[R]) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		tx.Rollback()

		return err
	}

	return tx.Commit(ctx)
}

// openSqlite opens the database and applies the connection pragmas.
func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	// One connection: pragmas apply consistently and ":memory:" stays one db.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("sqlite: ping: %w", err), db.Close())
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeoutMs))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("sqlite: apply pragmas: %w", err), db.Close())
	}

	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	var version int

	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("sqlite: user_version: %w", err)
	}

	switch version {
	case schemaVersion:
		return nil
	case 0:
	default:
		return fmt.Errorf("%w: %d (want %d)", ErrSchemaVersion, version, schemaVersion)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS records (
			entity TEXT NOT NULL,
			id     TEXT NOT NULL,
			data   BLOB NOT NULL,
			PRIMARY KEY (entity, id)
		) WITHOUT ROWID;
		PRAGMA user_version = %d;
	`, schemaVersion))
	if err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}

	return nil
}
