// Package sqlitestore is a file-backed storage.Store built on
// zombiezen.com/go/sqlite.
//
// Two tables hold everything: room_kv for keyed records and room_alarm
// for the single wakeup slot of each room. Connections run in WAL mode
// so room actors reading strokes never block a writer.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_kv (
	room  TEXT NOT NULL,
	key   TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (room, key)
);
CREATE TABLE IF NOT EXISTS room_alarm (
	room    TEXT PRIMARY KEY,
	fire_at INTEGER NOT NULL
);
`

type Config struct {
	// Path of the database file. Missing parent directories are created.
	Path string
	// PoolSize defaults to 4.
	PoolSize int
}

type Store struct {
	pool *sqlitex.Pool
	path string
}

var _ storage.Store = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlitestore: Path is required")
	}
	if err := ensureDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("sqlitestore: %w", err)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %s: %w", cfg.Path, err)
	}
	log.Info().Str("module", "storage.sqlite").Str("path", cfg.Path).Int("pool_size", size).Msg("sqlite store opened")
	return &Store{pool: pool, path: cfg.Path}, nil
}

// ensureDir creates the directory holding path. URIs and in-memory
// databases are left alone.
func ensureDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitestore: schema: %w", err)
	}
	return nil
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: take: %w", err)
	}
	return conn, nil
}

func (s *Store) Get(ctx context.Context, room domain.RoomID, key string) ([]byte, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var value []byte
	found := false
	err = sqlitex.Execute(conn, "SELECT value FROM room_kv WHERE room = ? AND key = ?", &sqlitex.ExecOptions{
		Args: []any{string(room), key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBlob(stmt, 0)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get %s/%s: %w", room, key, err)
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, room domain.RoomID, key string, value []byte) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO room_kv (room, key, value) VALUES (?, ?, ?)
		ON CONFLICT (room, key) DO UPDATE SET value = excluded.value`, &sqlitex.ExecOptions{
		Args: []any{string(room), key, value},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: put %s/%s: %w", room, key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, room domain.RoomID, prefix string) (map[string][]byte, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	out := make(map[string][]byte)
	err = sqlitex.Execute(conn, "SELECT key, value FROM room_kv WHERE room = ? AND substr(key, 1, ?) = ?", &sqlitex.ExecOptions{
		Args: []any{string(room), len(prefix), prefix},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out[stmt.ColumnText(0)] = columnBlob(stmt, 1)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list %s/%s: %w", room, prefix, err)
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, room domain.RoomID) (err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	opts := &sqlitex.ExecOptions{Args: []any{string(room)}}
	if err = sqlitex.Execute(conn, "DELETE FROM room_kv WHERE room = ?", opts); err != nil {
		return fmt.Errorf("sqlitestore: delete keys %s: %w", room, err)
	}
	if err = sqlitex.Execute(conn, "DELETE FROM room_alarm WHERE room = ?", opts); err != nil {
		return fmt.Errorf("sqlitestore: delete alarm %s: %w", room, err)
	}
	return nil
}

func (s *Store) GetAlarm(ctx context.Context, room domain.RoomID) (time.Time, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer s.pool.Put(conn)

	var at time.Time
	found := false
	err = sqlitex.Execute(conn, "SELECT fire_at FROM room_alarm WHERE room = ?", &sqlitex.ExecOptions{
		Args: []any{string(room)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			at = time.UnixMilli(stmt.ColumnInt64(0))
			found = true
			return nil
		},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlitestore: get alarm %s: %w", room, err)
	}
	if !found {
		return time.Time{}, storage.ErrNotFound
	}
	return at, nil
}

func (s *Store) SetAlarm(ctx context.Context, room domain.RoomID, at time.Time) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO room_alarm (room, fire_at) VALUES (?, ?)
		ON CONFLICT (room) DO UPDATE SET fire_at = excluded.fire_at`, &sqlitex.ExecOptions{
		Args: []any{string(room), at.UnixMilli()},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: set alarm %s: %w", room, err)
	}
	return nil
}

func (s *Store) Rooms(ctx context.Context) ([]storage.RoomAlarm, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []storage.RoomAlarm
	err = sqlitex.Execute(conn, "SELECT room, fire_at FROM room_alarm ORDER BY room", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, storage.RoomAlarm{
				Room:   domain.RoomID(stmt.ColumnText(0)),
				FireAt: time.UnixMilli(stmt.ColumnInt64(1)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list alarms: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlitestore: closing %s: %w", s.path, err)
	}
	log.Info().Str("module", "storage.sqlite").Str("path", s.path).Msg("sqlite store closed")
	return nil
}

// columnBlob copies a BLOB column out of the statement.
func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}
