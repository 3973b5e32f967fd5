// Package state persists the processed-message set and the poll watermark.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const watermarkKey = "poll_watermark_unix_nano"

// Store is the durable processing state: an append-only set of handled
// message ids plus the mailbox poll watermark. A mark that returns success
// survives a subsequent crash.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at the given path and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL keeps marks durable without blocking the read path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS processed_messages (
	message_id        TEXT PRIMARY KEY,
	processed_at_nano INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Contains reports whether the message id has already been handled.
func (s *Store) Contains(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM processed_messages WHERE message_id = ?", messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mark records the message id as handled. Marking an already-marked id is a
// no-op; the first processed timestamp wins.
func (s *Store) Mark(ctx context.Context, messageID string, processedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_messages (message_id, processed_at_nano) VALUES (?, ?) ON CONFLICT(message_id) DO NOTHING",
		messageID, processedAt.UnixNano())
	return err
}

// Watermark returns the stored poll cursor, or the zero time when none has
// been set yet.
func (s *Store) Watermark(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = ?", watermarkKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt watermark %q: %w", raw, err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

// SetWatermark advances the poll cursor. The watermark never regresses: a
// target at or before the stored value is a no-op.
func (s *Store) SetWatermark(ctx context.Context, t time.Time) error {
	current, err := s.Watermark(ctx)
	if err != nil {
		return err
	}
	if !t.After(current) {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		watermarkKey, strconv.FormatInt(t.UnixNano(), 10))
	return err
}
