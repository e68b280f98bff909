// Package sqlitestream provides a durable.DurableStream backed by
// SQLite, grounded on whisper-darkly-sticky-dvr's store/sqlite/sqlite.go:
// the same modernc.org/sqlite (pure Go, no cgo) driver, the same
// single-connection-plus-WAL pragma setup, and the same
// create-table-if-not-exists migration with no external migration
// tool. Where that store kept subscriptions and worker_events tables,
// this one keeps a single append-only events table ordered by offset.
package sqlitestream

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/durable-go/durable"
	_ "modernc.org/sqlite"
)

// Stream implements durable.DurableStream on top of a SQLite database.
type Stream struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the events
// table migration.
func Open(path string) (*Stream, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestream: open %s: %w", path, err)
	}

	// SQLite serialises writes; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestream: %s: %w", pragma, err)
		}
	}

	s := &Stream{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestream: migrate: %w", err)
	}
	return s, nil
}

func (s *Stream) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			offset  INTEGER PRIMARY KEY,
			payload TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stream_state (
			id     INTEGER PRIMARY KEY CHECK (id = 1),
			closed INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO stream_state (id, closed) VALUES (1, 0)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append adds event at the next offset, inside a transaction so the
// closed check and the insert are atomic.
func (s *Stream) Append(event durable.DurableEvent) (int, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("sqlitestream: marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var closed bool
	if err := tx.QueryRow(`SELECT closed FROM stream_state WHERE id = 1`).Scan(&closed); err != nil {
		return 0, err
	}
	if closed {
		return 0, durable.ErrStreamClosed
	}

	var nextOffset int
	row := tx.QueryRow(`SELECT COALESCE(MAX(offset) + 1, 0) FROM events`)
	if err := row.Scan(&nextOffset); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`INSERT INTO events (offset, payload) VALUES (?, ?)`, nextOffset, string(payload)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return nextOffset, nil
}

// Read returns every entry at or after fromOffset.
func (s *Stream) Read(fromOffset int) ([]durable.StreamEntry, error) {
	if fromOffset < 0 {
		return nil, durable.ErrBadOffset
	}
	rows, err := s.db.Query(`SELECT offset, payload FROM events WHERE offset >= ? ORDER BY offset`, fromOffset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []durable.StreamEntry
	for rows.Next() {
		var offset int
		var payload string
		if err := rows.Scan(&offset, &payload); err != nil {
			return nil, err
		}
		var event durable.DurableEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("sqlitestream: decode offset %d: %w", offset, err)
		}
		entries = append(entries, durable.StreamEntry{Offset: offset, Event: event})
	}
	return entries, rows.Err()
}

// Length returns the number of entries currently stored.
func (s *Stream) Length() int {
	var n int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	return n
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	var closed bool
	_ = s.db.QueryRow(`SELECT closed FROM stream_state WHERE id = 1`).Scan(&closed)
	return closed
}

// Close marks the stream closed and releases the underlying database
// handle. Append on this same Stream afterwards fails with the
// database/sql error for a closed handle, not durable.ErrStreamClosed;
// a Stream reopened on the same file fails Append with
// durable.ErrStreamClosed.
func (s *Stream) Close() error {
	if _, err := s.db.Exec(`UPDATE stream_state SET closed = 1 WHERE id = 1`); err != nil {
		return err
	}
	return s.db.Close()
}
