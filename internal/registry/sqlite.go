// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	perrors "github.com/tombee/ollamaprovider/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the registry in a SQLite database. An empty registry is
// a table with no rows.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the registry database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.configurePragmas(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS clients (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		pid INTEGER NOT NULL UNIQUE,
		registered_at TEXT NOT NULL
	)`)
	return err
}

// Location implements Store.
func (s *SQLiteStore) Location() string { return s.path }

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load implements Store. IDs come back in registration order.
func (s *SQLiteStore) Load(ctx context.Context) ([]ClientID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pid FROM clients ORDER BY seq`)
	if err != nil {
		return nil, s.ioErr("load", err)
	}
	defer rows.Close()

	ids := []ClientID{}
	for rows.Next() {
		var pid int
		if err := rows.Scan(&pid); err != nil {
			return nil, s.ioErr("load", err)
		}
		if pid > 0 {
			ids = append(ids, ClientID(pid))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.ioErr("load", err)
	}
	return ids, nil
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&n); err != nil {
		return false, s.ioErr("stat", err)
	}
	return n > 0, nil
}

// Save implements Store. The replacement runs in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, ids []ClientID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.ioErr("save", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clients`); err != nil {
		return s.ioErr("save", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO clients (pid, registered_at) VALUES (?, ?)`, int(id), now); err != nil {
			return s.ioErr("save", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.ioErr("save", err)
	}
	return nil
}

// Append implements Store. A PID that is already present keeps its place.
func (s *SQLiteStore) Append(ctx context.Context, id ClientID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO clients (pid, registered_at) VALUES (?, ?)`,
		int(id), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return s.ioErr("append", err)
	}
	return nil
}

func (s *SQLiteStore) ioErr(op string, err error) error {
	return &perrors.TransientIOError{Op: op, Location: s.path, Cause: err}
}
