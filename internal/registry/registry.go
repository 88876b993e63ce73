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

// Package registry stores the set of client processes that currently use
// the shared daemon.
//
// # Wire format
//
// The file backend keeps one decimal PID per line, each terminated by a
// newline:
//
//	4242
//	5150
//
// Blank and malformed lines are dropped when reading. Writers always emit
// the canonical form. An empty registry is represented by the absence of the
// file; the same holds for the other backends ("no rows").
package registry

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tombee/ollamaprovider/internal/config"
	perrors "github.com/tombee/ollamaprovider/pkg/errors"
)

// ClientID identifies a registered client by its operating-system PID.
type ClientID int

// String returns the decimal form of the ID.
func (id ClientID) String() string {
	return strconv.Itoa(int(id))
}

// Store persists the registry. Implementations must tolerate concurrent use
// by other processes on the same machine; no ordering is guaranteed beyond
// what the backing medium provides.
type Store interface {
	// Load returns the registered client IDs in stored order. A missing
	// registry yields an empty slice and no error.
	Load(ctx context.Context) ([]ClientID, error)

	// Save replaces the registry contents. Saving an empty slice removes
	// the registry entirely.
	Save(ctx context.Context, ids []ClientID) error

	// Append adds one ID to the end of the registry, creating it if needed.
	Append(ctx context.Context, id ClientID) error

	// Exists reports whether the registry currently exists.
	Exists(ctx context.Context) (bool, error)

	// Location describes where the registry lives.
	Location() string

	// Close releases resources held by the store.
	Close() error
}

// Locker is implemented by stores that can serialise a read-modify-write
// cycle across processes.
type Locker interface {
	WithLock(ctx context.Context, fn func() error) error
}

// WithLock runs fn under the store's lock when it implements Locker, and
// directly otherwise.
func WithLock(ctx context.Context, s Store, fn func() error) error {
	if l, ok := s.(Locker); ok {
		return l.WithLock(ctx, fn)
	}
	return fn()
}

// Parse decodes the wire format. Lines that are blank, non-numeric or not
// positive are skipped, whatever their length.
func Parse(data []byte) []ClientID {
	var ids []ClientID
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil || n <= 0 {
			continue
		}
		ids = append(ids, ClientID(n))
	}
	return ids
}

// Format encodes ids in the wire format.
func Format(ids []ClientID) []byte {
	var buf bytes.Buffer
	for _, id := range ids {
		buf.WriteString(id.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Contains reports whether ids holds id.
func Contains(ids []ClientID, id ClientID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Without returns ids with every occurrence of id removed, preserving order.
func Without(ids []ClientID, id ClientID) []ClientID {
	out := make([]ClientID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.RegistryConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		opts := []FileOption{WithLogger(logger)}
		if cfg.Lock {
			opts = append(opts, WithLocking(cfg.LockTimeout))
		}
		return NewFileStore(cfg.Path, opts...), nil
	case config.BackendSQLite:
		store, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, &perrors.ConfigError{Key: "registry.backend", Reason: "unknown backend " + strconv.Quote(cfg.Backend)}
	}
}
