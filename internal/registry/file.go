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
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/tombee/ollamaprovider/internal/log"
	perrors "github.com/tombee/ollamaprovider/pkg/errors"
)

const (
	fileMode       = 0644
	lockRetryDelay = 25 * time.Millisecond
)

// FileStore keeps the registry in a plain text file.
type FileStore struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	logger      *slog.Logger
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLocking guards read-modify-write cycles with an advisory lock on a
// "<path>.guard" sidecar file. A cycle that cannot take the lock within
// timeout runs unlocked. The sidecar is removed along with the registry.
func WithLocking(timeout time.Duration) FileOption {
	return func(s *FileStore) {
		s.lockTimeout = timeout
		s.lock = flock.New(s.path + ".guard")
	}
}

// WithLogger sets the logger used for lock diagnostics.
func WithLogger(logger *slog.Logger) FileOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = log.WithComponent(logger, "registry")
		}
	}
}

// NewFileStore creates a FileStore for path.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:   path,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location implements Store.
func (s *FileStore) Location() string { return s.path }

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// Load implements Store.
func (s *FileStore) Load(_ context.Context) ([]ClientID, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []ClientID{}, nil
		}
		return nil, s.ioErr("load", err)
	}
	ids := Parse(data)
	if ids == nil {
		ids = []ClientID{}
	}
	return ids, nil
}

// Exists implements Store.
func (s *FileStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, s.ioErr("stat", err)
	}
}

// Save implements Store. The new contents are written to a sibling
// temporary file that is then renamed over the registry, so readers see
// either the old or the new list.
func (s *FileStore) Save(_ context.Context, ids []ClientID) error {
	if len(ids) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return s.ioErr("remove", err)
		}
		return nil
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return s.ioErr("save", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(Format(ids)); err != nil {
		cleanup()
		return s.ioErr("save", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return s.ioErr("save", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return s.ioErr("save", err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		os.Remove(tmpName)
		return s.ioErr("save", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return s.ioErr("save", err)
	}
	return nil
}

// Append implements Store. If the existing file does not end in a newline
// one is inserted first so the new entry stays on its own line.
func (s *FileStore) Append(_ context.Context, id ClientID) error {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, fileMode)
	if err != nil {
		return s.ioErr("append", err)
	}
	defer f.Close()

	line := id.String() + "\n"
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil || errors.Is(err, io.EOF) {
			if last[0] != '\n' {
				line = "\n" + line
			}
		}
	}

	if _, err := f.WriteString(line); err != nil {
		return s.ioErr("append", err)
	}
	return nil
}

// WithLock implements Locker. Without locking configured fn runs directly.
//
// The guard file only exists while the registry does: a cycle that leaves
// no registry behind removes it before releasing the lock.
func (s *FileStore) WithLock(ctx context.Context, fn func() error) error {
	if s.lock == nil {
		return fn()
	}

	locked, err := s.acquire(ctx)
	if err != nil || !locked {
		s.logger.Warn("registry lock unavailable, continuing unlocked",
			log.Registry(s.path), slog.Duration("timeout", s.lockTimeout), log.Error(err))
		return fn()
	}

	err = fn()
	s.pruneGuard()
	if unlockErr := s.lock.Unlock(); unlockErr != nil {
		s.logger.Debug("registry unlock failed", log.Registry(s.path), log.Error(unlockErr))
	}
	return err
}

// acquire takes the guard lock within lockTimeout. A lock taken on a guard
// that was unlinked in the meantime protects nothing, so it is dropped and
// the current file is locked instead.
func (s *FileStore) acquire(ctx context.Context) (bool, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	for lockCtx.Err() == nil {
		locked, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
		if err != nil || !locked {
			return false, err
		}
		if s.guardCurrent() {
			return true, nil
		}
		if err := s.lock.Unlock(); err != nil {
			return false, err
		}
	}
	return false, lockCtx.Err()
}

func (s *FileStore) guardCurrent() bool {
	held, err := s.lock.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(s.lock.Path())
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

// pruneGuard removes the guard when the registry is gone. It must be called
// with the lock held.
func (s *FileStore) pruneGuard() {
	if _, err := os.Stat(s.path); !errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := os.Remove(s.lock.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Windows refuses to unlink a file it holds open.
		s.logger.Debug("registry guard not removed", log.Registry(s.path), log.Error(err))
	}
}

func (s *FileStore) ioErr(op string, err error) error {
	return &perrors.TransientIOError{Op: op, Location: s.path, Cause: err}
}
