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

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tombee/ollamaprovider/internal/log"
	"golang.org/x/time/rate"
)

// watchedOps are the registry changes that warrant an early tick.
var watchedOps = []fsnotify.Op{fsnotify.Create, fsnotify.Write, fsnotify.Remove, fsnotify.Rename}

// Watcher calls onChange when the registry file changes on disk. The
// parent directory is watched because the file itself is replaced by
// rename and deleted when the registry empties.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	limiter  *rate.Limiter
	onChange func()
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

// NewWatcher creates a Watcher for the registry file at path. limiter caps
// how often onChange fires; nil means unlimited.
func NewWatcher(path string, limiter *rate.Limiter, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Discard()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	return &Watcher{
		path:     absPath,
		watcher:  fsw,
		limiter:  limiter,
		onChange: onChange,
		logger:   log.WithComponent(logger, "watcher").With(log.Registry(absPath)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins delivering change notifications until ctx is done or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) {
	w.started = true
	go w.eventLoop(ctx)
	w.logger.Debug("registry watcher started")
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.started {
			<-w.doneCh
		}
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("registry watcher error", log.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path || !relevant(event.Op) {
		return
	}
	if w.limiter != nil && !w.limiter.Allow() {
		recordWatch("rate_limited")
		return
	}
	recordWatch("triggered")
	w.logger.Debug("registry changed", slog.String("op", event.Op.String()))
	w.onChange()
}

func relevant(op fsnotify.Op) bool {
	for _, o := range watchedOps {
		if op.Has(o) {
			return true
		}
	}
	return false
}
