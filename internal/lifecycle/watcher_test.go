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
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tombee/ollamaprovider/internal/daemon"
	"github.com/tombee/ollamaprovider/internal/probe"
	"github.com/tombee/ollamaprovider/internal/registry"
	"golang.org/x/time/rate"
)

func TestWatcher_RegistryChangeTriggers(t *testing.T) {
	path := lockFile(t, "")
	var calls atomic.Int32

	w, err := NewWatcher(path, nil, func() { calls.Add(1) }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() > 0 })
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	path := lockFile(t, "")
	var calls atomic.Int32

	w, err := NewWatcher(path, nil, func() { calls.Add(1) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Start(context.Background())
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("onChange called %d times for an unrelated file", calls.Load())
	}
}

func TestWatcher_RateLimited(t *testing.T) {
	path := lockFile(t, "")
	var calls atomic.Int32
	limited := watchTriggers.WithLabelValues("rate_limited")
	before := testutil.ToFloat64(limited)

	w, err := NewWatcher(path, rate.NewLimiter(rate.Every(time.Hour), 1), func() { calls.Add(1) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Start(context.Background())
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, func() bool { return testutil.ToFloat64(limited) > before })
	if calls.Load() != 1 {
		t.Errorf("onChange called %d times, want 1", calls.Load())
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := NewWatcher(lockFile(t, ""), nil, func() {}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Stopping a watcher that never started must not block.
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "x.lock"), nil, func() {}, nil); err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestManager_WatchTriggersTick(t *testing.T) {
	path := lockFile(t, "")
	store := registry.NewFileStore(path)
	m := NewManager(store, probe.NewStatic(1), daemon.NewFake(true), Options{Interval: time.Hour, WatchPath: path})
	defer m.Close()

	ctx := context.Background()
	if err := m.OnClientStart(ctx, 1); err != nil {
		t.Fatal(err)
	}
	// A crashed sibling registers; the watch should prune it long before
	// the hourly timer.
	if err := store.Append(ctx, 2); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		content, _ := readLockFile(t, path)
		return content == "1\n"
	})
}
