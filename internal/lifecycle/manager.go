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
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tombee/ollamaprovider/internal/daemon"
	"github.com/tombee/ollamaprovider/internal/log"
	"github.com/tombee/ollamaprovider/internal/probe"
	"github.com/tombee/ollamaprovider/internal/registry"
	perrors "github.com/tombee/ollamaprovider/pkg/errors"
	"golang.org/x/time/rate"
)

// Defaults for Options.
const (
	DefaultInterval         = 30 * time.Second
	DefaultOperationTimeout = 15 * time.Second
)

// Options configures a Manager. The zero value is usable.
type Options struct {
	// Self is the client ID used by Activate and Deactivate.
	// Default: os.Getpid()
	Self registry.ClientID

	// Interval between periodic reconciliations.
	// Default: 30s
	Interval time.Duration

	// OperationTimeout bounds each entry point.
	// Default: 15s
	OperationTimeout time.Duration

	// Reassert restores this process's registration on a periodic tick when
	// it has been lost, and respawns the daemon when it has gone away.
	Reassert bool

	// WatchPath, when set, is a registry file whose changes trigger an
	// early tick.
	WatchPath string

	// Journal records lifecycle events. Nil disables it.
	Journal *Journal

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Manager is the lifecycle controller for the clients living in this
// process. Its operations and the periodic tick are serialised.
type Manager struct {
	store      registry.Store
	daemon     daemon.Controller
	reconciler *Reconciler
	journal    *Journal
	logger     *slog.Logger

	self      registry.ClientID
	interval  time.Duration
	opTimeout time.Duration
	reassert  bool
	watchPath string

	mu      sync.Mutex
	active  map[registry.ClientID]bool
	cancel  context.CancelFunc
	done    chan struct{}
	watcher *Watcher
	kick    chan struct{}
}

// NewManager creates a Manager.
func NewManager(store registry.Store, prober probe.Prober, ctrl daemon.Controller, opts Options) *Manager {
	if opts.Self <= 0 {
		opts.Self = registry.ClientID(os.Getpid())
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Manager{
		store:      store,
		daemon:     ctrl,
		reconciler: NewReconciler(store, prober, ctrl, opts.Journal, opts.Logger),
		journal:    opts.Journal,
		logger:     log.WithComponent(opts.Logger, "lifecycle"),
		self:       opts.Self,
		interval:   opts.Interval,
		opTimeout:  opts.OperationTimeout,
		reassert:   opts.Reassert,
		watchPath:  opts.WatchPath,
		active:     make(map[registry.ClientID]bool),
		kick:       make(chan struct{}, 1),
	}
}

// Self returns the client ID used by Activate and Deactivate.
func (m *Manager) Self() registry.ClientID { return m.self }

// Reconciler returns the reconciler the manager drives.
func (m *Manager) Reconciler() *Reconciler { return m.reconciler }

// Activate registers this process as a client and makes sure the daemon is
// running. A returned error is a warning: registration has happened.
func (m *Manager) Activate(ctx context.Context) error {
	err := m.OnClientStart(ctx, m.self)
	m.journal.LogActivate(m.self)
	return err
}

// Deactivate stops the periodic task and deregisters this process. A
// returned error is a warning.
func (m *Manager) Deactivate(ctx context.Context) error {
	m.stopTimer()
	err := m.OnClientStop(ctx, m.self)
	m.journal.LogDeactivate(m.self, err)
	return err
}

// OnClientStart reconciles, registers self when it is not already present,
// spawns the daemon when it is not running and starts the periodic task.
//
// A failed spawn is returned as a *errors.SpawnError; the registration is
// kept. Registry I/O failures are logged and left for the next tick.
func (m *Manager) OnClientStart(ctx context.Context, self registry.ClientID) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	ctx, span := startSpan(ctx, "lifecycle.client_start", self)
	defer func() { endSpan(span, err) }()

	logger := log.WithClient(m.logger, int(self))

	_, _ = m.reconciler.Reconcile(ctx)

	if _, regErr := m.register(ctx, self); regErr != nil {
		logger.Warn("registration failed, will retry on next tick", log.Error(regErr))
	}

	err = m.ensureDaemon(ctx, self)

	m.active[self] = true
	m.startTimerLocked()
	return err
}

// OnClientStop removes self from the registry. When nobody is left the
// daemon is terminated straight away. A reconciliation follows either way.
//
// Deregistration I/O failures are returned as a *errors.TransientIOError
// warning.
func (m *Manager) OnClientStop(ctx context.Context, self registry.ClientID) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	ctx, span := startSpan(ctx, "lifecycle.client_stop", self)
	defer func() { endSpan(span, err) }()

	logger := log.WithClient(m.logger, int(self))

	delete(m.active, self)
	if len(m.active) == 0 {
		m.stopTimerLocked()
	}

	var remaining []registry.ClientID
	deregErr := registry.WithLock(ctx, m.store, func() error {
		ids, err := m.store.Load(ctx)
		if err != nil {
			return err
		}
		remaining = registry.Without(ids, self)
		return m.store.Save(ctx, remaining)
	})
	m.journal.LogDeregister(self, remaining, deregErr)

	if deregErr != nil {
		logger.Warn("deregistration failed", log.Error(deregErr))
		err = deregErr
	} else {
		logger.Info("deregistered", slog.Int("remaining", len(remaining)))
		if len(remaining) == 0 {
			m.reconciler.Teardown(ctx, "last client stopped")
		}
	}

	_, _ = m.reconciler.Reconcile(ctx)
	return err
}

// Tick runs one periodic pass: reconcile, then (with Reassert) restore any
// registration of an active client that went missing and respawn the daemon
// if it is gone.
func (m *Manager) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickLocked(ctx)
}

func (m *Manager) tickLocked(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	ctx, span := startSpan(ctx, "lifecycle.tick", 0)
	defer span.End()

	_, _ = m.reconciler.Reconcile(ctx)

	if !m.reassert || len(m.active) == 0 {
		return
	}
	var spawnFor registry.ClientID
	for id := range m.active {
		added, err := m.register(ctx, id)
		if err != nil {
			log.WithClient(m.logger, int(id)).Warn("re-registration failed", log.Error(err))
			continue
		}
		if added {
			log.WithClient(m.logger, int(id)).Warn("registration was lost, restored it")
			m.journal.LogReassert(id, nil)
		}
		spawnFor = id
	}
	if spawnFor > 0 {
		if err := m.ensureDaemon(ctx, spawnFor); err != nil {
			m.logger.Warn("daemon respawn failed", log.Error(err))
		}
	}
}

// register appends id unless the registry already holds it. added reports
// whether a write happened.
func (m *Manager) register(ctx context.Context, id registry.ClientID) (added bool, err error) {
	err = registry.WithLock(ctx, m.store, func() error {
		ids, err := m.store.Load(ctx)
		if err != nil {
			return err
		}
		if registry.Contains(ids, id) {
			return nil
		}
		if err := m.store.Append(ctx, id); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err == nil {
		m.journal.LogRegister(id, !added, nil)
		if added {
			log.WithClient(m.logger, int(id)).Info("registered", log.Registry(m.store.Location()))
		}
	} else {
		m.journal.LogRegister(id, false, err)
	}
	return added, err
}

// ensureDaemon spawns the daemon when it is not running.
func (m *Manager) ensureDaemon(ctx context.Context, id registry.ClientID) error {
	if m.daemon.Running(ctx) {
		log.Trace(ctx, m.logger, "daemon already running")
		return nil
	}

	err := m.daemon.Spawn(ctx)
	recordSpawn(err)
	if err != nil {
		var spawnErr *perrors.SpawnError
		if !perrors.As(err, &spawnErr) {
			err = &perrors.SpawnError{Cause: err}
		}
		log.WithClient(m.logger, int(id)).Warn("daemon failed to start", log.Error(err))
		m.journal.LogSpawnFailure(id, err)
		return err
	}
	m.journal.LogSpawn(id)
	return nil
}

// Trigger requests an early tick. It never blocks; triggers that arrive
// while one is pending are merged.
func (m *Manager) Trigger() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Running reports whether the periodic task is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// startTimerLocked starts the periodic task unless it already runs.
func (m *Manager) startTimerLocked() {
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	if m.watchPath != "" {
		w, err := NewWatcher(m.watchPath, rate.NewLimiter(rate.Every(time.Second), 1), m.Trigger, m.logger)
		if err != nil {
			m.logger.Warn("registry watch unavailable, relying on the periodic timer", log.Error(err))
		} else {
			w.Start(ctx)
			m.watcher = w
		}
	}

	go m.loop(ctx, done)
	m.logger.Debug("periodic reconciliation started", slog.Duration("interval", m.interval))
}

// stopTimerLocked cancels the periodic task and returns its done channel
// without waiting on it, since the loop may itself be waiting for m.mu.
func (m *Manager) stopTimerLocked() chan struct{} {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Debug("registry watcher close failed", log.Error(err))
		}
	}
	done := m.done
	m.cancel, m.done, m.watcher = nil, nil, nil
	m.logger.Debug("periodic reconciliation stopped")
	return done
}

// stopTimer cancels the periodic task and waits for it to exit.
func (m *Manager) stopTimer() {
	m.mu.Lock()
	done := m.stopTimerLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Close stops the periodic task. It does not deregister anyone.
func (m *Manager) Close() error {
	m.stopTimer()
	return nil
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		case <-m.kick:
			m.Tick(ctx)
		}
	}
}
