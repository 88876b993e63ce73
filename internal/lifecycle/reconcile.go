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

	"github.com/tombee/ollamaprovider/internal/daemon"
	"github.com/tombee/ollamaprovider/internal/log"
	"github.com/tombee/ollamaprovider/internal/probe"
	"github.com/tombee/ollamaprovider/internal/registry"
	"go.opentelemetry.io/otel/attribute"
)

// Result describes one reconciliation.
type Result struct {
	// Checked is the registry as loaded.
	Checked []registry.ClientID
	// Live are the entries whose process is alive, de-duplicated.
	Live []registry.ClientID
	// Stale are the entries whose process is gone.
	Stale []registry.ClientID
	// Skipped is set when there was no registry to reconcile.
	Skipped bool
	// Removed is set when the registry was deleted.
	Removed bool
	// Terminated is set when daemon teardown was issued.
	Terminated bool
}

// Reconciler prunes dead clients and tears the daemon down once none remain.
type Reconciler struct {
	store   registry.Store
	prober  probe.Prober
	daemon  daemon.Controller
	journal *Journal
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler. journal and logger may be nil.
func NewReconciler(store registry.Store, prober probe.Prober, ctrl daemon.Controller, journal *Journal, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reconciler{
		store:   store,
		prober:  prober,
		daemon:  ctrl,
		journal: journal,
		logger:  log.WithComponent(logger, "reconciler"),
	}
}

// Reconcile loads the registry, drops entries whose process is no longer
// alive and writes the survivors back. When nobody survives the daemon is
// terminated and the registry removed. A registry that does not exist is
// left alone.
//
// The returned error is a registry I/O failure; the cycle did nothing and
// the next one retries.
func (r *Reconciler) Reconcile(ctx context.Context) (res Result, err error) {
	ctx, span := startSpan(ctx, "lifecycle.reconcile", 0)
	defer func() {
		span.SetAttributes(
			attribute.Int("registry.checked", len(res.Checked)),
			attribute.Int("registry.stale", len(res.Stale)),
			attribute.Bool("daemon.terminated", res.Terminated),
		)
		endSpan(span, err)
	}()

	err = registry.WithLock(ctx, r.store, func() error {
		ids, err := r.store.Load(ctx)
		if err != nil {
			return err
		}
		res.Checked = ids

		if len(ids) == 0 {
			exists, err := r.store.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				res.Skipped = true
				return nil
			}
		}

		res.Live, res.Stale = r.partition(ctx, ids)
		if len(res.Live) == len(ids) && len(res.Live) > 0 {
			return nil
		}
		if err := r.store.Save(ctx, res.Live); err != nil {
			return err
		}
		res.Removed = len(res.Live) == 0
		return nil
	})
	if err != nil {
		r.logger.Warn("reconciliation skipped, registry unavailable",
			log.Registry(r.store.Location()), log.Error(err))
		recordReconcile(outcomeError)
		return res, err
	}

	if res.Skipped {
		log.Trace(ctx, r.logger, "no registry, nothing to reconcile", log.Registry(r.store.Location()))
		recordReconcile(outcomeNoop)
		return res, nil
	}

	registeredClients.Set(float64(len(res.Live)))
	if len(res.Stale) > 0 {
		r.logger.Info("pruned stale clients",
			slog.Any("stale", res.Stale), slog.Int("live", len(res.Live)))
		staleClientsPruned.Add(float64(len(res.Stale)))
		r.journal.LogStalePruned(res.Stale)
	}

	outcome := outcomeClean
	if len(res.Stale) > 0 {
		outcome = outcomePruned
	}
	if len(res.Live) == 0 {
		r.Teardown(ctx, "no live clients")
		res.Terminated = true
		outcome = outcomeTeardown
	}
	recordReconcile(outcome)
	r.journal.LogReconcile(res)
	return res, nil
}

// partition splits ids by liveness. Each PID is probed once and duplicates
// collapse onto their first position.
func (r *Reconciler) partition(ctx context.Context, ids []registry.ClientID) (live, stale []registry.ClientID) {
	live = []registry.ClientID{}
	seen := make(map[registry.ClientID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if r.prober.PIDAlive(ctx, int(id)) {
			live = append(live, id)
		} else {
			stale = append(stale, id)
		}
	}
	return live, stale
}

// Teardown terminates the daemon and makes sure the registry is gone. A
// client that registered in the meantime keeps its entry. Failures are
// logged and absorbed.
func (r *Reconciler) Teardown(ctx context.Context, reason string) {
	termErr := r.daemon.Terminate(ctx)
	daemonTerminations.Inc()
	registeredClients.Set(0)
	if termErr != nil {
		r.logger.Warn("daemon termination incomplete", slog.String("reason", reason), log.Error(termErr))
	} else {
		r.logger.Info("daemon stopped", slog.String("reason", reason))
	}
	r.journal.LogTerminate(reason, termErr)

	err := registry.WithLock(ctx, r.store, func() error {
		ids, err := r.store.Load(ctx)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			r.logger.Debug("registry repopulated during teardown, keeping it", slog.Any("clients", ids))
			return nil
		}
		return r.store.Save(ctx, nil)
	})
	if err != nil {
		r.logger.Warn("failed to remove registry", log.Registry(r.store.Location()), log.Error(err))
	}
}
