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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconcile outcomes.
const (
	outcomeNoop     = "noop"
	outcomeClean    = "clean"
	outcomePruned   = "pruned"
	outcomeTeardown = "teardown"
	outcomeError    = "error"
)

var (
	// reconcileTotal counts reconciliations by outcome
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ollamaprovider_reconcile_total",
			Help: "Total registry reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	// staleClientsPruned counts registry entries dropped because their process was gone
	staleClientsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ollamaprovider_stale_clients_pruned_total",
			Help: "Total stale client entries removed from the registry",
		},
	)

	// daemonSpawns counts daemon launches by result
	daemonSpawns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ollamaprovider_daemon_spawns_total",
			Help: "Total daemon spawn attempts by result",
		},
		[]string{"result"},
	)

	// daemonTerminations counts teardowns issued
	daemonTerminations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ollamaprovider_daemon_terminations_total",
			Help: "Total daemon terminations issued",
		},
	)

	// registeredClients is the live client count seen by the last registry pass
	registeredClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ollamaprovider_registered_clients",
			Help: "Live clients in the registry as of the last reconciliation",
		},
	)

	// watchTriggers counts registry change notifications by disposition
	watchTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ollamaprovider_registry_watch_events_total",
			Help: "Registry change notifications by disposition (triggered, rate_limited)",
		},
		[]string{"disposition"},
	)
)

func recordReconcile(outcome string) {
	reconcileTotal.WithLabelValues(outcome).Inc()
}

func recordSpawn(err error) {
	if err != nil {
		daemonSpawns.WithLabelValues("failed").Inc()
		return
	}
	daemonSpawns.WithLabelValues("ok").Inc()
}

func recordWatch(disposition string) {
	watchTriggers.WithLabelValues(disposition).Inc()
}
