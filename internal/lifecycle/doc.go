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

/*
Package lifecycle decides when the shared daemon runs.

Every client process registers its PID in a registry shared by all clients
on the machine. The daemon is started by whichever client finds it missing
and is stopped once no live client remains, including clients that crashed
without deregistering.

# Registration

A client calls Activate when it becomes active and Deactivate when it shuts
down:

	m := lifecycle.NewManager(store, prober, ctrl, lifecycle.Options{Reassert: true})
	if err := m.Activate(ctx); err != nil {
	    // warning only: the daemon could not be spawned
	}
	defer m.Deactivate(context.Background())

Activate reconciles the registry, adds the caller if it is not already
listed, spawns the daemon when it is not running and starts a periodic
reconciliation. Deactivate removes the caller, terminates the daemon if it
was the last client and reconciles once more.

# Reconciliation

The Reconciler loads the registry, probes every PID and writes back only the
live ones. When none are left the daemon is killed by executable name and
the registry is removed. A registry that does not exist is left alone.

Reconciliation runs at the start of Activate, at the end of Deactivate and
on every periodic tick. The tick is what catches clients that died without
calling Deactivate.

# Concurrency

Within a process a Manager serialises its entry points and ticks. Across
processes every registry change is a full load-modify-save cycle, guarded
by an advisory lock when the store provides one. Lost updates are still
possible; with Options.Reassert a client whose entry vanished puts it back
on its next tick and respawns the daemon if it was stopped early.

# Journal

When a Journal is configured, lifecycle events are appended to a JSON-lines
file tagged with a per-process session id.
*/
package lifecycle
