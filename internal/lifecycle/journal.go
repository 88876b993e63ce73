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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tombee/ollamaprovider/internal/log"
	"github.com/tombee/ollamaprovider/internal/registry"
)

// Journal event types.
const (
	EventActivate     = "activate"
	EventDeactivate   = "deactivate"
	EventRegister     = "register"
	EventDeregister   = "deregister"
	EventReassert     = "reassert"
	EventReconcile    = "reconcile"
	EventStalePruned  = "stale_pruned"
	EventSpawn        = "spawn"
	EventSpawnFailure = "spawn_failure"
	EventTerminate    = "terminate"
)

// JournalEvent is one line of the lifecycle journal.
type JournalEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Session   string    `json:"session"`
	PID       int       `json:"pid"`
	ClientID  int       `json:"client_id,omitempty"`
	Clients   []int     `json:"clients,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Journal appends lifecycle events to a JSON-lines file. Every process
// writes under its own session id so interleaved writers can be told apart.
// A nil *Journal records nothing.
type Journal struct {
	path    string
	session string
	pid     int
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewJournal creates a journal writing to path.
func NewJournal(path string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = log.Discard()
	}
	return &Journal{
		path:    path,
		session: uuid.NewString(),
		pid:     os.Getpid(),
		logger:  log.WithComponent(logger, "journal"),
	}
}

// Session returns the session id stamped on this process's events.
func (j *Journal) Session() string {
	if j == nil {
		return ""
	}
	return j.session
}

// Path returns the journal file.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// LogActivate records that this process became a client.
func (j *Journal) LogActivate(id registry.ClientID) {
	j.record(JournalEvent{Event: EventActivate, ClientID: int(id), Success: true})
}

// LogDeactivate records that this process stopped being a client.
func (j *Journal) LogDeactivate(id registry.ClientID, err error) {
	j.record(withError(JournalEvent{Event: EventDeactivate, ClientID: int(id)}, err))
}

// LogRegister records a registration attempt.
func (j *Journal) LogRegister(id registry.ClientID, already bool, err error) {
	ev := JournalEvent{Event: EventRegister, ClientID: int(id)}
	if already {
		ev.Message = "already registered"
	}
	j.record(withError(ev, err))
}

// LogDeregister records a deregistration and the clients left behind.
func (j *Journal) LogDeregister(id registry.ClientID, remaining []registry.ClientID, err error) {
	j.record(withError(JournalEvent{Event: EventDeregister, ClientID: int(id), Clients: ints(remaining)}, err))
}

// LogReassert records a lost registration being restored.
func (j *Journal) LogReassert(id registry.ClientID, err error) {
	j.record(withError(JournalEvent{Event: EventReassert, ClientID: int(id), Message: "registration was missing"}, err))
}

// LogReconcile records the outcome of one reconciliation.
func (j *Journal) LogReconcile(res Result) {
	j.record(JournalEvent{
		Event:   EventReconcile,
		Clients: ints(res.Live),
		Success: true,
		Message: fmt.Sprintf("checked %d, stale %d", len(res.Checked), len(res.Stale)),
	})
}

// LogStalePruned records clients removed because their process is gone.
func (j *Journal) LogStalePruned(stale []registry.ClientID) {
	j.record(JournalEvent{Event: EventStalePruned, Clients: ints(stale), Success: true})
}

// LogSpawn records a daemon launch.
func (j *Journal) LogSpawn(id registry.ClientID) {
	j.record(JournalEvent{Event: EventSpawn, ClientID: int(id), Success: true})
}

// LogSpawnFailure records a daemon launch that failed.
func (j *Journal) LogSpawnFailure(id registry.ClientID, err error) {
	j.record(withError(JournalEvent{Event: EventSpawnFailure, ClientID: int(id)}, err))
}

// LogTerminate records a daemon teardown.
func (j *Journal) LogTerminate(reason string, err error) {
	j.record(withError(JournalEvent{Event: EventTerminate, Message: reason}, err))
}

// record writes ev; failures are logged and dropped.
func (j *Journal) record(ev JournalEvent) {
	if j == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	ev.Session = j.session
	ev.PID = j.pid
	if err := j.writeEvent(ev); err != nil {
		j.logger.Debug("journal write failed", slog.String("path", j.path), log.Error(err))
	}
}

// writeEvent appends a lifecycle event to the journal file.
func (j *Journal) writeEvent(ev JournalEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func withError(ev JournalEvent, err error) JournalEvent {
	ev.Success = err == nil
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func ints(ids []registry.ClientID) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
