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

package probe

import (
	"context"
	"sort"
	"sync"
)

// Static is a scripted Prober for tests.
type Static struct {
	mu        sync.Mutex
	alive     map[int]bool
	processes map[string][]int
	calls     int
}

// NewStatic returns a Static prober reporting the given PIDs as alive.
func NewStatic(alive ...int) *Static {
	s := &Static{
		alive:     make(map[int]bool),
		processes: make(map[string][]int),
	}
	for _, pid := range alive {
		s.alive[pid] = true
	}
	return s
}

// SetAlive marks pid as alive or dead.
func (s *Static) SetAlive(pid int, alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alive {
		s.alive[pid] = true
	} else {
		delete(s.alive, pid)
	}
}

// SetProcesses sets the PIDs reported for an executable name.
func (s *Static) SetProcesses(name string, pids ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(pids) == 0 {
		delete(s.processes, baseName(name))
		return
	}
	s.processes[baseName(name)] = append([]int(nil), pids...)
}

// Calls returns how many PIDAlive queries were made.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PIDAlive implements Prober.
func (s *Static) PIDAlive(_ context.Context, pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.alive[pid]
}

// ProcessRunning implements Prober.
func (s *Static) ProcessRunning(ctx context.Context, name string) bool {
	return len(s.FindByName(ctx, name)) > 0
}

// FindByName implements Prober.
func (s *Static) FindByName(_ context.Context, name string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := append([]int(nil), s.processes[baseName(name)]...)
	sort.Ints(pids)
	return pids
}
