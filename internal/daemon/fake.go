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

package daemon

import (
	"context"
	"sync"
)

// Fake is an in-memory Controller for tests.
type Fake struct {
	mu           sync.Mutex
	running      bool
	spawns       int
	terminations int
	spawnErr     error
	terminateErr error
}

// NewFake returns a Fake reporting the given running state.
func NewFake(running bool) *Fake {
	return &Fake{running: running}
}

// FailSpawn makes Spawn return err (nil clears it).
func (f *Fake) FailSpawn(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawnErr = err
}

// FailTerminate makes Terminate return err without stopping the daemon.
func (f *Fake) FailTerminate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminateErr = err
}

// SetRunning changes the reported state, as if the daemon was started or
// stopped outside the controller.
func (f *Fake) SetRunning(running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
}

// Spawns returns the number of Spawn calls.
func (f *Fake) Spawns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawns
}

// Terminations returns the number of Terminate calls.
func (f *Fake) Terminations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminations
}

// Spawn implements Controller.
func (f *Fake) Spawn(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns++
	if f.spawnErr != nil {
		return f.spawnErr
	}
	f.running = true
	return nil
}

// Terminate implements Controller.
func (f *Fake) Terminate(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminations++
	if f.terminateErr != nil {
		return f.terminateErr
	}
	f.running = false
	return nil
}

// Running implements Controller.
func (f *Fake) Running(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
