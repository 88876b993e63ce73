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
	"sync"
)

// MemoryStore is an in-process Store. It is used in tests and by embedders
// that coordinate clients inside one process.
type MemoryStore struct {
	mu      sync.Mutex
	ids     []ClientID
	present bool
	errs    map[string]error
	writes  int

	lockMu sync.Mutex
	locks  int
}

// NewMemoryStore creates a MemoryStore seeded with ids. Seeding with no IDs
// yields an absent registry.
func NewMemoryStore(ids ...ClientID) *MemoryStore {
	return &MemoryStore{
		ids:     append([]ClientID(nil), ids...),
		present: len(ids) > 0,
		errs:    make(map[string]error),
	}
}

// FailOn makes the named operation (load, save, append, exists) return err
// until cleared with a nil err.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Snapshot returns the current contents and whether the registry exists.
func (m *MemoryStore) Snapshot() ([]ClientID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ClientID{}, m.ids...), m.present
}

// Writes returns the number of successful Save and Append calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Locks returns how many times WithLock was entered.
func (m *MemoryStore) Locks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks
}

// Location implements Store.
func (m *MemoryStore) Location() string { return "memory" }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) ([]ClientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["load"]; err != nil {
		return nil, err
	}
	return append([]ClientID{}, m.ids...), nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["exists"]; err != nil {
		return false, err
	}
	return m.present, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, ids []ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["save"]; err != nil {
		return err
	}
	m.ids = append([]ClientID(nil), ids...)
	m.present = len(ids) > 0
	m.writes++
	return nil
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["append"]; err != nil {
		return err
	}
	m.ids = append(m.ids, id)
	m.present = true
	m.writes++
	return nil
}

// WithLock implements Locker.
func (m *MemoryStore) WithLock(_ context.Context, fn func() error) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
	return fn()
}
