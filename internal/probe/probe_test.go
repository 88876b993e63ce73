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
	"os"
	"testing"
	"time"
)

func TestOSProber_PIDAlive(t *testing.T) {
	p := New(time.Second, nil)
	ctx := context.Background()

	if !p.PIDAlive(ctx, os.Getpid()) {
		t.Error("PIDAlive(self) = false, want true")
	}
	for _, pid := range []int{0, -1} {
		if p.PIDAlive(ctx, pid) {
			t.Errorf("PIDAlive(%d) = true, want false", pid)
		}
	}
	if p.PIDAlive(ctx, 1<<30) {
		t.Error("PIDAlive(unused pid) = true, want false")
	}
}

func TestOSProber_FindByName_Empty(t *testing.T) {
	p := New(0, nil)
	if got := p.FindByName(context.Background(), ""); got != nil {
		t.Errorf("FindByName(\"\") = %v, want nil", got)
	}
	if p.ProcessRunning(context.Background(), "definitely-not-a-real-process-name") {
		t.Error("ProcessRunning(nonexistent) = true, want false")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(10, 20)
	ctx := context.Background()

	if !s.PIDAlive(ctx, 10) || !s.PIDAlive(ctx, 20) {
		t.Fatal("seeded PIDs should be alive")
	}
	s.SetAlive(10, false)
	if s.PIDAlive(ctx, 10) {
		t.Error("PIDAlive(10) after SetAlive(false) = true")
	}
	if got := s.Calls(); got != 3 {
		t.Errorf("Calls() = %d, want 3", got)
	}

	s.SetProcesses("ollama.exe", 7, 3)
	if !s.ProcessRunning(ctx, "ollama") {
		t.Error("ProcessRunning(ollama) = false, want true")
	}
	if got := s.FindByName(ctx, "ollama"); len(got) != 2 || got[0] != 3 {
		t.Errorf("FindByName(ollama) = %v, want [3 7]", got)
	}
	s.SetProcesses("ollama")
	if s.ProcessRunning(ctx, "ollama") {
		t.Error("ProcessRunning after clearing = true, want false")
	}
}
