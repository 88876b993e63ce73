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
	"errors"
	"path/filepath"
	"testing"

	"github.com/tombee/ollamaprovider/internal/probe"
	perrors "github.com/tombee/ollamaprovider/pkg/errors"
)

func TestProcess_Running(t *testing.T) {
	ctx := context.Background()
	prober := probe.NewStatic()
	p := New(Config{Executables: []string{"ollama", "ollama_llama_server"}}, prober, nil)

	if p.Running(ctx) {
		t.Error("Running() = true with no processes")
	}

	prober.SetProcesses("ollama_llama_server", 50)
	if p.Running(ctx) {
		t.Error("Running() should only probe the main executable")
	}

	prober.SetProcesses("ollama", 40)
	if !p.Running(ctx) {
		t.Error("Running() = false with main executable present")
	}

	if New(Config{}, prober, nil).Running(ctx) {
		t.Error("Running() without executables = true")
	}
}

func TestProcess_SpawnFailure(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no command", cfg: Config{}},
		{name: "missing binary", cfg: Config{Command: []string{filepath.Join(t.TempDir(), "no-such-ollama"), "serve"}}},
		{name: "unwritable log", cfg: Config{Command: []string{"ollama"}, LogFile: filepath.Join(t.TempDir(), "missing", "dir", "log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.cfg, probe.NewStatic(), nil).Spawn(context.Background())
			var spawnErr *perrors.SpawnError
			if !errors.As(err, &spawnErr) {
				t.Fatalf("Spawn() error = %v, want SpawnError", err)
			}
			if !perrors.IsWarning(err) {
				t.Error("spawn failures should be warnings")
			}
		})
	}
}

func TestProcess_TerminateWithNothingRunning(t *testing.T) {
	p := New(Config{Executables: []string{"ollama", "ollama_llama_server"}}, probe.NewStatic(), nil)
	if err := p.Terminate(context.Background()); err != nil {
		t.Errorf("Terminate() with no matches error = %v", err)
	}
}

func TestProcess_TerminateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{Executables: []string{"ollama"}}, probe.NewStatic(), nil)
	if err := p.Terminate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Terminate() on cancelled context = %v, want context.Canceled", err)
	}
}

func TestFake(t *testing.T) {
	ctx := context.Background()
	f := NewFake(false)

	if err := f.Spawn(ctx); err != nil || !f.Running(ctx) {
		t.Fatalf("Spawn() = %v, running = %v", err, f.Running(ctx))
	}
	if err := f.Terminate(ctx); err != nil || f.Running(ctx) {
		t.Fatalf("Terminate() = %v, running = %v", err, f.Running(ctx))
	}

	f.FailSpawn(errors.New("nope"))
	if err := f.Spawn(ctx); err == nil || f.Running(ctx) {
		t.Error("failing Spawn should leave daemon stopped")
	}
	if f.Spawns() != 2 || f.Terminations() != 1 {
		t.Errorf("Spawns() = %d, Terminations() = %d; want 2, 1", f.Spawns(), f.Terminations())
	}
}
