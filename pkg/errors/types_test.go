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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	perrors "github.com/tombee/ollamaprovider/pkg/errors"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *perrors.ConfigError
		wantMsg string
	}{
		{
			name:    "with key",
			err:     &perrors.ConfigError{Key: "registry.backend", Reason: `unknown backend "redis"`},
			wantMsg: `config error at registry.backend: unknown backend "redis"`,
		},
		{
			name:    "without key",
			err:     &perrors.ConfigError{Reason: "file is not valid YAML"},
			wantMsg: "config error: file is not valid YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ConfigError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &perrors.ConfigError{Key: "config", Reason: "cannot read", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("ConfigError should unwrap to its cause")
	}

	var uv perrors.UserVisibleError
	if !errors.As(err, &uv) {
		t.Fatal("ConfigError should implement UserVisibleError")
	}
	if uv.Suggestion() == "" {
		t.Error("ConfigError should carry a suggestion")
	}
}

func TestTimeoutError_Error(t *testing.T) {
	err := &perrors.TimeoutError{Operation: "tasklist", Duration: 5 * time.Second}
	want := "tasklist operation timed out after 5s"
	if got := err.Error(); got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
}

func TestTransientIOError(t *testing.T) {
	cause := errors.New("disk full")
	err := &perrors.TransientIOError{Op: "save", Location: "/tmp/ollamaprovider.lock", Cause: cause}

	if got := err.Error(); !strings.Contains(got, "save") || !strings.Contains(got, "disk full") {
		t.Errorf("TransientIOError.Error() = %q, want op and cause", got)
	}
	if !errors.Is(err, cause) {
		t.Error("TransientIOError should unwrap to its cause")
	}
	if !err.IsRetryable() {
		t.Error("TransientIOError should be retryable")
	}
	if !perrors.IsWarning(err) {
		t.Error("TransientIOError should be a warning")
	}
}

func TestSpawnError(t *testing.T) {
	cause := errors.New(`exec: "ollama": executable file not found in $PATH`)
	err := &perrors.SpawnError{Command: []string{"ollama", "serve"}, Cause: cause}

	wrapped := fmt.Errorf("activate: %w", err)
	if !perrors.IsWarning(wrapped) {
		t.Error("wrapped SpawnError should still be a warning")
	}

	var spawnErr *perrors.SpawnError
	if !errors.As(wrapped, &spawnErr) {
		t.Fatal("errors.As should find SpawnError")
	}
	if !strings.Contains(spawnErr.Suggestion(), "ollama") {
		t.Errorf("Suggestion() = %q, want executable name", spawnErr.Suggestion())
	}

	empty := &perrors.SpawnError{}
	if empty.Suggestion() == "" {
		t.Error("SpawnError without command should still suggest something")
	}
}

func TestIsWarning(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "config", err: &perrors.ConfigError{Reason: "bad"}, want: false},
		{name: "spawn", err: &perrors.SpawnError{}, want: true},
		{name: "joined", err: errors.Join(errors.New("x"), &perrors.TransientIOError{Op: "load"}), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := perrors.IsWarning(tt.err); got != tt.want {
				t.Errorf("IsWarning() = %v, want %v", got, tt.want)
			}
		})
	}
}
