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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tombee/ollamaprovider/internal/probe"
	"github.com/tombee/ollamaprovider/internal/registry"
)

// recordingProber records the names passed to FindByName.
type recordingProber struct {
	*probe.Static
	mu    sync.Mutex
	names []string
}

func newRecordingProber(alive ...int) *recordingProber {
	return &recordingProber{Static: probe.NewStatic(alive...)}
}

func (r *recordingProber) FindByName(ctx context.Context, name string) []int {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return r.Static.FindByName(ctx, name)
}

func (r *recordingProber) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// lockFile returns a registry path inside a fresh temp dir, optionally
// pre-populated with content.
func lockFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ollamaprovider.lock")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func readLockFile(t *testing.T, path string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		t.Fatal(err)
	}
	return string(data), true
}

func ids(v ...int) []registry.ClientID {
	out := make([]registry.ClientID, len(v))
	for i, n := range v {
		out[i] = registry.ClientID(n)
	}
	return out
}
