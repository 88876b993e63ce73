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

//go:build linux

package probe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
)

const procRoot = "/proc"

// findByName scans /proc. argv[0] is preferred over comm because comm is
// truncated to 15 bytes ("ollama_llama_se").
func findByName(ctx context.Context, _ *OSProber, name string) ([]int, error) {
	return scanProc(ctx, procRoot, name)
}

func scanProc(ctx context.Context, root, name string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if zombie(dir) {
			continue
		}

		if cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil && len(cmdline) > 0 {
			if MatchName(argv0(cmdline), name) {
				pids = append(pids, pid)
			}
			continue
		}
		if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
			if MatchName(string(bytes.TrimSpace(comm)), name) {
				pids = append(pids, pid)
			}
		}
	}
	return pids, nil
}

// zombie reports whether the process has exited but not been reaped. Its
// comm is still readable, so without this check a killed daemon would keep
// matching until its parent waits for it.
func zombie(dir string) bool {
	stat, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return false
	}
	// The state field follows the parenthesised comm, which may itself
	// contain spaces or parentheses.
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 || i+2 >= len(stat) {
		return false
	}
	return stat[i+2] == 'Z'
}
