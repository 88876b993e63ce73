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
	"bytes"
	"encoding/csv"
	"io"
	"path"
	"strconv"
	"strings"
)

// MatchName reports whether candidate names the executable name. Directory
// components and a trailing ".exe" are ignored on both sides and the
// comparison is case-insensitive.
func MatchName(candidate, name string) bool {
	return strings.EqualFold(baseName(candidate), baseName(name))
}

func baseName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `\`, "/")
	s = path.Base(s)
	if len(s) > 4 && strings.EqualFold(s[len(s)-4:], ".exe") {
		s = s[:len(s)-4]
	}
	return s
}

// argv0 extracts the first argument of a NUL-separated /proc cmdline.
func argv0(cmdline []byte) string {
	if i := bytes.IndexByte(cmdline, 0); i >= 0 {
		cmdline = cmdline[:i]
	}
	return string(cmdline)
}

// parsePS parses `ps -axo pid=,comm=` output and returns the PIDs whose
// command matches name.
func parsePS(out []byte, name string) []int {
	var pids []int
	for _, raw := range bytes.Split(out, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		pidField, comm, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidField)
		if err != nil || pid <= 0 {
			continue
		}
		if MatchName(comm, name) {
			pids = append(pids, pid)
		}
	}
	return pids
}

// parseTasklist parses `tasklist /FO CSV /NH` output and returns the PIDs
// whose image name matches name. Lines that are not CSV records (such as
// the "INFO: No tasks are running" notice) are skipped.
func parseTasklist(out []byte, name string) []int {
	var pids []int
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(rec) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil || pid <= 0 {
			continue
		}
		if name == "" || MatchName(rec[0], name) {
			pids = append(pids, pid)
		}
	}
	return pids
}
