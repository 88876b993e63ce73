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
	"reflect"
	"strings"
	"testing"
)

func TestMatchName(t *testing.T) {
	tests := []struct {
		candidate string
		name      string
		want      bool
	}{
		{"ollama", "ollama", true},
		{"/usr/local/bin/ollama", "ollama", true},
		{"ollama.exe", "ollama", true},
		{`C:\Program Files\Ollama\ollama.exe`, "ollama", true},
		{"OLLAMA.EXE", "ollama", true},
		{"ollama_llama_server", "ollama", false},
		{"ollama", "ollama_llama_server", false},
		{"ollama-helper", "ollama", false},
		{"", "ollama", false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate+"/"+tt.name, func(t *testing.T) {
			if got := MatchName(tt.candidate, tt.name); got != tt.want {
				t.Errorf("MatchName(%q, %q) = %v, want %v", tt.candidate, tt.name, got, tt.want)
			}
		})
	}
}

func TestArgv0(t *testing.T) {
	if got := argv0([]byte("/usr/bin/ollama\x00serve\x00")); got != "/usr/bin/ollama" {
		t.Errorf("argv0() = %q, want /usr/bin/ollama", got)
	}
	if got := argv0([]byte("ollama")); got != "ollama" {
		t.Errorf("argv0() without NUL = %q, want ollama", got)
	}
}

func TestParsePS(t *testing.T) {
	out := []byte(`    1 /sbin/launchd
  412 /usr/local/bin/ollama
  413 /Applications/Ollama.app/Contents/Resources/ollama_llama_server
 garbage line
  abc ollama
  900 ollama
`)

	if got, want := parsePS(out, "ollama"), []int{412, 900}; !reflect.DeepEqual(got, want) {
		t.Errorf("parsePS(ollama) = %v, want %v", got, want)
	}
	if got, want := parsePS(out, "ollama_llama_server"), []int{413}; !reflect.DeepEqual(got, want) {
		t.Errorf("parsePS(ollama_llama_server) = %v, want %v", got, want)
	}
	if got := parsePS(nil, "ollama"); len(got) != 0 {
		t.Errorf("parsePS(nil) = %v, want empty", got)
	}

	long := []byte("  7 " + strings.Repeat("x", 70*1024) + "\n  8 ollama\n")
	if got, want := parsePS(long, "ollama"), []int{8}; !reflect.DeepEqual(got, want) {
		t.Errorf("parsePS after an oversized line = %v, want %v", got, want)
	}
}

func TestParseTasklist(t *testing.T) {
	out := []byte(`"System Idle Process","0","Services","0","8 K"
"ollama.exe","5120","Console","1","45,312 K"
"ollama_llama_server.exe","6400","Console","1","1,200,000 K"
"Code.exe","7000","Console","1","210,000 K"
`)

	if got, want := parseTasklist(out, "ollama"), []int{5120}; !reflect.DeepEqual(got, want) {
		t.Errorf("parseTasklist(ollama) = %v, want %v", got, want)
	}
	if got, want := parseTasklist(out, "ollama_llama_server"), []int{6400}; !reflect.DeepEqual(got, want) {
		t.Errorf("parseTasklist(ollama_llama_server) = %v, want %v", got, want)
	}

	none := []byte("INFO: No tasks are running which match the specified criteria.\r\n")
	if got := parseTasklist(none, "ollama"); len(got) != 0 {
		t.Errorf("parseTasklist(info) = %v, want empty", got)
	}
}
