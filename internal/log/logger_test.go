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

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func clearLogEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OLLAMAPROVIDER_DEBUG", "OLLAMAPROVIDER_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected default format 'text', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		envVars    map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:       "defaults when no env vars",
			envVars:    map[string]string{},
			wantLevel:  "info",
			wantFormat: FormatText,
		},
		{
			name:       "LOG_LEVEL=DEBUG (case insensitive)",
			envVars:    map[string]string{"LOG_LEVEL": "DEBUG"},
			wantLevel:  "debug",
			wantFormat: FormatText,
		},
		{
			name:       "prefixed level wins over LOG_LEVEL",
			envVars:    map[string]string{"OLLAMAPROVIDER_LOG_LEVEL": "warn", "LOG_LEVEL": "error"},
			wantLevel:  "warn",
			wantFormat: FormatText,
		},
		{
			name:       "debug flag wins over levels",
			envVars:    map[string]string{"OLLAMAPROVIDER_DEBUG": "1", "OLLAMAPROVIDER_LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantFormat: FormatText,
			wantSource: true,
		},
		{
			name:       "format and source",
			envVars:    map[string]string{"LOG_FORMAT": "JSON", "LOG_SOURCE": "1"},
			wantLevel:  "info",
			wantFormat: FormatJSON,
			wantSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLogEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.wantLevel {
				t.Errorf("expected level %q, got %q", tt.wantLevel, cfg.Level)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("expected format %q, got %q", tt.wantFormat, cfg.Format)
			}
			if cfg.AddSource != tt.wantSource {
				t.Errorf("expected AddSource %v, got %v", tt.wantSource, cfg.AddSource)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	WithClient(WithComponent(logger, "lifecycle"), 4242).Info("registered", Registry("/tmp/ollamaprovider.lock"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["msg"] != "registered" {
		t.Errorf("expected msg 'registered', got %v", entry["msg"])
	}
	if entry[ComponentKey] != "lifecycle" {
		t.Errorf("expected component 'lifecycle', got %v", entry[ComponentKey])
	}
	if entry[ClientIDKey] != float64(4242) {
		t.Errorf("expected client_id 4242, got %v", entry[ClientIDKey])
	}
	if entry[RegistryKey] != "/tmp/ollamaprovider.lock" {
		t.Errorf("expected registry path, got %v", entry[RegistryKey])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Info("daemon started", PID(99))

	out := buf.String()
	if !strings.Contains(out, "msg=\"daemon started\"") {
		t.Errorf("expected text output with message, got %q", out)
	}
	if !strings.Contains(out, "pid=99") {
		t.Errorf("expected pid field, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer

	Trace(context.Background(), New(&Config{Level: "debug", Output: &buf}), "hidden")
	if buf.Len() != 0 {
		t.Errorf("trace message should be filtered at debug level, got %q", buf.String())
	}

	Trace(context.Background(), New(&Config{Level: "trace", Output: &buf}), "visible", PID(1))
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("trace message should be written at trace level, got %q", buf.String())
	}
}

func TestErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Warn("save failed", Error(errors.New("disk full")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["error"] != "disk full" {
		t.Errorf("expected error 'disk full', got %v", entry["error"])
	}
}

func TestNilConfig(t *testing.T) {
	if New(nil) == nil {
		t.Fatal("New(nil) should return a logger")
	}
	if New(&Config{Level: "info"}) == nil {
		t.Fatal("New with nil Output should return a logger")
	}
	Discard().Error("dropped")
}
