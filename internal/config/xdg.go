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

package config

import (
	"os"
	"path/filepath"
)

// AppName names the configuration directory and default artifacts.
const AppName = "ollamaprovider"

// ConfigDir returns the XDG config directory for ollamaprovider.
// On Unix and macOS: ~/.config/ollamaprovider
// Respects XDG_CONFIG_HOME environment variable. The directory is not created.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultRegistryPath is the registry file shared by every client on the
// machine: <tempdir>/ollamaprovider.lock.
func DefaultRegistryPath() string {
	return filepath.Join(os.TempDir(), AppName+".lock")
}

// DefaultSQLitePath is the registry database used by the sqlite backend.
func DefaultSQLitePath() string {
	return filepath.Join(os.TempDir(), AppName+".db")
}

// DefaultJournalPath is where lifecycle events are appended when the journal is on.
func DefaultJournalPath() string {
	return filepath.Join(os.TempDir(), AppName+"-journal.jsonl")
}
