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

package errors

import (
	"fmt"
	"time"
)

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "registry.backend")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *ConfigError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConfigError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *ConfigError) Suggestion() string {
	return "Check ~/.config/ollamaprovider/config.yaml or the --config file"
}

// TimeoutError represents operation timeouts.
// Use this when an external process call or lifecycle step exceeds its deadline.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "tasklist", "activate")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// TransientIOError is a registry read or write failure.
// The failed cycle is treated as a no-op; the next reconciliation retries.
type TransientIOError struct {
	// Op is the registry operation (load, save, append)
	Op string

	// Location is the registry path or DSN
	Location string

	// Cause is the underlying I/O error
	Cause error
}

// Error implements the error interface.
func (e *TransientIOError) Error() string {
	return fmt.Sprintf("registry %s %s: %v", e.Op, e.Location, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransientIOError) Unwrap() error {
	return e.Cause
}

// IsWarning implements Warning.
func (e *TransientIOError) IsWarning() bool { return true }

// ErrorType implements ErrorClassifier.
func (e *TransientIOError) ErrorType() string { return "registry_io" }

// IsRetryable implements ErrorClassifier.
func (e *TransientIOError) IsRetryable() bool { return true }

// SpawnError reports that the daemon could not be launched.
// It never rolls back a client registration.
type SpawnError struct {
	// Command is the daemon invocation that failed
	Command []string

	// Cause is the underlying exec error
	Cause error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn daemon %v: %v", e.Command, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SpawnError) Unwrap() error {
	return e.Cause
}

// IsWarning implements Warning.
func (e *SpawnError) IsWarning() bool { return true }

// IsUserVisible implements UserVisibleError.
func (e *SpawnError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *SpawnError) UserMessage() string {
	return "The daemon could not be started; the client stays registered and will use it once it is available"
}

// Suggestion implements UserVisibleError.
func (e *SpawnError) Suggestion() string {
	if len(e.Command) > 0 {
		return fmt.Sprintf("Make sure %q is installed and on PATH, or set daemon.command in the config", e.Command[0])
	}
	return "Set daemon.command in the config"
}
