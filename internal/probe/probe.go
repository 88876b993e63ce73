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

// Package probe answers liveness questions about processes on this machine.
//
// Every answer is fail-safe: when a query cannot be made, times out, or
// returns something unparseable, the process is reported as dead or not
// found. Errors are logged at debug level and never returned.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/tombee/ollamaprovider/internal/log"
	perrors "github.com/tombee/ollamaprovider/pkg/errors"
)

// DefaultTimeout bounds each external process query.
const DefaultTimeout = 5 * time.Second

// Prober reports whether processes are alive.
type Prober interface {
	// PIDAlive reports whether a process with the given PID currently exists.
	PIDAlive(ctx context.Context, pid int) bool

	// ProcessRunning reports whether any process with the given executable
	// name is running.
	ProcessRunning(ctx context.Context, name string) bool

	// FindByName lists the PIDs of processes with the given executable name.
	FindByName(ctx context.Context, name string) []int
}

// OSProber queries the operating system.
type OSProber struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an OSProber. A non-positive timeout uses DefaultTimeout and a
// nil logger discards output.
func New(timeout time.Duration, logger *slog.Logger) *OSProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &OSProber{
		timeout: timeout,
		logger:  log.WithComponent(logger, "probe"),
	}
}

// PIDAlive implements Prober.
func (p *OSProber) PIDAlive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	alive := pidAlive(ctx, p, pid)
	log.Trace(ctx, p.logger, "pid probe", log.PID(pid), slog.Bool("alive", alive))
	return alive
}

// ProcessRunning implements Prober.
func (p *OSProber) ProcessRunning(ctx context.Context, name string) bool {
	return len(p.FindByName(ctx, name)) > 0
}

// FindByName implements Prober.
func (p *OSProber) FindByName(ctx context.Context, name string) []int {
	if name == "" {
		return nil
	}
	pids, err := findByName(ctx, p, name)
	if err != nil {
		p.logger.Debug("process query failed, treating as not running",
			slog.String("name", name), log.Error(err))
		return nil
	}
	log.Trace(ctx, p.logger, "process query", slog.String("name", name), slog.Any("pids", pids))
	return pids
}

// output runs an external command bounded by the probe timeout.
func (p *OSProber) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &perrors.TimeoutError{Operation: name, Duration: p.timeout, Cause: ctx.Err()}
	}
	if err != nil {
		return nil, perrors.Wrapf(err, "run %s", name)
	}
	return out, nil
}
