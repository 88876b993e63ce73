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

// Package daemon starts and stops the shared inference daemon.
//
// The daemon is not tracked by handle. It is started detached from the
// caller, and found again by executable name when it has to be stopped, so
// that any client can tear down a daemon another client started.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/tombee/ollamaprovider/internal/log"
	"github.com/tombee/ollamaprovider/internal/probe"
	perrors "github.com/tombee/ollamaprovider/pkg/errors"
)

// Controller starts, stops and probes the daemon.
type Controller interface {
	// Spawn launches the daemon detached from the caller.
	Spawn(ctx context.Context) error

	// Terminate force-kills every process with one of the daemon's
	// executable names.
	Terminate(ctx context.Context) error

	// Running reports whether the main daemon executable is running.
	Running(ctx context.Context) bool
}

// Config describes the daemon to manage.
type Config struct {
	// Command is the argv used to start the daemon.
	Command []string

	// Executables are terminated by name; the first is probed by Running.
	Executables []string

	// LogFile receives the daemon's output. Empty discards it.
	LogFile string

	// Timeout bounds each external process call.
	Timeout time.Duration

	// Env is the daemon's environment. Nil inherits the caller's.
	Env []string
}

// Process controls a daemon running as an operating-system process.
type Process struct {
	cfg    Config
	prober probe.Prober
	logger *slog.Logger
	self   int
}

// New creates a Process controller.
func New(cfg Config, prober probe.Prober, logger *slog.Logger) *Process {
	if cfg.Timeout <= 0 {
		cfg.Timeout = probe.DefaultTimeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Process{
		cfg:    cfg,
		prober: prober,
		logger: log.WithComponent(logger, "daemon"),
		self:   os.Getpid(),
	}
}

// Running implements Controller.
func (p *Process) Running(ctx context.Context) bool {
	if len(p.cfg.Executables) == 0 {
		return false
	}
	return p.prober.ProcessRunning(ctx, p.cfg.Executables[0])
}

// Spawn implements Controller. The child gets its own session (or process
// group on Windows) so it outlives the caller. No handle is kept.
func (p *Process) Spawn(_ context.Context) error {
	if len(p.cfg.Command) == 0 {
		return &perrors.SpawnError{Cause: errors.New("no daemon command configured")}
	}

	out, err := p.openOutput()
	if err != nil {
		return &perrors.SpawnError{Command: p.cfg.Command, Cause: err}
	}
	defer out.Close()

	// Not CommandContext: cancelling the caller must not kill the daemon.
	cmd := exec.Command(p.cfg.Command[0], p.cfg.Command[1:]...)
	cmd.Env = p.cfg.Env
	cmd.Stdin = nil
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		return &perrors.SpawnError{Command: p.cfg.Command, Cause: err}
	}

	pid := cmd.Process.Pid
	// Reap the child if it exits while we are still around, so a dead
	// daemon does not linger as a zombie that name lookups still find.
	go func() {
		if err := cmd.Wait(); err != nil {
			p.logger.Debug("daemon exited", log.PID(pid), log.Error(err))
		}
	}()
	p.logger.Info("daemon started", log.PID(pid), slog.Any("command", p.cfg.Command))
	return nil
}

func (p *Process) openOutput() (*os.File, error) {
	if p.cfg.LogFile == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	return os.OpenFile(p.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// Terminate implements Controller. Every configured name is attempted even
// when an earlier one fails; failures are logged and returned joined.
func (p *Process) Terminate(ctx context.Context) error {
	var errs []error
	for _, name := range p.cfg.Executables {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		killed, err := p.killByName(ctx, name)
		if err != nil {
			p.logger.Warn("failed to terminate daemon process", slog.String("name", name), log.Error(err))
			errs = append(errs, err)
		}
		if killed > 0 {
			p.logger.Info("daemon stopped", slog.String("name", name), slog.Int("killed", killed))
		}
	}
	return errors.Join(errs...)
}

// output runs an external helper bounded by the configured timeout.
func (p *Process) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, &perrors.TimeoutError{Operation: name, Duration: p.cfg.Timeout, Cause: ctx.Err()}
	}
	return out, err
}
