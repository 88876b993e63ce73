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

package shared

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/tombee/ollamaprovider/internal/config"
	"github.com/tombee/ollamaprovider/internal/daemon"
	"github.com/tombee/ollamaprovider/internal/lifecycle"
	"github.com/tombee/ollamaprovider/internal/log"
	"github.com/tombee/ollamaprovider/internal/probe"
	"github.com/tombee/ollamaprovider/internal/registry"
	"github.com/tombee/ollamaprovider/internal/tracing"
)

// Runtime is the set of collaborators every lifecycle command works with.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   registry.Store
	Prober  probe.Prober
	Daemon  daemon.Controller
	Journal *lifecycle.Journal
	Manager *lifecycle.Manager

	shutdownTracing tracing.ShutdownFunc
}

// NewRuntime loads configuration from the --config flag and builds the
// registry, prober, daemon controller and manager from it. Logs go to
// errOut. Callers must Close the runtime.
func NewRuntime(ctx context.Context, errOut io.Writer) (*Runtime, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("invalid configuration", err)
	}
	return NewRuntimeFromConfig(ctx, cfg, errOut)
}

// NewRuntimeFromConfig builds a Runtime from an already loaded config.
func NewRuntimeFromConfig(ctx context.Context, cfg *config.Config, errOut io.Writer) (*Runtime, error) {
	logger := newLogger(cfg, errOut)

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		logger.Warn("tracing disabled", log.Error(err))
		shutdown = func(context.Context) error { return nil }
	}

	store, err := registry.Open(ctx, cfg.Registry, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, NewFailedError("failed to open registry", err)
	}

	prober := probe.New(cfg.ProcessTimeout, logger)
	ctrl := daemon.New(daemon.Config{
		Command:     cfg.Daemon.Command,
		Executables: cfg.Daemon.Executables,
		LogFile:     cfg.Daemon.LogFile,
		Timeout:     cfg.ProcessTimeout,
	}, prober, logger)

	var journal *lifecycle.Journal
	if cfg.Journal.Enabled {
		journal = lifecycle.NewJournal(cfg.Journal.Path, logger)
	}

	opts := lifecycle.Options{
		Interval:         cfg.Reconcile.Interval,
		OperationTimeout: cfg.OperationTimeout,
		Reassert:         cfg.Reconcile.Reassert,
		Journal:          journal,
		Logger:           logger,
	}
	if cfg.Reconcile.Watch && cfg.Registry.Backend == config.BackendFile {
		opts.WatchPath = cfg.Registry.Path
	}

	return &Runtime{
		Config:          cfg,
		Logger:          logger,
		Store:           store,
		Prober:          prober,
		Daemon:          ctrl,
		Journal:         journal,
		Manager:         lifecycle.NewManager(store, prober, ctrl, opts),
		shutdownTracing: shutdown,
	}, nil
}

// Close stops the manager's periodic task, flushes traces and closes the
// registry. It does not deregister anyone.
func (r *Runtime) Close() error {
	_ = r.Manager.Close()
	if err := r.shutdownTracing(context.Background()); err != nil {
		r.Logger.Debug("trace flush failed", log.Error(err))
	}
	return r.Store.Close()
}

func newLogger(cfg *config.Config, errOut io.Writer) *slog.Logger {
	logCfg := log.FromEnv()
	if os.Getenv("OLLAMAPROVIDER_DEBUG") == "" && os.Getenv("OLLAMAPROVIDER_LOG_LEVEL") == "" {
		logCfg.Level = cfg.Log.Level
	}
	logCfg.Format = log.Format(cfg.Log.Format)
	if GetVerbose() {
		logCfg.Level = "debug"
	}
	logCfg.Output = errOut
	return log.New(logCfg)
}
