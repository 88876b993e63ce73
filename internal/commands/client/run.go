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

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tombee/ollamaprovider/internal/commands/shared"
	"github.com/tombee/ollamaprovider/internal/log"
	"golang.org/x/term"
)

// Run command flags
var (
	metricsAddr string
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Hold the daemon open until interrupted",
		Long: `Register this process as a client, start the daemon if it is not
running, and keep reconciling the registry until SIGINT or SIGTERM.

On exit the process deregisters itself; if it was the last client the
daemon is stopped.`,
		Example: `  # Keep ollama running for the length of a shell session
  ollamaprovider run

  # Also expose Prometheus metrics
  ollamaprovider run --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := shared.NewRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := metricsAddr
	if addr == "" {
		addr = rt.Config.Metrics.Addr
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderInfo("holding the daemon open, press Ctrl-C to release it"))
	}
	return Serve(ctx, rt, addr, cmd.ErrOrStderr())
}

// Serve activates rt's manager, blocks until ctx is done and deactivates.
// When metricsAddr is set a Prometheus endpoint is served meanwhile.
func Serve(ctx context.Context, rt *shared.Runtime, metricsAddr string, errOut io.Writer) error {
	logger := rt.Logger

	if metricsAddr != "" {
		srv, err := startMetricsServer(metricsAddr, logger)
		if err != nil {
			return shared.NewFailedError("failed to start metrics server", err)
		}
		logger.Info("metrics listening", "addr", srv.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := rt.Manager.Activate(ctx); err != nil {
		shared.PrintWarning(errOut, err)
	}
	logger.Info("client active", log.PID(int(rt.Manager.Self())), log.Registry(rt.Store.Location()))

	<-ctx.Done()
	logger.Info("shutting down")

	// ctx is already cancelled; deregistration gets a fresh one.
	if err := rt.Manager.Deactivate(context.Background()); err != nil {
		shared.PrintWarning(errOut, err)
	}
	return nil
}

func startMetricsServer(addr string, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go serveMetrics(srv, ln, logger)
	return srv, nil
}

// serveMetrics blocks until srv stops. Anything other than a clean shutdown
// is logged.
func serveMetrics(srv *http.Server, ln net.Listener, logger *slog.Logger) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", log.Error(err))
	}
}
