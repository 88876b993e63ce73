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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/ollamaprovider/internal/commands/shared"
	"github.com/tombee/ollamaprovider/internal/config"
	"github.com/tombee/ollamaprovider/internal/log"
)

// writeConfig points the CLI at a private registry and a harmless daemon.
func writeConfig(t *testing.T) (configPath, registryPath string) {
	t.Helper()
	dir := t.TempDir()
	registryPath = filepath.Join(dir, "ollamaprovider.lock")
	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`registry:
  backend: file
  path: %s
daemon:
  command: ["true"]
  executables: ["ollamaprovider-test-no-such-daemon"]
`, registryPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	shared.SetConfigPathForTest(configPath)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return configPath, registryPath
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := &cobra.Command{Use: "test", SilenceErrors: true, SilenceUsage: true}
	_, jsonPtr, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")
	t.Cleanup(func() { shared.SetJSONForTest(false) })
	root.AddCommand(NewCommand())

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestClientStartStop(t *testing.T) {
	_, registryPath := writeConfig(t)
	pid := os.Getpid()

	out, _, err := execute(t, "client", "start", "--pid", fmt.Sprint(pid))
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("registered client %d", pid))

	data, err := os.ReadFile(registryPath)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d\n", pid), string(data))

	out, _, err = execute(t, "client", "stop", "--pid", fmt.Sprint(pid))
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("deregistered client %d", pid))

	_, err = os.Stat(registryPath)
	assert.True(t, os.IsNotExist(err), "registry should be removed with the last client")
}

func TestClientStart_JSON(t *testing.T) {
	writeConfig(t)
	pid := os.Getpid()

	out, _, err := execute(t, "client", "start", "--pid", fmt.Sprint(pid), "--json")
	require.NoError(t, err)

	var resp clientResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "client start", resp.Command)
	assert.True(t, resp.Success)
	assert.Equal(t, pid, resp.ClientID)
	assert.Empty(t, resp.Warning)
}

func TestClientStart_SpawnFailureIsWarning(t *testing.T) {
	configPath, registryPath := writeConfig(t)
	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	broken := strings.Replace(string(content), `["true"]`, `["ollamaprovider-test-missing-binary"]`, 1)
	require.NoError(t, os.WriteFile(configPath, []byte(broken), 0600))

	out, errOut, err := execute(t, "client", "start", "--pid", fmt.Sprint(os.Getpid()))
	require.NoError(t, err, "spawn failures must not fail the command")
	assert.Contains(t, out, "daemon may not be running")
	assert.Contains(t, errOut, "Suggestion:")

	_, err = os.Stat(registryPath)
	assert.NoError(t, err, "registration is kept when the daemon cannot start")
}

func TestClientStart_RequiresPID(t *testing.T) {
	writeConfig(t)

	_, _, err := execute(t, "client", "start")
	assert.Error(t, err)

	_, _, err = execute(t, "client", "start", "--pid", "-4")
	assert.Error(t, err)
}

func TestServe_ActivatesUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Registry.Path = filepath.Join(t.TempDir(), "ollamaprovider.lock")
	cfg.Daemon.Command = []string{"true"}
	cfg.Daemon.Executables = []string{"ollamaprovider-test-no-such-daemon"}

	rt, err := shared.NewRuntimeFromConfig(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, rt, "127.0.0.1:0", io.Discard) }()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg.Registry.Path)
		return err == nil && string(data) == fmt.Sprintf("%d\n", os.Getpid())
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	_, err = os.Stat(cfg.Registry.Path)
	assert.True(t, os.IsNotExist(err), "registry should be removed on exit")
}

func TestStartMetricsServer(t *testing.T) {
	srv, err := startMetricsServer("127.0.0.1:0", log.Discard())
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServeMetrics_LogsUnexpectedStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	serveMetrics(&http.Server{ReadHeaderTimeout: time.Second}, ln, logger)

	assert.Contains(t, buf.String(), "metrics server stopped")
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestServeMetrics_CleanShutdownIsQuiet(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	srv := &http.Server{ReadHeaderTimeout: time.Second}

	done := make(chan struct{})
	go func() {
		serveMetrics(srv, ln, logger)
		close(done)
	}()
	require.NoError(t, srv.Shutdown(context.Background()))
	<-done

	assert.Empty(t, buf.String())
}
