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

// Package registry implements the commands that inspect and repair the
// client registry.
package registry

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/ollamaprovider/internal/commands/shared"
	"github.com/tombee/ollamaprovider/internal/lifecycle"
	reg "github.com/tombee/ollamaprovider/internal/registry"
)

// ClientStatus is one registry entry as seen by status.
type ClientStatus struct {
	PID   int  `json:"pid"`
	Alive bool `json:"alive"`
}

// StatusResponse is the JSON form of status.
type StatusResponse struct {
	shared.JSONResponse
	Backend       string         `json:"backend"`
	Location      string         `json:"location"`
	Exists        bool           `json:"exists"`
	Clients       []ClientStatus `json:"clients"`
	DaemonRunning bool           `json:"daemon_running"`
}

// ReconcileResponse is the JSON form of reconcile.
type ReconcileResponse struct {
	shared.JSONResponse
	Checked    []int `json:"checked"`
	Live       []int `json:"live"`
	Stale      []int `json:"stale"`
	Skipped    bool  `json:"skipped"`
	Removed    bool  `json:"removed"`
	Terminated bool  `json:"terminated"`
}

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registered clients and daemon state",
		Long: `Show every client in the registry with its liveness, and whether the
daemon is running. Nothing is modified.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// NewReconcileCommand creates the reconcile command
func NewReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Prune dead clients now",
		Long: `Run one reconciliation pass: drop registry entries whose process has
exited and, if none remain, stop the daemon and remove the registry.`,
		Args: cobra.NoArgs,
		RunE: runReconcile,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := shared.NewRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	exists, err := rt.Store.Exists(ctx)
	if err != nil {
		return shared.NewFailedError("failed to read registry", err)
	}
	ids, err := rt.Store.Load(ctx)
	if err != nil {
		return shared.NewFailedError("failed to read registry", err)
	}

	resp := StatusResponse{
		JSONResponse:  shared.NewJSONResponse("status", true),
		Backend:       rt.Config.Registry.Backend,
		Location:      rt.Store.Location(),
		Exists:        exists,
		Clients:       make([]ClientStatus, 0, len(ids)),
		DaemonRunning: rt.Daemon.Running(ctx),
	}
	for _, id := range ids {
		resp.Clients = append(resp.Clients, ClientStatus{PID: int(id), Alive: rt.Prober.PIDAlive(ctx, int(id))})
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), resp)
	}
	printStatus(cmd.OutOrStdout(), resp)
	return nil
}

func printStatus(w io.Writer, resp StatusResponse) {
	fmt.Fprintln(w, shared.Header.Render("Registry"))
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("backend: "), resp.Backend)
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("location:"), resp.Location)

	if len(resp.Clients) == 0 {
		fmt.Fprintf(w, "  %s\n", shared.Muted.Render("no clients registered"))
	}
	if len(resp.Clients) > 0 {
		rows := make([][]string, 0, len(resp.Clients))
		for _, c := range resp.Clients {
			state := shared.StatusOK.Render("alive")
			if !c.Alive {
				state = shared.StatusError.Render("not running")
			}
			rows = append(rows, []string{fmt.Sprintf("%d", c.PID), state})
		}
		fmt.Fprintln(w, shared.RenderTable([]string{"PID", "STATE"}, rows, 0))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.Header.Render("Daemon"))
	fmt.Fprintf(w, "  %s\n", shared.RenderStatus(resp.DaemonRunning, daemonLabel(resp.DaemonRunning)))
}

func daemonLabel(running bool) string {
	if running {
		return "RUNNING"
	}
	return "STOPPED"
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := shared.NewRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.Manager.Reconciler().Reconcile(ctx)
	if err != nil {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(cmd.OutOrStdout(), "reconcile", []shared.JSONError{{Code: "registry_io", Message: err.Error()}})
		}
		return shared.NewFailedError("reconcile failed", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), reconcileResponse(res))
	}
	printReconcile(cmd.OutOrStdout(), res)
	return nil
}

func reconcileResponse(res lifecycle.Result) ReconcileResponse {
	return ReconcileResponse{
		JSONResponse: shared.NewJSONResponse("reconcile", true),
		Checked:      ints(res.Checked),
		Live:         ints(res.Live),
		Stale:        ints(res.Stale),
		Skipped:      res.Skipped,
		Removed:      res.Removed,
		Terminated:   res.Terminated,
	}
}

func printReconcile(w io.Writer, res lifecycle.Result) {
	switch {
	case res.Skipped:
		fmt.Fprintln(w, shared.RenderInfo("no registry, nothing to do"))
	case res.Terminated:
		fmt.Fprintln(w, shared.RenderWarn(fmt.Sprintf("no live clients left (pruned %s), daemon stopped", join(res.Stale))))
	case len(res.Stale) > 0:
		fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("pruned %s, %d live", join(res.Stale), len(res.Live))))
	default:
		fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%d live, nothing to prune", len(res.Live))))
	}
}

func ints(ids []reg.ClientID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

func join(ids []reg.ClientID) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
