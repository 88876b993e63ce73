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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tombee/ollamaprovider/internal/commands/shared"
	"github.com/tombee/ollamaprovider/internal/registry"
)

// NewCommand creates the client command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Register or deregister a client process",
		Long: `Commands for driving the lifecycle on behalf of another process, such as
an editor plugin or a shell hook that cannot link the library.

'client start' returns once the client is registered; it does not keep
reconciling. Any other live client's periodic pass prunes the entry after
the process exits.`,
	}

	cmd.AddCommand(newStartCommand())
	cmd.AddCommand(newStopCommand())

	return cmd
}

type pidFlags struct {
	pid int
}

func (f *pidFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.pid, "pid", 0, "Client process id (required)")
	_ = cobra.MarkFlagRequired(fs, "pid")
}

func (f *pidFlags) clientID() (registry.ClientID, error) {
	if f.pid <= 0 {
		return 0, shared.NewFailedError(fmt.Sprintf("invalid --pid %d", f.pid), nil)
	}
	return registry.ClientID(f.pid), nil
}

type clientResponse struct {
	shared.JSONResponse
	ClientID int    `json:"client_id"`
	Warning  string `json:"warning,omitempty"`
}

func newStartCommand() *cobra.Command {
	var flags pidFlags
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Register a client and make sure the daemon runs",
		Example: `  ollamaprovider client start --pid $$`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.clientID()
			if err != nil {
				return err
			}
			rt, err := shared.NewRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			warn := rt.Manager.OnClientStart(cmd.Context(), id)
			return report(cmd, "client start", id, warn, "registered client %d", "daemon may not be running")
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newStopCommand() *cobra.Command {
	var flags pidFlags
	cmd := &cobra.Command{
		Use:     "stop",
		Short:   "Deregister a client, stopping the daemon if it was the last",
		Example: `  ollamaprovider client stop --pid $$`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.clientID()
			if err != nil {
				return err
			}
			rt, err := shared.NewRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			warn := rt.Manager.OnClientStop(cmd.Context(), id)
			return report(cmd, "client stop", id, warn, "deregistered client %d", "registry was not updated")
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// report prints the outcome of a start or stop. Warnings never fail the
// command.
func report(cmd *cobra.Command, command string, id registry.ClientID, warn error, okFormat, warnSummary string) error {
	if shared.GetJSON() {
		resp := clientResponse{
			JSONResponse: shared.NewJSONResponse(command, true),
			ClientID:     int(id),
		}
		if warn != nil {
			resp.Warning = warn.Error()
		}
		return shared.EmitJSON(cmd.OutOrStdout(), resp)
	}

	if warn != nil {
		shared.PrintWarning(cmd.ErrOrStderr(), warn)
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderWarn(fmt.Sprintf(okFormat, id)+", "+warnSummary))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf(okFormat, id)))
	return nil
}
