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

/*
Package cli provides the root command and global flags for the ollamaprovider CLI.

Individual commands are implemented in the internal/commands subpackages.

# Command Tree

	ollamaprovider
	├── run              Be a client until interrupted
	├── client start     Register a client and make sure the daemon runs
	├── client stop      Deregister a client, stopping the daemon if it was the last
	├── status           Show registered clients and daemon state
	├── reconcile        Prune dead clients now
	└── version          Show version

# Global Flags

	--config   Path to config file (default: ~/.config/ollamaprovider/config.yaml)
	--json     Output in JSON format
	--verbose  Enable debug logging

# Exit Codes

	0  success (warnings are printed to stderr)
	1  operation failed
	2  configuration error
*/
package cli
