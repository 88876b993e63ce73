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
Package tracing installs the OpenTelemetry tracer provider used by the
lifecycle spans.

When tracing is disabled the global no-op provider stays in place and spans
cost nothing. When enabled, spans are exported by the stdout exporter to
stderr or a file:

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, version.Version)
	if err != nil {
	    return err
	}
	defer shutdown(context.Background())
*/
package tracing
