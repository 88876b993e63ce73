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

//go:build unix && !linux

package probe

import "context"

func findByName(ctx context.Context, p *OSProber, name string) ([]int, error) {
	out, err := p.output(ctx, "ps", "-axo", "pid=,comm=")
	if err != nil {
		return nil, err
	}
	return parsePS(out, name), nil
}
