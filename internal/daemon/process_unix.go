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

//go:build unix

package daemon

import (
	"context"
	"syscall"

	"github.com/tombee/ollamaprovider/internal/log"
	perrors "github.com/tombee/ollamaprovider/pkg/errors"
	"golang.org/x/sys/unix"
)

func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// killByName sends SIGKILL to every process named name except this one.
func (p *Process) killByName(ctx context.Context, name string) (int, error) {
	var errs []error
	killed := 0
	for _, pid := range p.prober.FindByName(ctx, name) {
		if pid <= 1 || pid == p.self {
			continue
		}
		err := unix.Kill(pid, unix.SIGKILL)
		switch err {
		case nil:
			killed++
			p.logger.Debug("killed daemon process", log.PID(pid))
		case unix.ESRCH:
		default:
			errs = append(errs, perrors.Wrapf(err, "kill %s (pid %d)", name, pid))
		}
	}
	return killed, perrors.Join(errs...)
}
