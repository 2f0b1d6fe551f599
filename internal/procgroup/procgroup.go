// SPDX-License-Identifier: MIT

// Package procgroup spawns child processes in their own process group and
// terminates the whole tree with a SIGTERM -> grace -> SIGKILL lifecycle.
package procgroup

import (
	"errors"
	"os/exec"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrKillFailed      = errors.New("kill operation failed")
)

// Set configures the command to start in a new process group.
// Mandatory for group termination to reach grandchildren.
func Set(cmd *exec.Cmd) {
	set(cmd)
}
