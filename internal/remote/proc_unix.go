//go:build unix

package remote

import (
	"os/exec"
	"syscall"
)

// killGroup runs the command in its own process group so that a timeout
// kills the shell and everything it spawned.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
