//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in its own process group and
// arranges for the whole group to be signalled on cancellation, so
// cancelling a session never leaves orphaned grandchildren.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid signals the whole group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
