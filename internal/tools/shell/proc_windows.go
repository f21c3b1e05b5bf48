//go:build windows

package shell

import "os/exec"

// configureProcessGroup is a no-op on Windows; CommandContext kills the
// direct child on cancellation.
func configureProcessGroup(cmd *exec.Cmd) {}
