//go:build unix

package connector

import (
	"os/exec"
	"syscall"
)

// killGroupOnCancel starts the script in its own process group and kills the
// whole group on cancellation, so children of the script die with it.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
