//go:build unix

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr starts the child in its own process group so helpers it
// spawns are killed with it.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess sends SIGKILL to the child's process group, falling back to the
// child alone. A process that is already gone is not an error.
func killProcess(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
