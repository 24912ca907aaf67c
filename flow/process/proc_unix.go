//go:build unix

package process

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/cockroachdb/errors"
)

// setProcessGroup runs the child in its own process group so cancellation
// reaches every descendant. Cancellation sends SIGTERM; WaitDelay escalates
// to SIGKILL.
func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return signalGroup(c, syscall.SIGTERM)
	}
}

func killGroup(c *exec.Cmd) error {
	return signalGroup(c, syscall.SIGKILL)
}

func signalGroup(c *exec.Cmd, sig syscall.Signal) error {
	if c.Process == nil {
		return nil
	}
	err := syscall.Kill(-c.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
