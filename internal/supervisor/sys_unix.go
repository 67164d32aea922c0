//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func command(exe, args string) *exec.Cmd {
	cmd := exec.Command(exe, SplitArgs(args)...)
	// Own process group so a kill takes the tool's children with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func killProcess(p *os.Process) error {
	if p.Pid > 0 {
		_ = unix.Kill(-p.Pid, unix.SIGKILL)
	}
	return p.Kill()
}
