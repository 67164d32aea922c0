//go:build windows

package supervisor

import (
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// command passes args through untouched: Windows tools parse their own
// command lines and a re-quoted string can change their meaning.
func command(exe, args string) *exec.Cmd {
	cmd := exec.Command(exe)
	line := windows.EscapeArg(exe)
	if args != "" {
		line += " " + args
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: line}
	return cmd
}

func killProcess(p *os.Process) error {
	return p.Kill()
}

func killByName(names []string, logger *slog.Logger) int {
	if len(names) == 0 {
		return 0
	}
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		logger.Debug("process snapshot", "error", err)
		return 0
	}
	defer windows.CloseHandle(snap)

	self := uint32(os.Getpid())
	killed := 0
	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	for err = windows.Process32First(snap, &pe); err == nil; err = windows.Process32Next(snap, &pe) {
		name := windows.UTF16ToString(pe.ExeFile[:])
		if pe.ProcessID == self || !matchName(name, names) {
			continue
		}
		h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pe.ProcessID)
		if err != nil {
			logger.Debug("opening auxiliary process", "pid", pe.ProcessID, "name", name, "error", err)
			continue
		}
		if err := windows.TerminateProcess(h, 1); err == nil {
			killed++
		}
		windows.CloseHandle(h)
	}
	return killed
}
