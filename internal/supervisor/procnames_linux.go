package supervisor

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// killByName kills every process whose command name is in names, except
// this one. It returns how many were signalled.
func killByName(names []string, logger *slog.Logger) int {
	if len(names) == 0 {
		return 0
	}
	entries, err := filepath.Glob("/proc/[0-9]*/comm")
	if err != nil {
		return 0
	}
	self := os.Getpid()
	killed := 0
	for _, comm := range entries {
		pid, err := strconv.Atoi(filepath.Base(filepath.Dir(comm)))
		if err != nil || pid == self {
			continue
		}
		data, err := os.ReadFile(comm)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(data))
		if !matchName(name, names) {
			continue
		}
		if err := unix.Kill(pid, unix.SIGKILL); err != nil {
			logger.Debug("killing auxiliary process", "pid", pid, "name", name, "error", err)
			continue
		}
		killed++
	}
	return killed
}
