//go:build !windows

package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"syscall"
)

// OSFeatures is the default Features implementation for Unix hosts.
type OSFeatures struct{}

func (OSFeatures) Suspend(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGSTOP); err != nil {
		return fmt.Errorf("suspend pid %d: %w", pid, err)
	}
	return nil
}

func (OSFeatures) Resume(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGCONT); err != nil {
		return fmt.Errorf("resume pid %d: %w", pid, err)
	}
	return nil
}

// Username resolves the real UID of the process from /proc.
func (OSFeatures) Username(pid int) (string, error) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return "", fmt.Errorf("read process status for pid %d: %w", pid, err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		u, err := user.LookupId(fields[1])
		if err != nil {
			return "", fmt.Errorf("lookup uid %s: %w", fields[1], err)
		}
		return u.Username, nil
	}
	return "", fmt.Errorf("no uid found for pid %d", pid)
}

// Dump produces a core dump at path via gcore.
func (OSFeatures) Dump(ctx context.Context, pid int, path string) error {
	// gcore writes <prefix>.<pid>; rename to the requested path afterwards.
	cmd := exec.CommandContext(ctx, "gcore", "-o", path, strconv.Itoa(pid))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gcore pid %d: %w: %s", pid, err, strings.TrimSpace(string(out)))
	}
	produced := fmt.Sprintf("%s.%d", path, pid)
	if err := os.Rename(produced, path); err != nil {
		return fmt.Errorf("move dump into place: %w", err)
	}
	return nil
}
