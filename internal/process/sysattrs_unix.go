//go:build !windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree sends SIGKILL. Children we spawned get their whole process group
// signalled; reattached processes are not ours to group-kill.
func killTree(pid int, child bool) {
	if child {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		return
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}

func raisePriority(pid int) error {
	return syscall.Setpriority(syscall.PRIO_PROCESS, pid, -10)
}

// inputIdle reports whether the process is sleeping on input, read from
// /proc/<pid>/stat. Any read/parse failure is an error the caller swallows.
func inputIdle(pid int) (bool, error) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false, err
	}
	line := string(b)
	end := strings.LastIndex(line, ") ")
	if end == -1 {
		return false, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(line[end+2:])
	if len(fields) == 0 {
		return false, fmt.Errorf("malformed stat for pid %d", pid)
	}
	return fields[0] == "S", nil
}
