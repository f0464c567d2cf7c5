//go:build windows

package detector

import gopsproc "github.com/shirou/gopsutil/v4/process"

func pidAlive(pid int) bool {
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}
