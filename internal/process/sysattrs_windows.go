//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

func setSysProcAttr(_ *exec.Cmd) {}

func killTree(pid int, _ bool) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
}

func raisePriority(_ int) error {
	return errors.New("priority adjustment not supported on windows")
}

func inputIdle(_ int) (bool, error) {
	return false, errors.New("input-idle probing not supported on windows")
}
