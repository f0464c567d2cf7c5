package detector

import "fmt"

// Identity pins a process to both its PID and its start time so that a
// reattach record is never matched against an unrelated process that happens
// to have been assigned a recycled PID.
type Identity struct {
	PID       int   `json:"pid"`
	StartUnix int64 `json:"start_unix"`
}

// Capture snapshots the identity of a live process. StartUnix is zero when
// the platform cannot report it; Alive then degrades to a plain PID probe.
func Capture(pid int) Identity {
	return Identity{PID: pid, StartUnix: StartUnix(pid)}
}

// Alive reports whether the identified process is still the one we captured.
func (id Identity) Alive() bool {
	if id.PID <= 0 {
		return false
	}
	if id.StartUnix > 0 {
		cur := StartUnix(id.PID)
		if cur > 0 && cur != id.StartUnix {
			return false // PID reused; not our process
		}
	}
	return pidAlive(id.PID)
}

// Describe returns a human-readable description of the detection method.
func (id Identity) Describe() string { return fmt.Sprintf("pid:%d", id.PID) }

// Alive reports whether any process with the given PID exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return pidAlive(pid)
}
