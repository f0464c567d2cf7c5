package store

import "time"

// SecurityLevel is the sandboxing level the engine was launched with.
type SecurityLevel string

const (
	SecurityTrusted  SecurityLevel = "trusted"
	SecuritySafe     SecurityLevel = "safe"
	SecurityIsolated SecurityLevel = "isolated"
)

// Visibility is the engine's advertised world visibility.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityHidden  Visibility = "hidden"
)

// RebootMode is the engine's behavior on its next world reboot.
type RebootMode string

const (
	RebootModeNormal   RebootMode = "normal"
	RebootModeRestart  RebootMode = "restart"
	RebootModeShutdown RebootMode = "shutdown"
)

// Record is the persisted handoff state for one engine session. It fully
// determines how to reconstruct a session controller that can resume interop
// with a still-live engine matching this PID/token pair.
type Record struct {
	Instance    string        `json:"instance"`
	AccessToken string        `json:"access_token"`
	Port        uint16        `json:"port"`
	Primary     bool          `json:"primary"`
	Security    SecurityLevel `json:"security"`
	Visibility  Visibility    `json:"visibility"`
	PID         int           `json:"pid"`
	StartUnix   int64         `json:"start_unix"` // process start time; guards against PID reuse
	RebootMode  RebootMode    `json:"reboot_mode"`
	ArtifactID  string        `json:"artifact_id"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
