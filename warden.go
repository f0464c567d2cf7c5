// Package warden supervises the lifecycle of one long-running
// game-simulation engine process: a future-based process handle with hang
// detection, a bidirectional interop protocol, and persisted reattach
// records that let a fresh supervisor resume management of an engine that
// outlived the previous one.
package warden

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/detector"
	"github.com/loykin/warden/internal/interop"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/session"
	"github.com/loykin/warden/internal/store"
	"github.com/loykin/warden/internal/topic"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ReattachRecord = store.Record

type SecurityLevel = store.SecurityLevel

type Visibility = store.Visibility

type RebootMode = store.RebootMode

type Controller = session.Controller

type ControllerOptions = session.Options

type Artifact = session.Artifact

type Channel = interop.Channel

type Router = interop.Router

type Process = process.Process

type ProcessOptions = process.Options

type ProcessIdentity = detector.Identity

type Store = store.Store

type StoreConfig = store.Config

// NewChannel creates the interop dispatch table controllers register with.
func NewChannel() *Channel { return interop.NewChannel() }

// NewRouter builds an embeddable interop router for the given channel.
func NewRouter(ch *Channel, basePath string) *Router { return interop.NewRouter(ch, basePath) }

// NewInteropServer starts a standalone loopback HTTP server for worker
// queries.
func NewInteropServer(addr, basePath string, ch *Channel) (*http.Server, error) {
	return interop.NewServer(addr, basePath, ch)
}

// NewController wires a session controller over a live process handle.
func NewController(opts ControllerOptions) (*Controller, error) { return session.New(opts) }

// NewArtifact wraps a compiled-artifact descriptor for controller ownership.
func NewArtifact(id, path string, onClose func() error) *Artifact {
	return session.NewArtifact(id, path, onClose)
}

// NewTopicClient builds the outbound command transport.
func NewTopicClient(log *slog.Logger) topic.Commander { return topic.NewClient(log) }

// NewAccessToken mints an unguessable interop access identifier.
func NewAccessToken() string { return session.NewAccessToken() }

// Launch spawns a new engine process.
func Launch(name string, args []string, opts ProcessOptions) (*Process, error) {
	return process.Launch(name, args, opts)
}

// Attach wraps an already-running engine process by PID.
func Attach(pid int, opts ProcessOptions) (*Process, error) {
	return process.Attach(pid, opts)
}

// Reattach wraps the engine process a reattach record describes, refusing a
// PID that was recycled since the record was written.
func Reattach(id ProcessIdentity, opts ProcessOptions) (*Process, error) {
	return process.Reattach(id, opts)
}

// OpenStore builds a reattach-record store from config.
func OpenStore(cfg StoreConfig) (Store, error) { return store.Open(cfg) }

// LoadConfig reads an instance config file.
func LoadConfig(path string) (*config.Config, error) { return config.Load(path) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler exposes the default Prometheus registry over HTTP.
func MetricsHandler() http.Handler { return metrics.Handler() }
