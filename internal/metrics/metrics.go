package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	interopRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "interop",
			Name:      "requests_total",
			Help:      "Worker-originated interop queries by command and HTTP status.",
		}, []string{"command", "status"},
	)
	topicSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "topic",
			Name:      "sends_total",
			Help:      "Outbound topic commands by command and outcome.",
		}, []string{"command", "outcome"},
	)
	sessionLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "session",
			Name:      "launches_total",
			Help:      "Session startups by mode (fresh or reattach).",
		}, []string{"instance", "mode"},
	)
	worldReboots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "session",
			Name:      "reboots_total",
			Help:      "World reboot notifications received from the engine.",
		}, []string{"instance"},
	)
	portReassignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "session",
			Name:      "port_reassignments_total",
			Help:      "Committed game-world port changes.",
		}, []string{"instance"},
	)
	terminationHangs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "termination_hangs_total",
			Help:      "Terminations that exceeded the kill ceiling and abandoned the handle.",
		}, []string{"instance"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		interopRequests, topicSends, sessionLaunches,
		worldReboots, portReassignments, terminationHangs,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler exposes the default registry over HTTP.
func Handler() http.Handler { return promhttp.Handler() }

func IncInterop(command, status string) {
	interopRequests.WithLabelValues(command, status).Inc()
}

func IncTopicSend(command, outcome string) {
	topicSends.WithLabelValues(command, outcome).Inc()
}

func IncLaunch(instance, mode string) {
	sessionLaunches.WithLabelValues(instance, mode).Inc()
}

func IncReboot(instance string) {
	worldReboots.WithLabelValues(instance).Inc()
}

func IncPortReassignment(instance string) {
	portReassignments.WithLabelValues(instance).Inc()
}

func IncTerminationHang(instance string) {
	terminationHangs.WithLabelValues(instance).Inc()
}
