package amf

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus collector the reactor publishes. Grounded
// on the pack's own metrics package shape (a package-level Registry plus
// CounterVec/GaugeVec collectors registered in init), adapted from HTTP/RPC
// labels to the FSM transitions this reactor actually drives: component
// restarts, SU restart/failover escalation, node failover, and recovery
// sequences (§4.3, §4.4.3, §4.6).
var Registry = prometheus.NewRegistry()

var (
	compRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amf",
			Subsystem: "component",
			Name:      "restarts_total",
			Help:      "Total component restarts driven by the SU restart ladder.",
		},
		[]string{"component"},
	)

	suRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amf",
			Subsystem: "su",
			Name:      "restarts_total",
			Help:      "Total SU-level restarts driven by node.comp_restart_req.",
		},
		[]string{"su"},
	)

	suFailovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amf",
			Subsystem: "su",
			Name:      "failovers_total",
			Help:      "Total SU failovers dispatched to the ServiceGroup FSM.",
		},
		[]string{"su"},
	)

	nodeFailovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amf",
			Subsystem: "node",
			Name:      "failovers_total",
			Help:      "Total node-level failovers (every hosted SG failed over).",
		},
		[]string{"node"},
	)

	recoveriesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "amf",
			Subsystem: "servicegroup",
			Name:      "recovery_active",
			Help:      "Whether a ServiceGroup currently has a non-empty recovery scope (1 active, 0 idle).",
		},
		[]string{"servicegroup"},
	)
)

func init() {
	Registry.MustRegister(compRestarts, suRestarts, suFailovers, nodeFailovers, recoveriesActive)
}

// MetricsHandler returns an HTTP handler exposing the registered collectors,
// for cmd/amfnode to mount alongside its other listeners.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
