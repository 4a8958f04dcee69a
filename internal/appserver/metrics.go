package appserver

import "github.com/prometheus/client_golang/prometheus"

var (
	serverStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "volttest",
			Subsystem: "appserver",
			Name:      "starts_total",
			Help:      "Total number of server processes started",
		},
	)

	serverStartFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "volttest",
			Subsystem: "appserver",
			Name:      "start_failures_total",
			Help:      "Total number of failed server starts",
		},
		[]string{"reason"},
	)

	serverStopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "volttest",
			Subsystem: "appserver",
			Name:      "stops_total",
			Help:      "Total number of server processes stopped",
		},
	)

	serverForcedKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "volttest",
			Subsystem: "appserver",
			Name:      "forced_kills_total",
			Help:      "Total number of stops escalated to SIGKILL",
		},
	)
)

func init() {
	prometheus.MustRegister(serverStartsTotal, serverStartFailuresTotal, serverStopsTotal, serverForcedKillsTotal)
}
