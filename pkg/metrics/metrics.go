package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlock_events_total",
			Help: "Total number of events appended to the ledger by action",
		},
		[]string{"action"},
	)

	SaveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inlock_ledger_save_failures_total",
			Help: "Total number of failed ledger snapshot saves",
		},
	)

	IntegrityRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inlock_ledger_integrity_repairs_total",
			Help: "Total number of tip-set repairs performed by the integrity check",
		},
	)

	// Orchestrator metrics
	QuorumOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlock_quorum_operations_total",
			Help: "Total number of quorum operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ActiveReplicas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inlock_active_replicas",
			Help: "Number of replicas that answered the most recent health probe",
		},
	)

	ReplicationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlock_replications_total",
			Help: "Total number of self-healing asset replications by outcome",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlock_api_requests_total",
			Help: "Total number of API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(SaveFailuresTotal)
	prometheus.MustRegister(IntegrityRepairsTotal)
	prometheus.MustRegister(QuorumOpsTotal)
	prometheus.MustRegister(ActiveReplicas)
	prometheus.MustRegister(ReplicationsTotal)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
