package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersPlacedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "woodchain_orders_placed_total",
			Help: "Orders committed to the local store",
		},
	)

	OrdersConfirmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "woodchain_orders_confirmed_total",
			Help: "Orders transitioned Pending -> Confirmed in the local store",
		},
	)

	// operation = place_order | update_status
	LedgerMirrorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woodchain_ledger_mirror_failures_total",
			Help: "Ledger mirror writes that failed after the local commit",
		},
		[]string{"operation"},
	)

	LedgerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "woodchain_ledger_call_duration_seconds",
			Help:    "Duration of ledger contract calls, receipt wait included",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"operation"},
	)

	DriftReportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "woodchain_ledger_drift_reports_total",
			Help: "Mismatches found between the local store and the ledger",
		},
	)

	// result = closed | drift | error
	ReconcileSweepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woodchain_reconcile_sweep_orders_total",
			Help: "Orders with open mirror failures visited by the periodic sweep",
		},
		[]string{"result"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// Register registers all collectors on the default registry. Call once per process.
func Register() {
	prometheus.MustRegister(OrdersPlacedTotal)
	prometheus.MustRegister(OrdersConfirmedTotal)
	prometheus.MustRegister(LedgerMirrorFailuresTotal)
	prometheus.MustRegister(LedgerCallDuration)
	prometheus.MustRegister(DriftReportsTotal)
	prometheus.MustRegister(ReconcileSweepTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}
