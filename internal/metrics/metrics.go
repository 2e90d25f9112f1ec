package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus metrics for the payout pipeline. All
// record helpers tolerate a nil receiver so services can run without
// metrics wired, as they do in tests.
type Registry struct {
	reg *prometheus.Registry

	PayoutsProcessed   prometheus.Counter
	PayoutsHeld        prometheus.Counter
	TransferErrors     *prometheus.CounterVec
	ClaimConflicts     prometheus.Counter
	ReserveReleases    prometheus.Counter
	ReserveForfeitures *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	EligibleBacklog    prometheus.Gauge
}

func NewRegistry() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		PayoutsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payouts_processed_total",
			Help: "Payouts moved to completed by the processor.",
		}),
		PayoutsHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payouts_held_total",
			Help: "Payouts parked in held for admin review.",
		}),
		TransferErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_transfer_errors_total",
			Help: "Gateway transfer failures by kind.",
		}, []string{"kind"}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payout_claim_conflicts_total",
			Help: "Batch claims lost to a concurrent worker.",
		}),
		ReserveReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reserve_releases_total",
			Help: "Reserves released back to organizations.",
		}),
		ReserveForfeitures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reserve_forfeitures_total",
			Help: "Reserve forfeitures by kind.",
		}, []string{"kind"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payout_run_duration_seconds",
			Help:    "Duration of batch job runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		EligibleBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payout_eligible_backlog",
			Help: "Eligible payouts waiting for the processor.",
		}),
	}

	m.reg.MustRegister(
		m.PayoutsProcessed,
		m.PayoutsHeld,
		m.TransferErrors,
		m.ClaimConflicts,
		m.ReserveReleases,
		m.ReserveForfeitures,
		m.RunDuration,
		m.EligibleBacklog,
	)
	return m
}

func (m *Registry) IncProcessed() {
	if m == nil {
		return
	}
	m.PayoutsProcessed.Inc()
}

func (m *Registry) IncHeld() {
	if m == nil {
		return
	}
	m.PayoutsHeld.Inc()
}

func (m *Registry) IncTransferError(kind string) {
	if m == nil {
		return
	}
	m.TransferErrors.WithLabelValues(kind).Inc()
}

func (m *Registry) IncClaimConflict() {
	if m == nil {
		return
	}
	m.ClaimConflicts.Inc()
}

func (m *Registry) IncReserveRelease() {
	if m == nil {
		return
	}
	m.ReserveReleases.Inc()
}

func (m *Registry) IncReserveForfeiture(kind string) {
	if m == nil {
		return
	}
	m.ReserveForfeitures.WithLabelValues(kind).Inc()
}

func (m *Registry) ObserveRunDuration(job string, seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(job).Observe(seconds)
}

func (m *Registry) SetEligibleBacklog(n float64) {
	if m == nil {
		return
	}
	m.EligibleBacklog.Set(n)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	if m == nil || m.reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
