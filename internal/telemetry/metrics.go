package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for one Manager, following
// the teacher's LoadBalancerMetrics shape: a struct of CounterVec/
// HistogramVec/GaugeVec fields built once via promauto at construction time.
type Metrics struct {
	localParticles   *prometheus.GaugeVec
	remoteParticles  *prometheus.GaugeVec
	cellsTotal       *prometheus.GaugeVec
	boundaryCells    *prometheus.GaugeVec
	phaseDuration    *prometheus.HistogramVec
	exchangeRowsMove *prometheus.CounterVec
}

// NewMetrics registers the parallel manager's metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry across repeated Manager construction.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		localParticles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pm_local_particles",
				Help: "Number of Local-tagged particles held by this rank.",
			},
			[]string{"array"},
		),
		remoteParticles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pm_remote_particles",
				Help: "Number of Remote (halo) particles held by this rank.",
			},
			[]string{"array"},
		),
		cellsTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pm_cells_total",
				Help: "Number of occupied cells in this rank's cell map.",
			},
			[]string{"array"},
		),
		boundaryCells: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pm_boundary_cells",
				Help: "Number of cells overlapping another rank's partition box.",
			},
			[]string{"array"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pm_update_phase_duration_seconds",
				Help:    "Wall-clock duration of each Update phase.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"array", "phase"},
		),
		exchangeRowsMove: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_exchange_rows_total",
				Help: "Rows moved by the load-balance and halo exchange protocols.",
			},
			[]string{"array", "direction"},
		),
	}
}

// SetParticleCounts records the Local/Remote split for array after Update.
func (m *Metrics) SetParticleCounts(array string, local, remote int) {
	m.localParticles.WithLabelValues(array).Set(float64(local))
	m.remoteParticles.WithLabelValues(array).Set(float64(remote))
}

// SetCellCounts records the cell map's occupied and boundary cell totals.
func (m *Metrics) SetCellCounts(array string, total, boundary int) {
	m.cellsTotal.WithLabelValues(array).Set(float64(total))
	m.boundaryCells.WithLabelValues(array).Set(float64(boundary))
}

// ObservePhaseDuration records how long an Update phase took for array.
func (m *Metrics) ObservePhaseDuration(array, phase string, seconds float64) {
	m.phaseDuration.WithLabelValues(array, phase).Observe(seconds)
}

// AddExchangeRows accumulates rows moved in a given direction ("export" or
// "import") for array.
func (m *Metrics) AddExchangeRows(array, direction string, rows int) {
	if rows <= 0 {
		return
	}
	m.exchangeRowsMove.WithLabelValues(array, direction).Add(float64(rows))
}
