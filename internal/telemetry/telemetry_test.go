package telemetry

import (
	"testing"

	"github.com/cellmesh/parallelmgr/internal/pmconfig"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerSelectsProfileByMode(t *testing.T) {
	devLogger, err := NewLogger(pmconfig.ModeDevelopment)
	require.NoError(t, err)
	require.NotNil(t, devLogger)
	defer devLogger.Sync()

	prodLogger, err := NewLogger(pmconfig.ModeProduction)
	require.NoError(t, err)
	require.NotNil(t, prodLogger)
	defer prodLogger.Sync()
}

func gaugeValue(t *testing.T, g *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.WithLabelValues(labels...).Write(&m))
	return m.GetGauge().GetValue()
}

func TestMetricsRecordParticleAndCellCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetParticleCounts("fluid", 10, 3)
	m.SetCellCounts("fluid", 25, 4)
	m.AddExchangeRows("fluid", "export", 2)
	m.AddExchangeRows("fluid", "export", 1)
	m.ObservePhaseDuration("fluid", "partition", 0.01)

	require.Equal(t, 10.0, gaugeValue(t, m.localParticles, "fluid"))
	require.Equal(t, 3.0, gaugeValue(t, m.remoteParticles, "fluid"))
	require.Equal(t, 25.0, gaugeValue(t, m.cellsTotal, "fluid"))
	require.Equal(t, 4.0, gaugeValue(t, m.boundaryCells, "fluid"))

	var counter dto.Metric
	require.NoError(t, m.exchangeRowsMove.WithLabelValues("fluid", "export").Write(&counter))
	require.Equal(t, 3.0, counter.GetCounter().GetValue())
}

func TestAddExchangeRowsIgnoresNonPositive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddExchangeRows("fluid", "import", 0)
	m.AddExchangeRows("fluid", "import", -5)

	var counter dto.Metric
	require.NoError(t, m.exchangeRowsMove.WithLabelValues("fluid", "import").Write(&counter))
	require.Equal(t, 0.0, counter.GetCounter().GetValue())
}
