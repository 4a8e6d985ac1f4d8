package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWalletMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWalletMetrics(reg)

	m.IncOpsBuilt("sponsored")
	m.IncOpsBuilt("sponsored")
	m.IncOpsBuilt("none")
	m.IncOpsSubmitted()
	m.IncOpsFailed("signing")
	m.IncWalletsDeployed()

	assert.Equal(t, float64(2), promtestutil.ToFloat64(m.numOpsBuilt.WithLabelValues("sponsored")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.numOpsBuilt.WithLabelValues("none")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.numOpsSubmitted))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.numOpsFailed.WithLabelValues("signing")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.numWalletsDeployed))
}

func TestNoopMetricsSatisfiesInterface(t *testing.T) {
	var m PipelineMetrics = NoopMetrics{}
	m.IncOpsBuilt("none")
	m.IncOpsConfirmed()
}
