// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestCountersIncrement(t *testing.T) {
	before := counterValue(t, BroadcastChunksTotal)
	BroadcastChunksTotal.Inc()
	assert.Equal(t, before+1, counterValue(t, BroadcastChunksTotal))
}

func TestLabelledHelpers(t *testing.T) {
	before := counterValue(t, ProcWaitTotal.WithLabelValues("exit0"))
	IncProcWait("exit0")
	assert.Equal(t, before+1, counterValue(t, ProcWaitTotal.WithLabelValues("exit0")))

	before = counterValue(t, JobTransitionsTotal.WithLabelValues("completed"))
	RecordJobTransition("completed")
	assert.Equal(t, before+1, counterValue(t, JobTransitionsTotal.WithLabelValues("completed")))
}

func TestGaugeMoves(t *testing.T) {
	before := gaugeValue(t, JobsPending)
	JobsPending.Inc()
	JobsPending.Dec()
	assert.Equal(t, before, gaugeValue(t, JobsPending))
}
