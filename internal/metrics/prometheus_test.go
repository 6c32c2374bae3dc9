package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCustomMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitCustomMetrics(reg)

	BridgeRequestsTotal.WithLabelValues("get-values", "ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(BridgeRequestsTotal.WithLabelValues("get-values", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "collab_bridge_requests_total")
}
