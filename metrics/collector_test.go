package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/timewell/gptl/metrics"
	"github.com/timewell/gptl/pkg/gptl"
)

func TestCollectorExportsRegionStats(t *testing.T) {
	tm := gptl.New()
	require.NoError(t, tm.Initialize())
	t.Cleanup(func() { _ = tm.Finalize() })

	require.NoError(t, tm.Start(0, "work"))
	require.NoError(t, tm.Stop(0, "work"))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics.NewCollector(tm)))

	count, err := testutil.GatherAndCount(reg, "gptl_region_calls_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
