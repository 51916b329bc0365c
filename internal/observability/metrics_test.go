package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/branchtrack/internal/observability"
	"github.com/Sumatoshi-tech/branchtrack/pkg/branch"
)

const (
	testCapacity = 16
	testSlots    = 3
	testVersions = 4
	testNodes    = 46
)

func newTestMeterProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

func setupTestMeter(t *testing.T) (*observability.REDMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	mp, reader := newTestMeterProvider()

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return red, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	found := findMetric(rm, name)
	require.NotNil(t, found, "%s metric not found", name)

	gauge, ok := found.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "%s is not an int64 gauge", name)
	require.Len(t, gauge.DataPoints, 1)

	return gauge.DataPoints[0].Value
}

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "mcp.branch_result", observability.StatusOK, 100*time.Microsecond)

	rm := collectMetrics(t, reader)

	require.NotNil(t, findMetric(rm, "branchtrack.requests.total"))
	require.NotNil(t, findMetric(rm, "branchtrack.request.duration.seconds"))
	assert.Nil(t, findMetric(rm, "branchtrack.errors.total"), "no error recorded yet")
}

func TestREDMetrics_RecordRequestError(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "mcp.branch_record", observability.StatusError, time.Millisecond)

	rm := collectMetrics(t, reader)

	require.NotNil(t, findMetric(rm, "branchtrack.errors.total"))
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)
	ctx := context.Background()

	done := red.TrackInflight(ctx, "mcp.branch_stats")

	inflight := findMetric(collectMetrics(t, reader), "branchtrack.inflight.requests")
	require.NotNil(t, inflight)

	sum, ok := inflight.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	done()

	sum, ok = findMetric(collectMetrics(t, reader), "branchtrack.inflight.requests").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestTrackerMetrics_ObservesStats(t *testing.T) {
	t.Parallel()

	mp, reader := newTestMeterProvider()

	stats := func() branch.Stats {
		return branch.Stats{
			Capacity: testCapacity,
			Slots:    testSlots,
			Versions: testVersions,
			Nodes:    testNodes,
		}
	}

	tm, err := observability.NewTrackerMetrics(mp.Meter("test"), stats)
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(testCapacity), gaugeValue(t, rm, "branchtrack.tracker.capacity"))
	assert.Equal(t, int64(testSlots), gaugeValue(t, rm, "branchtrack.tracker.slots"))
	assert.Equal(t, int64(testVersions), gaugeValue(t, rm, "branchtrack.tracker.versions"))
	assert.Equal(t, int64(testNodes), gaugeValue(t, rm, "branchtrack.tracker.nodes"))

	require.NoError(t, tm.Close())
}

func TestTrackerMetrics_LiveTracker(t *testing.T) {
	t.Parallel()

	mp, reader := newTestMeterProvider()

	tracker, err := branch.New[string, int](testCapacity, branch.Deps{})
	require.NoError(t, err)

	_, err = observability.NewTrackerMetrics(mp.Meter("test"), tracker.Stats)
	require.NoError(t, err)

	_, err = tracker.AddBranch("BOS", 1)
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(1), gaugeValue(t, rm, "branchtrack.tracker.slots"))
	assert.Equal(t, int64(2), gaugeValue(t, rm, "branchtrack.tracker.versions"))
}
