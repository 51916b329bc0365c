package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/branchtrack/pkg/branch"
)

const (
	trackerMetricGroup = "tracker"

	metricTrackerVersions = "versions"
	metricTrackerSlots    = "slots"
	metricTrackerCapacity = "capacity"
	metricTrackerNodes    = "nodes"
)

// StatsFunc reports a tracker summary at collection time.
type StatsFunc func() branch.Stats

// TrackerMetrics exposes tracker size as OTel observable gauges.
// Values are read through StatsFunc on each collection cycle.
type TrackerMetrics struct {
	versions metric.Int64ObservableGauge
	slots    metric.Int64ObservableGauge
	capacity metric.Int64ObservableGauge
	nodes    metric.Int64ObservableGauge
	stats    StatsFunc
	reg      metric.Registration
}

// NewTrackerMetrics registers tracker gauges on the given meter.
func NewTrackerMetrics(mt metric.Meter, stats StatsFunc) (*TrackerMetrics, error) {
	set := newInstrumentSet(mt, trackerMetricGroup)

	tm := &TrackerMetrics{
		versions: set.gauge(metricTrackerVersions, "Number of tree versions created", "{version}"),
		slots:    set.gauge(metricTrackerSlots, "Number of branch slots allocated", "{slot}"),
		capacity: set.gauge(metricTrackerCapacity, "Maximum number of branch slots", "{slot}"),
		nodes:    set.gauge(metricTrackerNodes, "Number of tree nodes retained", "{node}"),
		stats:    stats,
	}

	err := set.err()
	if err != nil {
		return nil, err
	}

	reg, err := mt.RegisterCallback(tm.observe, tm.versions, tm.slots, tm.capacity, tm.nodes)
	if err != nil {
		return nil, fmt.Errorf("register tracker metrics callback: %w", err)
	}

	tm.reg = reg

	return tm, nil
}

// Close unregisters the collection callback.
func (tm *TrackerMetrics) Close() error {
	err := tm.reg.Unregister()
	if err != nil {
		return fmt.Errorf("unregister tracker metrics: %w", err)
	}

	return nil
}

func (tm *TrackerMetrics) observe(_ context.Context, obs metric.Observer) error {
	stats := tm.stats()

	obs.ObserveInt64(tm.versions, int64(stats.Versions))
	obs.ObserveInt64(tm.slots, int64(stats.Slots))
	obs.ObserveInt64(tm.capacity, int64(stats.Capacity))
	obs.ObserveInt64(tm.nodes, int64(stats.Nodes))

	return nil
}
