package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// metricNamespace prefixes every instrument branchtrack registers.
const metricNamespace = "branchtrack"

// instrumentSet creates the instruments of one metric group under a shared
// name prefix and collects every creation error, so a constructor checks a
// single error after building the whole group.
type instrumentSet struct {
	meter  metric.Meter
	prefix string
	errs   []error
}

// newInstrumentSet starts a group. An empty group registers directly under
// the namespace; "tracker" yields names like branchtrack.tracker.slots.
func newInstrumentSet(mt metric.Meter, group string) *instrumentSet {
	prefix := metricNamespace + "."
	if group != "" {
		prefix += group + "."
	}

	return &instrumentSet{meter: mt, prefix: prefix}
}

func (s *instrumentSet) name(suffix string) string {
	return s.prefix + suffix
}

func (s *instrumentSet) counter(suffix, desc, unit string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(s.name(suffix), metric.WithDescription(desc), metric.WithUnit(unit))
	s.check(suffix, err)

	return c
}

// seconds creates a duration histogram recorded in seconds.
func (s *instrumentSet) seconds(suffix, desc string, bounds []float64) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(s.name(suffix),
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	s.check(suffix, err)

	return h
}

func (s *instrumentSet) inflight(suffix, desc, unit string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(s.name(suffix), metric.WithDescription(desc), metric.WithUnit(unit))
	s.check(suffix, err)

	return c
}

func (s *instrumentSet) gauge(suffix, desc, unit string) metric.Int64ObservableGauge {
	g, err := s.meter.Int64ObservableGauge(s.name(suffix), metric.WithDescription(desc), metric.WithUnit(unit))
	s.check(suffix, err)

	return g
}

func (s *instrumentSet) check(suffix string, err error) {
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("create %s: %w", s.name(suffix), err))
	}
}

// err returns all creation errors joined, or nil.
func (s *instrumentSet) err() error {
	return errors.Join(s.errs...)
}
