package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/partition"
	"github.com/get-eventually/go-journal/scan"
)

// Attribute keys used by the instrumentation.
const (
	ErrorAttribute          attribute.Key = "error"
	StreamIDAttribute       attribute.Key = "journal.stream.id"
	PartitionIndexAttribute attribute.Key = "journal.partition.index"
	FromAttribute           attribute.Key = "journal.partition.from"
	ToAttribute             attribute.Key = "journal.partition.to"
	RecordsAttribute        attribute.Key = "journal.partition.records"
)

var (
	_ scan.Store      = &InstrumentedStore{}
	_ partition.Probe = &InstrumentedProbe{}
)

// InstrumentedStore is a wrapper type over a scan.Store instance
// to provide instrumentation, in the form of metrics and traces
// using OpenTelemetry.
//
// Use WrapStore for constructing a new instance of this type.
type InstrumentedStore struct {
	store   scan.Store
	options options

	tracer       trace.Tracer
	scanDuration metric.Int64Histogram
	scanRecords  metric.Int64Counter
}

func (is *InstrumentedStore) registerMetrics(meter metric.Meter) error {
	var err error

	if is.scanDuration, err = meter.Int64Histogram(
		"journal.store.scan.duration.milliseconds",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of scan.Store.ScanPartition operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedStore: failed to register metric, %w", err)
	}

	if is.scanRecords, err = meter.Int64Counter(
		"journal.store.scan.records",
		metric.WithUnit("{record}"),
		metric.WithDescription("Number of records read by scan.Store.ScanPartition operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedStore: failed to register metric, %w", err)
	}

	return nil
}

// WrapStore returns a wrapper type to provide OpenTelemetry
// instrumentation (metrics and traces) around a scan.Store.
//
// An error is returned if metrics could not be registered.
func WrapStore(store scan.Store, opts ...Option) (*InstrumentedStore, error) {
	o := newOptions(opts...)

	is := &InstrumentedStore{
		store:   store,
		options: o,
		tracer:  o.tracer(),
	}

	if err := is.registerMetrics(o.meter()); err != nil {
		return nil, err
	}

	return is, nil
}

// ScanPartition calls the wrapped scan.Store.ScanPartition method and records
// metrics and traces around it.
func (is *InstrumentedStore) ScanPartition(
	ctx context.Context,
	r journal.PartitionRange,
	stream journal.RecordStream,
) (err error) {
	spanAttributes := is.options.spanAttributes(r.StreamID,
		PartitionIndexAttribute.Int64(int64(r.PartitionIndex)), //nolint:gosec // Partition indexes are small.
		FromAttribute.Int64(int64(r.From)),                     //nolint:gosec // Sequence numbers fit.
		ToAttribute.Int64(int64(r.To)),                         //nolint:gosec // Sequence numbers fit.
	)

	ctx, span := is.tracer.Start(ctx, "scan.Store.ScanPartition", trace.WithAttributes(spanAttributes...))
	start := time.Now()

	var records int64

	defer func() {
		attributes := is.options.metricAttributes(r.StreamID, err)

		duration := time.Since(start)
		is.scanDuration.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attributes...))
		is.scanRecords.Add(ctx, records, metric.WithAttributes(attributes...))

		span.SetAttributes(RecordsAttribute.Int64(records))

		if err != nil {
			span.RecordError(err)
		}

		span.End()
	}()

	inner := make(chan journal.RawRecord, cap(stream))
	result := make(chan error, 1)

	go func() { result <- is.store.ScanPartition(ctx, r, inner) }()

	for record := range inner {
		stream <- record
		records++
	}

	close(stream)

	err = <-result

	return
}

// InstrumentedProbe is a wrapper type over a partition.Probe instance
// to provide instrumentation using OpenTelemetry.
//
// Use WrapProbe for constructing a new instance of this type.
type InstrumentedProbe struct {
	probe   partition.Probe
	options options

	tracer        trace.Tracer
	probeDuration metric.Int64Histogram
}

// WrapProbe returns a wrapper type to provide OpenTelemetry
// instrumentation (metrics and traces) around a partition.Probe.
//
// An error is returned if metrics could not be registered.
func WrapProbe(probe partition.Probe, opts ...Option) (*InstrumentedProbe, error) {
	o := newOptions(opts...)

	probeDuration, err := o.meter().Int64Histogram(
		"journal.probe.duration.milliseconds",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of partition.Probe.HighestSequenceNr operations performed."),
	)
	if err != nil {
		return nil, fmt.Errorf("opentelemetry.InstrumentedProbe: failed to register metric, %w", err)
	}

	return &InstrumentedProbe{
		probe:         probe,
		options:       o,
		tracer:        o.tracer(),
		probeDuration: probeDuration,
	}, nil
}

// HighestSequenceNr calls the wrapped partition.Probe.HighestSequenceNr method
// and records metrics and traces around it.
func (ip *InstrumentedProbe) HighestSequenceNr(ctx context.Context, streamID string) (highest uint64, err error) {
	ctx, span := ip.tracer.Start(ctx, "partition.Probe.HighestSequenceNr",
		trace.WithAttributes(ip.options.spanAttributes(streamID)...),
	)
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		ip.probeDuration.Record(ctx, duration.Milliseconds(),
			metric.WithAttributes(ip.options.metricAttributes(streamID, err)...),
		)

		if err != nil {
			span.RecordError(err)
		}

		span.End()
	}()

	highest, err = ip.probe.HighestSequenceNr(ctx, streamID)

	return
}
