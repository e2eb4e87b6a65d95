package opentelemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/get-eventually/go-journal/opentelemetry"

// BackendAttribute names the journal storage backend being instrumented,
// e.g. "postgres" or "firestore". Set it with WithAttributes.
const BackendAttribute attribute.Key = "journal.backend"

type options struct {
	meterProvider   metric.MeterProvider
	tracerProvider  trace.TracerProvider
	attributes      []attribute.KeyValue
	streamIDMetrics bool
}

// Option configures the instrumentation of a store or a probe.
type Option func(*options)

// WithMeterProvider sets the metric.MeterProvider used by the instrumentation.
// The global one is used if unspecified.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = provider }
}

// WithTracerProvider sets the trace.TracerProvider used by the instrumentation.
// The global one is used if unspecified.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = provider }
}

// WithAttributes adds constant attributes to every span and metric
// recorded, such as BackendAttribute.
func WithAttributes(attributes ...attribute.KeyValue) Option {
	return func(o *options) { o.attributes = append(o.attributes, attributes...) }
}

// WithStreamIDMetrics records the stream id as a metric attribute too.
//
// Spans always carry the stream id. On metrics it is left out by default:
// journals usually hold far too many streams for a metric dimension.
func WithStreamIDMetrics() Option {
	return func(o *options) { o.streamIDMetrics = true }
}

func newOptions(opts ...Option) options {
	o := options{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func (o options) meter() metric.Meter   { return o.meterProvider.Meter(instrumentationName) }
func (o options) tracer() trace.Tracer { return o.tracerProvider.Tracer(instrumentationName) }

// metricAttributes returns the attributes of a metric data point
// recorded for the stream.
func (o options) metricAttributes(streamID string, err error) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, 0, len(o.attributes)+2)
	attributes = append(attributes, o.attributes...)
	attributes = append(attributes, ErrorAttribute.Bool(err != nil))

	if o.streamIDMetrics {
		attributes = append(attributes, StreamIDAttribute.String(streamID))
	}

	return attributes
}

// spanAttributes returns the attributes of a span started for the stream.
func (o options) spanAttributes(streamID string, extra ...attribute.KeyValue) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, 0, len(o.attributes)+1+len(extra))
	attributes = append(attributes, o.attributes...)
	attributes = append(attributes, StreamIDAttribute.String(streamID))

	return append(attributes, extra...)
}
