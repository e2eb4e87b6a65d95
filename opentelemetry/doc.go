// Package opentelemetry provides OpenTelemetry instrumentation, in the form
// of traces and metrics, around the journal storage interfaces.
package opentelemetry
