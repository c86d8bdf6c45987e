// Package otel publishes phoneauth metrics through an OpenTelemetry
// [metric.Meter]: one observable counter per engine counter and one
// observable gauge per cumulative histogram bucket. The caller owns the
// MeterProvider.
package otel
