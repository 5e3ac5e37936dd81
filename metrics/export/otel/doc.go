// Package otel reports kvauth metrics through an OpenTelemetry Meter.
//
// Each sign-in counter becomes an Int64ObservableCounter under its
// Prometheus name. The authenticate latency histogram becomes two gauges:
// "<name>_bucket" carrying one cumulative point per "le" attribute, and
// "<name>_count". Values are read from [kvauth.Services.MetricsSnapshot]
// when the reader collects.
//
// The exporter never owns the MeterProvider and never mutates service
// state.
package otel
