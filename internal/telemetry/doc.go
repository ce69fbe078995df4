// Package telemetry wires the OpenTelemetry SDK: OTLP gRPC export for
// traces and metrics, global provider registration and W3C context
// propagation. When telemetry is disabled the providers stay noop and
// nothing connects anywhere.
package telemetry
