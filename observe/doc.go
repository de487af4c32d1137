// Package observe provides observability primitives for profile resolution.
//
// It is a pure instrumentation library: a JSON structured logger, OpenTelemetry
// metrics and tracing for signature resolutions and candidate benchmarks, and
// exporter setup. The profiler wires an Observer (or its parts) into a session.
package observe
