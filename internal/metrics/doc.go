// Package metrics defines the Prometheus instrumentation for the
// transcription service: session lifecycle, frame throughput, segment
// detection, engine calls, and HTTP API counters.
package metrics
