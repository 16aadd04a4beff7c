// Package observe provides telemetry for the search cache: a structured JSON
// logger with credential redaction, and OpenTelemetry tracer/meter bootstrap
// with pluggable exporters.
package observe
