// Package tracing wraps OpenTelemetry so the orchestration components can
// open spans around spawn, dispatch attempts, batches and merge computation
// without importing the upstream packages directly. Until Init or
// InitWithExporter is called spans go to the global no-op provider.
package tracing
