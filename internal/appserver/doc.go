// Package appserver provides lifecycle management for ephemeral application
// server processes used as load-test targets. It is structured into small
// files by concern:
//
//   - manager.go: ServerManager type, structural validation, start/stop, readiness wait.
//   - registry.go: process-scoped Registry keyed by (owner, host), orphan cleanup, shutdown hook.
//   - process.go: ProcessHandle wrapper around one spawned OS process.
//   - ports.go: TCP port probing, windowed scan, pid-derived worker offset.
//   - config.go: ManagerConfig and package defaults.
//   - errors.go: error types and predicates (IsPortExhausted, IsHealthCheckTimeout, ...).
//   - events.go: EventPublisher interface used for lifecycle events.
//   - metrics.go: prometheus counters for starts/stops/failures.
//
// External packages should treat this package as the lifecycle layer and use
// public methods only (e.g., New, Start, Stop, NewRegistry, GetOrCreate).
// Internal types are subject to change.
package appserver
