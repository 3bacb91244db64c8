// Package topic provides dotted event names and wildcard patterns for the
// event bus.
//
// Event names use dot notation:
//
//	ready
//	build.progress
//	worker.stderr
//	supervisor.lifecycle
//
// Patterns may use two wildcards, each occupying a whole segment:
//
//   - "*" matches exactly one segment
//   - "**" matches zero or more segments
//
// Examples:
//
//	build.*        matches build.progress (not build.step.done)
//	supervisor.**  matches supervisor.lifecycle, supervisor
//	**             matches everything
package topic
