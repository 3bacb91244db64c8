// Package worker supervises the external build worker process.
//
// The Supervisor spawns the worker with its stdin and stdout wired to a
// transport.Channel and its stderr captured line by line. A dedicated
// reader goroutine per instance decodes frames and hands responses to the
// router and events to the bus. Start returns once the worker has sent its
// ready event.
//
// State machine:
//
//	Stopped -> Starting -> Running -> Stopping -> Stopped
//	                          |
//	                          v
//	                       Crashed -> Starting   (restart within budget)
//	                          |
//	                          v
//	                       Stopped               (budget exhausted)
//
// Any fatal transport condition kills the process, so process exit is the
// single crash signal. On a crash every pending call fails with a
// protocol.WorkerLostError and, while fewer than MaxRestarts restarts
// happened within RestartWindow, the worker is relaunched after an
// exponential backoff. Otherwise the supervisor stops and calls fail with
// protocol.ErrSupervisorFailed until the next explicit Start.
//
// Every transition is published as a supervisor.lifecycle event.
package worker
