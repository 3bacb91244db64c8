// Package protocol defines the messages exchanged between RetroIDE and its
// toolchain worker, and the error taxonomy shared by every layer of the
// bridge.
//
// # Messages
//
// Every frame on the wire carries one JSON-encoded Message:
//
//	{"id": 7, "kind": "request", "method": "tools/call", "params": {...}}
//	{"id": 7, "kind": "response", "result": {...}}
//	{"id": 7, "kind": "error", "error": {"code": -32601, "message": "..."}}
//	{"id": 0, "kind": "event", "method": "build.progress", "params": {...}}
//
// Requests carry a correlation id that is unique for the lifetime of a
// router. Responses and errors echo that id. Events are unsolicited and carry
// id 0; their method names the event.
//
// # Errors
//
// Callers only ever see a small set of outcomes, each matchable with
// errors.Is:
//
//   - ErrTimeout: no response within the caller's deadline
//   - ErrWorkerLost: the worker went away while the call was pending
//   - ErrSupervisorFailed: the restart budget is exhausted
//   - ErrProtocol: the worker sent something undecodable
//   - *ErrorObject: the worker reported an application error
//
// Classify maps an error to an Outcome so presentation code can decide
// whether to offer a retry.
package protocol
