// Package workerhost is the worker side of the bridge.
//
// Serve speaks the framed protocol on a reader and writer pair, normally
// the worker's stdin and stdout. It announces readiness with a ready
// event, then answers ping, tools/list and tools/call requests
// concurrently until it receives shutdown or its input ends.
package workerhost
