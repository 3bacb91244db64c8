// Package event delivers unsolicited worker events to interested consumers.
//
// The reader goroutine of a worker connection hands every event-kind message
// to Bus.Publish. Consumers subscribe with a dotted topic pattern matched
// against the event name:
//
//	sub, _ := bus.Subscribe("build.*")
//	defer sub.Cancel()
//	for msg := range sub.Events() {
//		...
//	}
//
// Each subscription owns a bounded queue. Publish never blocks: when a
// queue is full the subscription's overflow policy decides whether the
// oldest queued event (DropOldest, the default) or the incoming one
// (DropNewest) is discarded, and the loss is counted on the subscription and
// on the bus.
//
// The supervisor publishes its own events on the same bus:
//
//	supervisor.lifecycle    state transitions
//	worker.stderr           one line of worker stderr
package event
