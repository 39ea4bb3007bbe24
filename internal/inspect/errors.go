package inspect

import "errors"

// Admission and Processing failures surface directly to the caller;
// availability and bot-transient faults are folded into the Worker
// Manager's retry loop before ever reaching here.
var (
	// ErrQueueFull is the Admission kind: the in-flight set is at capacity.
	ErrQueueFull = errors.New("queue full")

	// ErrQueueTimeout fires when the 5s admission-level deadline elapses
	// before the Worker Manager resolves the request.
	ErrQueueTimeout = errors.New("queue timed out waiting for inspect result")

	// ErrProcessing wraps a persistence or formatting fault after an
	// otherwise-successful inspect reply.
	ErrProcessing = errors.New("processing failed after successful inspect")
)
