// Package supervisor implements the Inference Supervisor (C5): it spawns,
// tracks, and tears down the single currently-running engine, and serves
// the bidirectional inference endpoint (spec §4.5).
package supervisor

import (
	"sync"
	"sync/atomic"
)

// Status is the engine-status watched cell's state (spec §3, "Engine
// status"): Idle -> Initializing -> (Ready | Failed). Transitions are
// monotonic per engine instance once Ready is observed.
type Status int

const (
	StatusIdle Status = iota
	StatusInitializing
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusInitializing:
		return "Initializing"
	case StatusReady:
		return "Ready"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// statusPayload is what StatusCell actually stores; Failed carries a
// message.
type statusPayload struct {
	status Status
	msg    string
}

// StatusCell is a hand-rolled watched value: written by the supervisor
// (Spawn, its setup goroutine, and Shutdown), read by many connection
// handlers, broadcast-on-change via
// a closed channel (spec §9 "watched boolean plus a one-shot completion
// channel" idiom, generalized here from a boolean to the three-state
// enum). This mirrors the teacher's int32-atomic `mining`/`atWork` flags
// in work/worker.go, generalized to carry a failure message.
type StatusCell struct {
	mu      sync.Mutex
	payload atomic.Value // statusPayload
	watch   chan struct{}
}

// NewStatusCell creates a cell in the Idle state.
func NewStatusCell() *StatusCell {
	c := &StatusCell{watch: make(chan struct{})}
	c.payload.Store(statusPayload{status: StatusIdle})
	return c
}

// Get returns the current status and, if Failed, its message.
func (c *StatusCell) Get() (Status, string) {
	p := c.payload.Load().(statusPayload)
	return p.status, p.msg
}

// Set publishes a new status and broadcasts the change to any goroutine
// blocked in Watch.
func (c *StatusCell) Set(status Status, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.payload.Store(statusPayload{status: status, msg: msg})
	close(c.watch)
	c.watch = make(chan struct{})
}

// Watch returns a channel that closes the next time Set is called.
func (c *StatusCell) Watch() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watch
}
