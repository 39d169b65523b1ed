// Package engine implements the four Engine Adapters (C4) behind one
// interface: a tensor-server HTTP client, an EZKL-style ZK prover, a
// hosted-LLM Docker container, and (per spec §4.4, omitted) a future
// ONNX-direct engine.
package engine

import "context"

// Request is one inbound command frame from the inference supervisor's
// connection handler.
type Request struct {
	Command string
	Payload []byte
}

// Responder writes one outbound frame back to the connected client.
type Responder func(payload []byte) error

// Engine is the uniform interface every concrete adapter implements
// (spec §4.4).
type Engine interface {
	// Setup is idempotent and may be slow (model load).
	Setup(ctx context.Context) error
	// Run serves requests from reqs until the channel closes or shutdown
	// fires, replying through respond.
	Run(ctx context.Context, reqs <-chan Request, respond Responder, shutdown <-chan struct{}) error
	// KillEngine releases resources and removes taskDir's engine-owned
	// state.
	KillEngine(ctx context.Context, taskDir string) error
}
