// Package chain implements the Chain Gateway (C1): typed read/subscribe/
// submit access to the remote parachain, plus event decoding. It is the
// only package that imports the substrate RPC client directly — every
// other component talks to the chain only through this package's
// interfaces, matching the "no retries here; retry policy is the queue's
// job" boundary the spec draws around C1.
package chain

import (
	gsrpctypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// AccountID is this module's wire-compatible alias for a 32-byte substrate
// account identifier.
type AccountID = gsrpctypes.AccountID

// TaskKind mirrors the task_kind variants carried on a TaskScheduled event.
type TaskKind int

const (
	TaskKindUnknown TaskKind = iota
	TaskKindOpenInferenceOnnx
	TaskKindOpenInferenceHuggingface
	TaskKindNeuroZK
	TaskKindFlashInferHuggingface
)

// Outcome is the tagged result of a queued chain submission (spec §3,
// "Pending transaction").
type Outcome struct {
	Kind    OutcomeKind
	Account AccountID
	WorkerID uint64
	Message string
}

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRegistrationInfo
	OutcomeMessage
)

// Block is the minimal finalized-block shape the controller fans out to
// the event processor: a block hash plus its decoded events.
type Block struct {
	Hash   gsrpctypes.Hash
	Number uint64
	Events []DecodedEvent
}

// TaskScheduled is emitted when the marketplace assigns a task to a worker.
type TaskScheduled struct {
	TaskID          uint64
	Assigned        AccountID
	AssignedWorker  uint64
	Kind            TaskKind
	Owner           AccountID
	StorageLocator  []byte
	DecryptionHint  []byte
}

// TaskStopRequested is emitted when the marketplace revokes a task.
type TaskStopRequested struct {
	TaskID uint64
}

// NzkProofRequested is emitted when the marketplace asks for a fresh ZK
// proof of correct execution for the currently assigned task.
type NzkProofRequested struct {
	TaskID uint64
}

// WorkerRegistered / WorkerRemoved / WorkerStatusUpdated are logged only
// (spec §4.6 dispatch table); they carry just enough to be worth a log
// line.
type WorkerRegistered struct {
	Owner    AccountID
	WorkerID uint64
}

type WorkerRemoved struct {
	Owner    AccountID
	WorkerID uint64
}

type WorkerStatusUpdated struct {
	Owner    AccountID
	WorkerID uint64
	Status   string
}

// EventKind tags which concrete type a DecodedEvent carries, so dispatch
// can switch without a type assertion chain at every call site.
type EventKind int

const (
	EventUnmatched EventKind = iota
	EventDecodeError
	EventTaskScheduled
	EventTaskStopRequested
	EventNzkProofRequested
	EventWorkerRegistered
	EventWorkerRemoved
	EventWorkerStatusUpdated
)

// DecodedEvent is the trichotomy result the spec requires: matched,
// silently-skipped unmatched, or surfaced decode-error.
type DecodedEvent struct {
	Kind  EventKind
	Err   error
	Value interface{}
}
