package chain

import (
	"fmt"

	gsrpctypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"
)

// eventSet is the decoded shape of the System.Events storage item for the
// subset of pallets this miner cares about. Fields it doesn't recognize
// are simply absent from the decoded slice (SCALE decoding is order- and
// shape-driven, not name-driven, so unknown event variants never reach
// this struct at all — they fall out at the raw EventRecords level).
//
// System_ExtrinsicFailed is declared explicitly (rather than relying on
// the embedded EventRecords to provide it) so the shape this package
// decodes against is visible and certain, not an assumption about the
// base type's field set.
type eventSet struct {
	gsrpctypes.EventRecords
	System_ExtrinsicFailed         []extrinsicFailedEvent     `decode:"true"`
	Marketplace_TaskScheduled       []taskScheduledEvent       `decode:"true"`
	Marketplace_TaskStopRequested   []taskStopRequestedEvent   `decode:"true"`
	Marketplace_NzkProofRequested   []nzkProofRequestedEvent   `decode:"true"`
	Marketplace_WorkerRegistered    []workerRegisteredEvent    `decode:"true"`
	Marketplace_WorkerRemoved       []workerRemovedEvent       `decode:"true"`
	Marketplace_WorkerStatusUpdated []workerStatusUpdatedEvent `decode:"true"`
}

// extrinsicFailedEvent is System.ExtrinsicFailed: the standard substrate
// signal that an extrinsic was included in a finalized block but its
// dispatch did not succeed. Inclusion is not success — a caller that only
// watches for finalization without decoding this event cannot tell the
// two apart.
type extrinsicFailedEvent struct {
	Phase         gsrpctypes.Phase
	DispatchError gsrpctypes.DispatchError
	Topics        []gsrpctypes.Hash
}

// dispatchError adapts a decoded module dispatch error into a value with
// a VariantName method, satisfying txqueue's DispatchError interface
// structurally so this package never needs to import txqueue. module and
// variant are resolved from chain metadata, matching the runtime's own
// naming rather than the raw numeric indices.
type dispatchError struct {
	module  string
	variant string
}

func (e *dispatchError) Error() string {
	return fmt.Sprintf("dispatch error: %s.%s", e.module, e.variant)
}

func (e *dispatchError) VariantName() string {
	return e.variant
}

// extrinsicFailedError decodes raw (a finalized block's System.Events)
// looking for a System.ExtrinsicFailed event. It returns nil when the
// block contains no such event — the common case, an included extrinsic
// that actually dispatched successfully. A decode failure here is not
// reported as an error in its own right: SubmitThenWatch still has a
// finalized block hash either way, and DecodeEvents is the path that
// surfaces malformed-blob diagnostics.
func (g *Gateway) extrinsicFailedError(raw gsrpctypes.EventRecordsRaw) error {
	var set eventSet
	if err := raw.DecodeEventRecords(g.meta, &set); err != nil {
		return nil
	}
	if len(set.System_ExtrinsicFailed) == 0 {
		return nil
	}

	de := set.System_ExtrinsicFailed[0].DispatchError
	if !de.IsModule {
		return &dispatchError{module: "unknown", variant: "Unknown"}
	}

	errMeta, err := g.meta.FindErrorMetadata(de.ModuleError.Index, de.ModuleError.Error[0])
	if err != nil {
		return &dispatchError{module: "unknown", variant: "Unknown"}
	}
	return &dispatchError{module: errMeta.ModuleName, variant: errMeta.Name}
}

type taskScheduledEvent struct {
	Phase          gsrpctypes.Phase
	TaskID         gsrpctypes.U64
	Assigned       gsrpctypes.AccountID
	AssignedWorker gsrpctypes.U64
	Kind           gsrpctypes.U8
	Owner          gsrpctypes.AccountID
	StorageLocator gsrpctypes.Bytes
	DecryptionHint gsrpctypes.Bytes
	Topics         []gsrpctypes.Hash
}

type taskStopRequestedEvent struct {
	Phase  gsrpctypes.Phase
	TaskID gsrpctypes.U64
	Topics []gsrpctypes.Hash
}

type nzkProofRequestedEvent struct {
	Phase  gsrpctypes.Phase
	TaskID gsrpctypes.U64
	Topics []gsrpctypes.Hash
}

type workerRegisteredEvent struct {
	Phase    gsrpctypes.Phase
	Owner    gsrpctypes.AccountID
	WorkerID gsrpctypes.U64
	Topics   []gsrpctypes.Hash
}

type workerRemovedEvent struct {
	Phase    gsrpctypes.Phase
	Owner    gsrpctypes.AccountID
	WorkerID gsrpctypes.U64
	Topics   []gsrpctypes.Hash
}

type workerStatusUpdatedEvent struct {
	Phase    gsrpctypes.Phase
	Owner    gsrpctypes.AccountID
	WorkerID gsrpctypes.U64
	Status   gsrpctypes.Bytes
	Topics   []gsrpctypes.Hash
}

func taskKindFromU8(u gsrpctypes.U8) TaskKind {
	switch uint8(u) {
	case 0:
		return TaskKindOpenInferenceOnnx
	case 1:
		return TaskKindOpenInferenceHuggingface
	case 2:
		return TaskKindNeuroZK
	case 3:
		return TaskKindFlashInferHuggingface
	default:
		return TaskKindUnknown
	}
}

// DecodeEvents decodes a raw System.Events blob into the trichotomy the
// spec requires: each recognized event becomes a matched DecodedEvent, a
// blob that fails to decode at all becomes a single decode-error
// DecodedEvent, and pallets/variants this miner doesn't recognize are
// silently absent (never surfaced as "unmatched" individually, since SCALE
// decoding can't partially succeed on a single storage item — the
// unmatched case in practice means "this decoded set had zero recognized
// events", returned as a single EventUnmatched DecodedEvent with no error).
func (g *Gateway) DecodeEvents(raw gsrpctypes.EventRecordsRaw) ([]DecodedEvent, error) {
	var set eventSet
	if err := raw.DecodeEventRecords(g.meta, &set); err != nil {
		return []DecodedEvent{{Kind: EventDecodeError, Err: errors.Wrap(err, "decode event records")}}, nil
	}

	var out []DecodedEvent
	for _, e := range set.Marketplace_TaskScheduled {
		out = append(out, DecodedEvent{Kind: EventTaskScheduled, Value: TaskScheduled{
			TaskID:         uint64(e.TaskID),
			Assigned:       e.Assigned,
			AssignedWorker: uint64(e.AssignedWorker),
			Kind:           taskKindFromU8(e.Kind),
			Owner:          e.Owner,
			StorageLocator: e.StorageLocator,
			DecryptionHint: e.DecryptionHint,
		}})
	}
	for _, e := range set.Marketplace_TaskStopRequested {
		out = append(out, DecodedEvent{Kind: EventTaskStopRequested, Value: TaskStopRequested{TaskID: uint64(e.TaskID)}})
	}
	for _, e := range set.Marketplace_NzkProofRequested {
		out = append(out, DecodedEvent{Kind: EventNzkProofRequested, Value: NzkProofRequested{TaskID: uint64(e.TaskID)}})
	}
	for _, e := range set.Marketplace_WorkerRegistered {
		out = append(out, DecodedEvent{Kind: EventWorkerRegistered, Value: WorkerRegistered{Owner: e.Owner, WorkerID: uint64(e.WorkerID)}})
	}
	for _, e := range set.Marketplace_WorkerRemoved {
		out = append(out, DecodedEvent{Kind: EventWorkerRemoved, Value: WorkerRemoved{Owner: e.Owner, WorkerID: uint64(e.WorkerID)}})
	}
	for _, e := range set.Marketplace_WorkerStatusUpdated {
		out = append(out, DecodedEvent{Kind: EventWorkerStatusUpdated, Value: WorkerStatusUpdated{
			Owner: e.Owner, WorkerID: uint64(e.WorkerID), Status: string(e.Status),
		}})
	}

	if len(out) == 0 {
		return []DecodedEvent{{Kind: EventUnmatched}}, nil
	}
	return out, nil
}
