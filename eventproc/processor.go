// Package eventproc implements the Event Processor (C6): decodes per-block
// events, dispatches lifecycle transitions, and maintains current-task
// state (spec §4.6).
package eventproc

import (
	"context"
	"os"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/pkg/errors"

	"github.com/synapsenet/miner/artifact"
	"github.com/synapsenet/miner/chain"
	"github.com/synapsenet/miner/engine"
	"github.com/synapsenet/miner/internal/blockingpool"
	"github.com/synapsenet/miner/internal/identity"
	"github.com/synapsenet/miner/internal/minerlog"
	"github.com/synapsenet/miner/internal/state"
	"github.com/synapsenet/miner/supervisor"
	"github.com/synapsenet/miner/txqueue"
)

// Acceptable-error variant name tables, colocated with the call site that
// produces each (spec §9 implementer note).
var (
	acceptConfirmReception = txqueue.NewAcceptableSet("TaskReceptionAlreadyConfirmed")
	acceptVacation         = txqueue.NewAcceptableSet("InvalidTaskState")
	acceptProof            = txqueue.NewAcceptableSet("ProofAlreadySubmitted")
)

// Processor owns current-task transitions for one identity. It is the
// single consumer of the finalized-block stream, so current-task needs no
// lock by construction (spec §5 "Shared-resource policy").
type Processor struct {
	state   *state.State
	queue   *txqueue.Queue
	gateway *chain.Gateway
	sup     *supervisor.Supervisor
	dedup   *Dedup
	telemetry *Telemetry
	pool    *blockingpool.Pool

	ourAccount chain.AccountID
	ourWorker  uint64
	keyring    signature.KeyringPair

	log minerlog.Logger
}

// New builds a Processor bound to this miner's own (account, worker id).
// accountSeed is the same operator-supplied seed used to derive the local
// keypair (spec §3 "Miner identity"); SubmitThenWatch needs it in the
// substrate URI/KeyringPair shape to sign extrinsics. pool bounds how many
// prepare-and-serve sequences can run concurrently, guarding against a
// burst of rapid task reassignments forking unbounded blocking-I/O
// goroutines.
func New(st *state.State, queue *txqueue.Queue, gateway *chain.Gateway, sup *supervisor.Supervisor, telemetry *Telemetry, pool *blockingpool.Pool, ourAccount chain.AccountID, ourWorker uint64, accountSeed string) (*Processor, error) {
	kr, err := signature.KeyringPairFromSecret(accountSeed, 42)
	if err != nil {
		return nil, errors.Wrap(err, "derive signing keyring")
	}
	return &Processor{
		state:      st,
		queue:      queue,
		gateway:    gateway,
		sup:        sup,
		dedup:      NewDedup(1024),
		telemetry:  telemetry,
		pool:       pool,
		ourAccount: ourAccount,
		ourWorker:  ourWorker,
		keyring:    kr,
		log:        minerlog.Module("eventproc"),
	}, nil
}

// HandleBlock dispatches every decoded event in block in order (spec §5
// "Per-task lifecycle events: processed in block order").
func (p *Processor) HandleBlock(ctx context.Context, block chain.Block) {
	for _, ev := range block.Events {
		p.handleEvent(ctx, block, ev)
	}
}

func (p *Processor) handleEvent(ctx context.Context, block chain.Block, ev chain.DecodedEvent) {
	switch ev.Kind {
	case chain.EventDecodeError:
		p.log.Error("event decode error", "err", ev.Err)
	case chain.EventUnmatched:
		// Silent skip, per spec §4.1.
	case chain.EventWorkerRegistered, chain.EventWorkerRemoved, chain.EventWorkerStatusUpdated:
		p.log.Info("worker lifecycle event", "kind", ev.Kind, "value", ev.Value)
	case chain.EventTaskScheduled:
		p.handleTaskScheduled(ctx, block, ev.Value.(chain.TaskScheduled))
	case chain.EventTaskStopRequested:
		p.handleTaskStopRequested(ctx, block, ev.Value.(chain.TaskStopRequested))
	case chain.EventNzkProofRequested:
		p.handleNzkProofRequested(ctx, block, ev.Value.(chain.NzkProofRequested))
	}
}

func (p *Processor) handleTaskScheduled(ctx context.Context, block chain.Block, ev chain.TaskScheduled) {
	if ev.Assigned != p.ourAccount || ev.AssignedWorker != p.ourWorker {
		return
	}
	if p.dedup.SeenAndMark(chain.EventTaskScheduled, ev.TaskID, block.Hash) {
		return
	}

	p.log.Info("task scheduled for us", "task_id", ev.TaskID)

	// Open question (spec §9): current_task is committed here, before
	// confirm_task_reception succeeds, matching the source's actual
	// (riskier) ordering rather than the safer reorder. A crash between
	// this line and a successful confirmation leaves a locally-claimed
	// task with no on-chain confirmation, requiring operator attention on
	// restart.
	p.state.SetCurrentTask(taskKey(ev.TaskID))

	if err := identity.SaveTaskOwner(p.state.Paths.TaskOwnerFilePath, identity.AccountID(ev.Owner)); err != nil {
		p.log.Error("failed to persist task-owner file", "task_id", ev.TaskID, "err", err)
	}

	p.queue.Enqueue(ctx, acceptConfirmReception.Wrap(func(ctx context.Context) (chain.Outcome, error) {
		if _, err := p.gateway.SubmitThenWatch("Marketplace", "confirm_task_reception", p.keyring, ev.TaskID); err != nil {
			return chain.Outcome{}, err
		}
		return chain.Outcome{Kind: chain.OutcomeSuccess}, nil
	}))

	p.telemetry.Emit(TransitionRecord{EventKind: "TaskScheduled", TaskID: ev.TaskID, NewState: "Preparing"})

	if err := p.pool.Submit(func() { p.prepareAndServe(ctx, ev) }); err != nil {
		p.log.Error("failed to schedule artifact preparation", "task_id", ev.TaskID, "err", err)
	}
}

// prepareAndServe runs the download+extract+spawn sequence in the
// background (spec §4.6: "fire-and-forget but log on error; a download
// failure does not roll back the current-task state").
func (p *Processor) prepareAndServe(ctx context.Context, ev chain.TaskScheduled) {
	desc := artifact.Descriptor{
		TaskID:         ev.TaskID,
		StorageLocator: string(ev.StorageLocator),
		DecryptionHint: ev.DecryptionHint,
		TaskDir:        p.state.Paths.TaskDirPath,
	}

	if err := artifact.Prepare(ctx, desc, p.state.Keypair, nil); err != nil {
		p.log.Error("artifact pipeline failed; awaiting chain-driven resolution", "task_id", ev.TaskID, "err", err)
		return
	}

	eng, modelName, err := p.buildEngine(desc, ev.Kind)
	if err != nil {
		p.log.Error("failed to build engine for task", "task_id", ev.TaskID, "err", err)
		return
	}

	p.sup.Spawn(ctx, ev.TaskID, eng, modelName)
	p.telemetry.Emit(TransitionRecord{EventKind: "TaskScheduled", TaskID: ev.TaskID, NewState: "Serving"})
}

func (p *Processor) buildEngine(desc artifact.Descriptor, kind chain.TaskKind) (engine.Engine, string, error) {
	switch kind {
	case chain.TaskKindNeuroZK:
		return engine.NewZKEngine(desc), "ezkl", nil
	case chain.TaskKindOpenInferenceOnnx, chain.TaskKindOpenInferenceHuggingface:
		return engine.NewTensorServerEngine("http://127.0.0.1:8001", "model"), "model", nil
	case chain.TaskKindFlashInferHuggingface:
		eng, err := engine.NewHostedLLMEngine("synapsenet/flashinfer:latest", "model", "8080")
		return eng, "model", err
	default:
		return nil, "", errors.Errorf("unsupported task kind: %v", kind)
	}
}

func (p *Processor) handleTaskStopRequested(ctx context.Context, block chain.Block, ev chain.TaskStopRequested) {
	if taskKey(ev.TaskID) != p.state.CurrentTask() {
		return
	}
	if p.dedup.SeenAndMark(chain.EventTaskStopRequested, ev.TaskID, block.Hash) {
		return
	}

	p.log.Info("task stop requested", "task_id", ev.TaskID)

	if err := p.sup.Shutdown(ctx, p.state.Paths.TaskDirPath); err != nil {
		p.log.Error("supervisor shutdown failed", "task_id", ev.TaskID, "err", err)
	}
	if err := eraseTaskDir(p.state.Paths.TaskDirPath); err != nil {
		p.log.Error("failed to erase task directory", "task_id", ev.TaskID, "err", err)
	}

	p.queue.Enqueue(ctx, acceptVacation.Wrap(func(ctx context.Context) (chain.Outcome, error) {
		if _, err := p.gateway.SubmitThenWatch("Marketplace", "confirm_miner_vacation", p.keyring, ev.TaskID); err != nil {
			return chain.Outcome{}, err
		}
		return chain.Outcome{Kind: chain.OutcomeSuccess}, nil
	}))

	_ = identity.RemoveTaskOwner(p.state.Paths.TaskOwnerFilePath)
	p.state.SetCurrentTask("")
	p.telemetry.Emit(TransitionRecord{EventKind: "TaskStopRequested", TaskID: ev.TaskID, NewState: "Idle"})
}

func (p *Processor) handleNzkProofRequested(ctx context.Context, block chain.Block, ev chain.NzkProofRequested) {
	if taskKey(ev.TaskID) != p.state.CurrentTask() {
		return
	}
	if p.dedup.SeenAndMark(chain.EventNzkProofRequested, ev.TaskID, block.Hash) {
		return
	}

	zkEng, _, ok := p.sup.ActiveEngine()
	if !ok {
		p.log.Warn("proof requested but no active engine", "task_id", ev.TaskID)
		return
	}
	zk, ok := zkEng.(*engine.ZKEngine)
	if !ok {
		p.log.Warn("proof requested for a non-ZK task", "task_id", ev.TaskID)
		return
	}

	proof, err := zk.ProveInference(ctx, nil)
	if err != nil {
		p.log.Error("proof generation failed", "task_id", ev.TaskID, "err", err)
		return
	}

	p.queue.Enqueue(ctx, acceptProof.Wrap(func(ctx context.Context) (chain.Outcome, error) {
		if _, err := p.gateway.SubmitThenWatch("Marketplace", "submit_proof", p.keyring, ev.TaskID, []byte(proof)); err != nil {
			return chain.Outcome{}, err
		}
		return chain.Outcome{Kind: chain.OutcomeSuccess}, nil
	}))

	p.telemetry.Emit(TransitionRecord{EventKind: "NzkProofRequested", TaskID: ev.TaskID, NewState: "Serving"})
}

// eraseTaskDir clears a finished task's working directory so the next
// TaskScheduled starts from a clean slate (spec §4.6 "vacation").
func eraseTaskDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func taskKey(taskID uint64) string {
	return "task:" + itoa(taskID)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
