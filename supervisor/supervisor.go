package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/synapsenet/miner/engine"
	"github.com/synapsenet/miner/internal/minerlog"
)

// shutdownGrace is the time shutdown waits on the done channel before
// forcing an abort (spec §4.5 "Shutdown").
const shutdownGrace = 3 * time.Second

// running is the supervisor's private record of the active inference
// server (spec §3 "Running inference server"), owned exclusively by the
// supervisor singleton.
type running struct {
	taskID     uint64
	engine     engine.Engine
	modelName  string
	cancel     context.CancelFunc
	done       chan struct{}
	shutdownCh chan struct{}
}

// Supervisor holds the process-wide, at-most-one RunningInferenceServer
// slot behind a lock (spec §4.5).
type Supervisor struct {
	mu     sync.Mutex
	active *running
	status *StatusCell

	log minerlog.Logger
}

// New builds an idle Supervisor.
func New() *Supervisor {
	return &Supervisor{
		status: NewStatusCell(),
		log:    minerlog.Module("supervisor"),
	}
}

// Status exposes the watched status cell for the HTTP route handler.
func (s *Supervisor) Status() *StatusCell {
	return s.status
}

// Spawn runs the spawn sequence for task taskID using eng (spec §4.5
// steps 1-3; the listener bind and route registration are server.go's
// job, steps 4-5). Spawn does not check for or shut down a previously
// active task: it overwrites the `active` slot, and the lock only protects
// that field. The event processor calls Spawn from its background
// prepare-and-serve jobs on the blocking pool, not from its own
// block-handling goroutine.
func (s *Supervisor) Spawn(ctx context.Context, taskID uint64, eng engine.Engine, modelName string) {
	s.status.Set(StatusInitializing, "")

	runCtx, cancel := context.WithCancel(ctx)
	r := &running{
		taskID:     taskID,
		engine:     eng,
		modelName:  modelName,
		cancel:     cancel,
		done:       make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}

	s.mu.Lock()
	s.active = r
	s.mu.Unlock()

	go func() {
		if err := eng.Setup(runCtx); err != nil {
			s.log.Error("engine setup failed", "task_id", taskID, "err", err)
			s.status.Set(StatusFailed, err.Error())
			return
		}
		s.status.Set(StatusReady, "")
		s.log.Info("engine ready", "task_id", taskID)
	}()
}

// ActiveEngine returns the currently active engine and its shutdown
// channel for a connection handler to drive, or ok=false if no task is
// active.
func (s *Supervisor) ActiveEngine() (eng engine.Engine, shutdownCh <-chan struct{}, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, nil, false
	}
	return s.active.engine, s.active.shutdownCh, true
}

// MarkDone is called by a connection handler's Run loop when it returns,
// signaling the done channel Shutdown waits on.
func (s *Supervisor) MarkDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		select {
		case <-s.active.done:
		default:
			close(s.active.done)
		}
	}
}

// Shutdown tears down the active engine for taskDir: kill_engine, signal
// the shutdown watch, wait up to shutdownGrace on the done channel, then
// force-abort via context cancellation on timeout (spec §4.5
// "Shutdown"). After Shutdown returns, the supervisor cell is empty.
func (s *Supervisor) Shutdown(ctx context.Context, taskDir string) error {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()

	if r == nil {
		return nil
	}

	killErr := r.engine.KillEngine(ctx, taskDir)

	close(r.shutdownCh)

	select {
	case <-r.done:
	case <-time.After(shutdownGrace):
		s.log.Warn("shutdown grace period exceeded, forcing abort", "task_id", r.taskID)
		r.cancel()
	}

	s.mu.Lock()
	if s.active == r {
		s.active = nil
	}
	s.mu.Unlock()

	s.status.Set(StatusIdle, "")

	if killErr != nil {
		return errors.Wrap(killErr, "kill engine")
	}
	return nil
}
