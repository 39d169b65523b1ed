// Package state holds the process-wide singletons every component needs a
// handle to (spec §4.8, C8): the chain gateway, the transaction queue, the
// derived keypair, and the resolved filesystem paths. It plays the role the
// teacher's node.ServiceContext plays for its services — a small struct
// passed to constructors at boot rather than a set of package-level
// globals — but unlike ServiceContext it holds concrete handles directly
// since this process only ever runs one of each component, not an arbitrary
// registry of pluggable services.
package state

import (
	"path/filepath"
	"sync"

	"github.com/synapsenet/miner/internal/config"
	"github.com/synapsenet/miner/internal/identity"
)

// Paths resolves every on-disk location the miner reads or writes. Each
// path comes from its own configuration value; the journal directory is
// placed under StorageLocation (or ./miner-data when that is empty).
type Paths struct {
	TaskDirPath       string
	TaskFileName      string
	IdentityFilePath  string
	TaskOwnerFilePath string
	StorageLocation   string
	JournalDirPath    string
}

func (p Paths) TaskFilePath() string {
	return filepath.Join(p.TaskDirPath, p.TaskFileName)
}

// NewPaths resolves a Paths from loaded Config.
func NewPaths(cfg config.Config) Paths {
	journalDir := cfg.StorageLocation
	if journalDir == "" {
		journalDir = "./miner-data"
	}
	return Paths{
		TaskDirPath:       cfg.TaskDirPath,
		TaskFileName:      cfg.TaskFileName,
		IdentityFilePath:  cfg.IdentityFilePath,
		TaskOwnerFilePath: cfg.TaskOwnerFilePath,
		StorageLocation:   cfg.StorageLocation,
		JournalDirPath:    filepath.Join(journalDir, "journal"),
	}
}

// ChainHealth is the narrow view of the chain gateway that State holds,
// declared here so package state does not import package chain.
type ChainHealth interface {
	Health() error
}

// QueueHandle is the narrow interface State needs from the transaction
// queue, kept minimal for the same reason.
type QueueHandle interface {
	Len() int
}

// State is the process-wide handle passed to every component at boot.
type State struct {
	mu sync.RWMutex

	Paths    Paths
	Keypair  *identity.Keypair
	Identity *identity.Record

	Gateway ChainHealth
	Queue   QueueHandle

	currentTaskID string
}

// New builds a State with its static fields populated; the caller attaches
// Gateway and Queue once it has constructed them.
func New(paths Paths, kp *identity.Keypair, rec *identity.Record) *State {
	return &State{Paths: paths, Keypair: kp, Identity: rec}
}

// CurrentTask returns the task id the miner currently believes it owns, or
// "" if idle.
func (s *State) CurrentTask() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTaskID
}

// SetCurrentTask records task ownership. Passing "" clears it (vacation).
func (s *State) SetCurrentTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTaskID = taskID
}
