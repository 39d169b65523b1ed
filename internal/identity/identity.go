// Package identity owns the miner's on-chain identity, its persisted
// sidecar files, and the signing/decryption keypairs derived from the
// operator-supplied account seed.
package identity

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// AccountID is a 32-byte substrate account identifier (an sr25519/ed25519
// public key in its raw form).
type AccountID [32]byte

// WorkerID pairs with the owning account to uniquely identify this miner on
// chain (spec §3, "Miner identity").
type WorkerID = uint64

// Record is the in-memory form of the identity file (spec §6):
// { miner_owner: ss58-string, miner_identity: [account32, u64] }.
type Record struct {
	Owner   string
	Account AccountID
	Worker  WorkerID
}

// Load reads the identity file. A missing file is reported via os.IsNotExist
// so the controller can distinguish "no identity yet" from a real I/O fault.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		MinerOwner    string            `json:"miner_owner"`
		MinerIdentity [2]json.RawMessage `json:"miner_identity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode identity file")
	}

	var account AccountID
	if err := json.Unmarshal(raw.MinerIdentity[0], &account); err != nil {
		return nil, errors.Wrap(err, "decode identity account")
	}
	var worker WorkerID
	if err := json.Unmarshal(raw.MinerIdentity[1], &worker); err != nil {
		return nil, errors.Wrap(err, "decode identity worker id")
	}

	return &Record{Owner: raw.MinerOwner, Account: account, Worker: worker}, nil
}

// Save writes the identity file atomically (write-temp + rename) so a crash
// mid-write never leaves a half-written identity file for the next boot to
// misread.
func Save(path string, rec *Record) error {
	out := struct {
		MinerOwner    string      `json:"miner_owner"`
		MinerIdentity [2]interface{} `json:"miner_identity"`
	}{
		MinerOwner:    rec.Owner,
		MinerIdentity: [2]interface{}{rec.Account, rec.Worker},
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// TaskOwnerFile is the JSON shape of the task-owner sidecar file (spec §6):
// { address: account32 }.
type TaskOwnerFile struct {
	Address AccountID `json:"address"`
}

// SaveTaskOwner persists the current task's owning account.
func SaveTaskOwner(path string, owner AccountID) error {
	data, err := json.MarshalIndent(TaskOwnerFile{Address: owner}, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// RemoveTaskOwner deletes the sidecar file on vacation; a missing file is
// not an error since vacation may be invoked more than once defensively.
func RemoveTaskOwner(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
