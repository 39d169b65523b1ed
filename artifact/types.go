// Package artifact implements the Artifact Pipeline (C3): resumable
// download, decryption, archive extraction, and digest verification of a
// task's model artifacts (spec §4.3).
package artifact

import "path/filepath"

// Layout names the well-known artifact files (spec §4.3 "Extraction"). The
// extractor itself filters on whitelist below, which holds these names plus
// network.ezkl, kzg.srs and proof-witness.json.
var Layout = struct {
	ModelFile   string
	ProvingKey  string
	Settings    string
	Input       string
	Config      string
}{
	ModelFile:  "model.onnx",
	ProvingKey: "pk.key",
	Settings:   "settings.json",
	Input:      "input.json",
	Config:     "config.pbtxt",
}

// whitelist maps an archive entry's base name to its destination-relative
// path under the task directory. Entries whose base name is not a key here
// are skipped.
var whitelist = map[string]string{
	"model.onnx":         filepath.Join("model", "1", "model.onnx"),
	"config.pbtxt":       filepath.Join("model", "config.pbtxt"),
	"network.ezkl":       "network.ezkl",
	"settings.json":      "settings.json",
	"pk.key":             "pk.key",
	"kzg.srs":            "kzg.srs",
	"input.json":         "input.json",
	"proof-witness.json": "proof-witness.json",
}

// Descriptor carries the task fields the pipeline needs (spec §3,
// "Current task"): where to fetch from, how to decrypt, and where to
// land the result.
type Descriptor struct {
	TaskID          uint64
	StorageLocator  string
	DecryptionHint  []byte // counterparty X25519 public key, 32 bytes, when set
	TaskDir         string
}

// CounterpartyPublicKey decodes DecryptionHint into the 32-byte form
// SharedSecret expects; ok is false when no decryption is required for
// this task (empty hint).
func (d Descriptor) CounterpartyPublicKey() (pub [32]byte, ok bool) {
	if len(d.DecryptionHint) != 32 {
		return pub, false
	}
	copy(pub[:], d.DecryptionHint)
	return pub, true
}
