package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

// VerifyDigest computes the SHA-256 of modelPath and writes it as a hex
// sidecar file at modelPath+".sha256" (spec §4.3 "Verification"). If
// expectedHex is non-empty the computed digest is also compared against
// it, returning an error on mismatch so the caller can reject a task
// before accepting it.
func VerifyDigest(modelPath, expectedHex string) (digestHex string, err error) {
	f, err := os.Open(modelPath)
	if err != nil {
		return "", errors.Wrap(err, "open model file")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "hash model file")
	}
	digestHex = hex.EncodeToString(h.Sum(nil))

	if err := os.WriteFile(modelPath+".sha256", []byte(digestHex), 0644); err != nil {
		return digestHex, errors.Wrap(err, "write digest sidecar")
	}

	if expectedHex != "" && expectedHex != digestHex {
		return digestHex, errors.Errorf("digest mismatch: got %s want %s", digestHex, expectedHex)
	}
	return digestHex, nil
}
