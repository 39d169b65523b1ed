package artifact

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/synapsenet/miner/internal/identity"
)

const nonceSize = 12

// Decrypt reads the AES-256-GCM ciphertext at srcPath (with its 12-byte
// nonce trailing the ciphertext, per spec §4.3) and writes the plaintext
// to dstPath. The key is the raw 32-byte X25519 shared secret derived
// between kp and the counterparty public key carried in the task
// descriptor. An auth-tag failure is fatal for the task — the caller must
// not retry decryption with the same inputs.
func Decrypt(kp *identity.Keypair, counterpartyPub [32]byte, srcPath, dstPath string) error {
	shared, err := kp.SharedSecret(counterpartyPub)
	if err != nil {
		return errors.Wrap(err, "derive shared secret")
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return errors.Wrap(err, "read ciphertext")
	}
	if len(data) < nonceSize {
		return errors.New("ciphertext shorter than nonce")
	}

	ciphertext := data[:len(data)-nonceSize]
	nonce := data[len(data)-nonceSize:]

	block, err := aes.NewCipher(shared[:])
	if err != nil {
		return errors.Wrap(err, "build aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return errors.Wrap(err, "build gcm")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return errors.Wrap(err, "auth tag verification failed")
	}

	return writeAll(dstPath, plaintext)
}

// Encrypt is the inverse of Decrypt; present for the round-trip law in
// the test suite (spec §8 "Round-trip").
func Encrypt(key [32]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(ciphertext, nonce...), nil
}

func writeAll(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}
