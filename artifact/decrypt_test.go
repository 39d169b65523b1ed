package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsenet/miner/internal/identity"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	minerKp, err := identity.DeriveKeypair("miner-seed")
	require.NoError(t, err)
	taskKp, err := identity.DeriveKeypair("task-owner-seed")
	require.NoError(t, err)

	shared, err := minerKp.SharedSecret(taskKp.X25519Public)
	require.NoError(t, err)

	plaintext := []byte("model weights go here")
	ciphertext, err := Encrypt(shared, plaintext)
	require.NoError(t, err)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "archive.enc")
	require.NoError(t, os.WriteFile(srcPath, ciphertext, 0644))

	dstPath := filepath.Join(dir, "archive.dec")
	require.NoError(t, Decrypt(minerKp, taskKp.X25519Public, srcPath, dstPath))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	minerKp, err := identity.DeriveKeypair("miner-seed")
	require.NoError(t, err)
	taskKp, err := identity.DeriveKeypair("task-owner-seed")
	require.NoError(t, err)

	shared, err := minerKp.SharedSecret(taskKp.X25519Public)
	require.NoError(t, err)

	ciphertext, err := Encrypt(shared, []byte("model weights go here"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF // tamper with the ciphertext body

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "archive.enc")
	require.NoError(t, os.WriteFile(srcPath, ciphertext, 0644))

	err = Decrypt(minerKp, taskKp.X25519Public, srcPath, filepath.Join(dir, "archive.dec"))
	assert.Error(t, err)
}

func TestDecrypt_WrongCounterpartyKeyFails(t *testing.T) {
	minerKp, err := identity.DeriveKeypair("miner-seed")
	require.NoError(t, err)
	taskKp, err := identity.DeriveKeypair("task-owner-seed")
	require.NoError(t, err)
	wrongKp, err := identity.DeriveKeypair("someone-else-seed")
	require.NoError(t, err)

	shared, err := minerKp.SharedSecret(taskKp.X25519Public)
	require.NoError(t, err)

	ciphertext, err := Encrypt(shared, []byte("model weights go here"))
	require.NoError(t, err)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "archive.enc")
	require.NoError(t, os.WriteFile(srcPath, ciphertext, 0644))

	err = Decrypt(minerKp, wrongKp.X25519Public, srcPath, filepath.Join(dir, "archive.dec"))
	assert.Error(t, err)
}
