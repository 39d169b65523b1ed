package identity

import (
	"crypto/ed25519"
	"crypto/sha256"

	"golang.org/x/crypto/curve25519"
)

// Keypair holds an ed25519 signing key and the Curve25519 key used for
// artifact decryption's X25519 Diffie-Hellman step (spec §4.3). Substrate
// extrinsics are not signed with this ed25519 key: the controller and event
// processor sign with a signature.KeyringPair built from the same seed.
// Both keys here are deterministically derived from the operator-supplied
// account seed so the miner's identity survives a restart without a keystore
// file; the two keys use domain-separated derivation so compromising one
// space never reveals the other.
type Keypair struct {
	Signing    ed25519.PrivateKey
	SigningPub ed25519.PublicKey

	X25519Private [32]byte
	X25519Public  [32]byte
}

// DeriveKeypair builds a Keypair from the --account-seed CLI value. This is
// not a cryptographically ideal KDF (a real deployment would use HKDF with a
// salt) but matches the source's "small and immutable, cloned by value"
// treatment of the keypair (spec §3 Ownership) — the derivation only needs
// to be deterministic and domain-separated, not resist a sophisticated
// multi-target attack on a single seed string.
func DeriveKeypair(seed string) (*Keypair, error) {
	signSeed := sha256.Sum256(append([]byte("synapsenet/signing/"), seed...))
	signing := ed25519.NewKeyFromSeed(signSeed[:])

	dhSeed := sha256.Sum256(append([]byte("synapsenet/x25519/"), seed...))
	var priv [32]byte
	copy(priv[:], dhSeed[:])
	clampScalar(&priv)

	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)

	return &Keypair{
		Signing:       signing,
		SigningPub:    signing.Public().(ed25519.PublicKey),
		X25519Private: priv,
		X25519Public:  pub,
	}, nil
}

// clampScalar applies the standard X25519 scalar clamping (RFC 7748 §5).
func clampScalar(s *[32]byte) {
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
}

// SharedSecret computes the raw 32-byte X25519 DH output with a
// counterparty's public key, as consumed by artifact.Decrypt's key
// derivation step.
func (k *Keypair) SharedSecret(counterpartyPub [32]byte) ([32]byte, error) {
	var out [32]byte
	shared, err := curve25519.X25519(k.X25519Private[:], counterpartyPub[:])
	if err != nil {
		return out, err
	}
	copy(out[:], shared)
	return out, nil
}
