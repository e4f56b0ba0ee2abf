package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/ed25519"

	"github.com/slotchain/slotchain/common"
)

var (
	ErrInvalidSignature = errors.New("crypto: invalid signature")
	ErrInvalidProof      = errors.New("crypto: invalid proof")
)

// PrivateKey and PublicKey wrap golang.org/x/crypto/ed25519, the
// asymmetric primitive the teacher's go.mod already carries.
type PrivateKey = ed25519.PrivateKey
type PublicKey = ed25519.PublicKey
type Signature []byte

// GenerateKey creates a fresh Ed25519 keypair, used by validators and by
// test fixtures constructing the scenarios in spec.md §8.
func GenerateKey() (PublicKey, PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign produces a deterministic Ed25519 signature over msg.
func Sign(sk PrivateKey, msg []byte) Signature {
	return Signature(ed25519.Sign(sk, msg))
}

// Verify reports whether sig is a valid Ed25519 signature over msg under pk.
func Verify(pk PublicKey, msg []byte, sig Signature) bool {
	if len(pk) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pk, msg, []byte(sig))
}

// Address derives the spec's opaque owner/validator address string from
// a public key: the hex encoding of its hash, matching the teacher's
// crypto.PubkeyToAddress(...) role in consensus/istanbul/backend/backend.go.
func Address(pk PublicKey) common.Address {
	return common.Address(Hash(pk).Hex())
}
