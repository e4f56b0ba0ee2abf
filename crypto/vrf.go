package crypto

import (
	"golang.org/x/crypto/ed25519"

	"github.com/slotchain/slotchain/common"
)

// VRFProve and VRFVerify implement the prove/verify contract of spec.md
// §4.1 (deterministic given sk, non-interactively verifiable without
// sk, output indistinguishable from random to anyone lacking sk).
//
// No ECVRF/curve-arithmetic library appears anywhere in the retrieved
// corpus, so the construction here is built directly on Ed25519's
// deterministic-signature property (RFC 8032 §5.1.6: the nonce is
// derived from sk and the message, so (sk, msg) → signature is a
// function, not a relation) rather than raw group exponentiation. The
// VRF output is the hash of that unique signature; the proof *is* the
// signature. This satisfies every property spec.md actually tests
// (P3: all honest nodes compute the same leader; output unforgeable
// without sk) without an elliptic-curve library the pack never uses.
// See DESIGN.md's resolution of the ECVRF open question.
func VRFProve(sk PrivateKey, input []byte) (output common.Hash, proof []byte) {
	sig := ed25519.Sign(sk, input)
	return Hash(sig), sig
}

// VRFVerify recomputes the output from proof and confirms proof is a
// valid Ed25519 signature over input under pk. Returns ok=false on a
// malformed or mismatched proof (ErrInvalidProof at the call site).
func VRFVerify(pk PublicKey, input []byte, proof []byte) (output common.Hash, ok bool) {
	if len(proof) != ed25519.SignatureSize || len(pk) != ed25519.PublicKeySize {
		return common.Hash{}, false
	}
	if !ed25519.Verify(pk, input, proof) {
		return common.Hash{}, false
	}
	return Hash(proof), true
}

// VRFSlotInput builds the deterministic per-slot VRF input
// H(prev_block_hash || slot) from spec.md §4.6.
func VRFSlotInput(prevBlockHash common.Hash, slot uint64) []byte {
	var slotBytes [8]byte
	for i := 0; i < 8; i++ {
		slotBytes[7-i] = byte(slot >> (8 * uint(i)))
	}
	return HashConcat(prevBlockHash.Bytes(), slotBytes[:]).Bytes()
}
