// Package crypto implements the C1 crypto primitives of spec.md §4.1:
// hashing, Ed25519 signatures, and an ECVRF-style prove/verify pair.
package crypto

import (
	"golang.org/x/crypto/blake2b"

	"github.com/slotchain/slotchain/common"
)

// Hash returns the 32-byte BLAKE2b digest of b. Every hashed structure
// in the protocol (transactions, block headers) must run through this
// single function so encodings stay canonical (spec.md §9).
func Hash(b []byte) common.Hash {
	return blake2b.Sum256(b)
}

// HashConcat hashes the concatenation of several byte slices without an
// intermediate allocation-heavy append, used for the VRF input
// H(prev_block_hash || slot) in §4.6.
func HashConcat(parts ...[]byte) common.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // blake2b.New256 only errors on bad key size; nil key never fails
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}
