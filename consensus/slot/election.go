// Package slot implements the C6 slot scheduler and VRF leader election
// of spec.md §4.6: fixed-cadence slots, smallest-VRF-output leader
// selection, and the liveness fallback to the next-ranked VRF holder.
//
// Deterministic-but-reproducible selection mirrors weightedRandomProposer
// in consensus/istanbul/validator/weighted.go (seed derived from the
// previous block hash) — here the "seed" is the VRF output itself, and
// the comparison is numeric (smallest output wins) rather than
// round-robin over a shuffled slice. Because a true VRF output is only
// computable by its secret-key holder, leadership is established by
// validators broadcasting their (output, proof) reveal for a slot as
// soon as they compute it; RankedCandidates and IsLeader operate over
// whatever reveals a node has collected, which is how the liveness
// fallback to the "next-ranked" holder is expressed once the declared
// leader's reveal never arrives.
package slot

import (
	"sort"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/crypto"
)

// Reveal is one validator's VRF output and proof for a given slot.
type Reveal struct {
	Validator common.Address
	Output    common.Hash
	Proof     []byte
}

// Input builds the deterministic VRF input for slot s given the
// previous block hash (spec.md §4.6: H(prev_block_hash || s)).
func Input(prevBlockHash common.Hash, s uint64) []byte {
	return crypto.VRFSlotInput(prevBlockHash, s)
}

// ComputeReveal runs vrf_prove for this node's own key for slot s.
func ComputeReveal(address common.Address, sk crypto.PrivateKey, prevBlockHash common.Hash, s uint64) Reveal {
	output, proof := crypto.VRFProve(sk, Input(prevBlockHash, s))
	return Reveal{Validator: address, Output: output, Proof: proof}
}

// VerifyReveal checks a peer's published reveal against their public
// key, returning ok=false on a malformed or mismatched proof
// (spec.md §4.6 requires every honest node to be able to check this
// without the prover's secret key).
func VerifyReveal(pk crypto.PublicKey, prevBlockHash common.Hash, s uint64, r Reveal) bool {
	output, ok := crypto.VRFVerify(pk, Input(prevBlockHash, s), r.Proof)
	return ok && output == r.Output
}

// RankedCandidates sorts reveals ascending by VRF output, the order the
// liveness fallback walks through: reveals[0] is the slot's leader,
// reveals[1] is who non-leaders accept from if the leader never
// produces a block within LEADER_TIMEOUT, and so on (spec.md §4.6).
func RankedCandidates(reveals []Reveal) []Reveal {
	out := make([]Reveal, len(reveals))
	copy(out, reveals)
	sort.Slice(out, func(i, j int) bool { return out[i].Output.Cmp(out[j].Output) < 0 })
	return out
}

// Leader returns the slot's leader given the reveals collected so far.
func Leader(reveals []Reveal) (common.Address, bool) {
	ranked := RankedCandidates(reveals)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].Validator, true
}

// IsAcceptableProposer reports whether candidate is allowed to propose
// at rank position fallbackRank (0 = the true leader, 1 = first
// fallback, ...) among the reveals collected so far.
func IsAcceptableProposer(reveals []Reveal, candidate common.Address, fallbackRank int) bool {
	ranked := RankedCandidates(reveals)
	if fallbackRank < 0 || fallbackRank >= len(ranked) {
		return false
	}
	return ranked[fallbackRank].Validator == candidate
}
