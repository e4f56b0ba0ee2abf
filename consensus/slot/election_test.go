package slot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/crypto"
)

func TestComputeAndVerifyReveal(t *testing.T) {
	pk, sk, err := crypto.GenerateKey()
	require.NoError(t, err)

	var prevHash = [32]byte{1, 2, 3}
	r := ComputeReveal("alice", sk, prevHash, 7)
	assert.True(t, VerifyReveal(pk, prevHash, 7, r))
	assert.False(t, VerifyReveal(pk, prevHash, 8, r), "proof for a different slot must not verify")
}

func TestLeaderIsSmallestOutput(t *testing.T) {
	pkA, skA, _ := crypto.GenerateKey()
	pkB, skB, _ := crypto.GenerateKey()
	_ = pkA
	_ = pkB

	var prevHash = [32]byte{9}
	revealA := ComputeReveal("alice", skA, prevHash, 1)
	revealB := ComputeReveal("bob", skB, prevHash, 1)

	leader, ok := Leader([]Reveal{revealA, revealB})
	assert.True(t, ok)

	ranked := RankedCandidates([]Reveal{revealA, revealB})
	assert.Equal(t, ranked[0].Validator, leader)
	assert.True(t, IsAcceptableProposer([]Reveal{revealA, revealB}, ranked[1].Validator, 1))
}

func TestLeaderEmptyReveals(t *testing.T) {
	_, ok := Leader(nil)
	assert.False(t, ok)
}

// TestLeaderAbsentFallsBackToNextRankedReveal implements spec.md §8 S5:
// the elected leader produces no block within LEADER_TIMEOUT, so the
// next-smallest VRF holder among the collected reveals becomes the
// acceptable proposer instead.
func TestLeaderAbsentFallsBackToNextRankedReveal(t *testing.T) {
	pkA, skA, _ := crypto.GenerateKey()
	pkB, skB, _ := crypto.GenerateKey()
	pkC, skC, _ := crypto.GenerateKey()
	_ = pkA
	_ = pkB
	_ = pkC

	var prevHash = [32]byte{7, 7, 7}
	reveals := []Reveal{
		ComputeReveal("alice", skA, prevHash, 3),
		ComputeReveal("bob", skB, prevHash, 3),
		ComputeReveal("carol", skC, prevHash, 3),
	}
	ranked := RankedCandidates(reveals)
	leader, ok := Leader(reveals)
	require.True(t, ok)
	require.Equal(t, ranked[0].Validator, leader)

	// The true leader (fallback rank 0) never produces a block; only the
	// rank-1 holder is acceptable once LEADER_TIMEOUT has elapsed once.
	assert.False(t, IsAcceptableProposer(reveals, ranked[1].Validator, 0), "the fallback holder is not acceptable at rank 0")
	assert.True(t, IsAcceptableProposer(reveals, ranked[1].Validator, 1), "the next-ranked holder becomes acceptable at fallback rank 1")
	assert.False(t, IsAcceptableProposer(reveals, leader, 1), "the absent leader is no longer the acceptable proposer once the fallback rank has advanced")
}

// TestNoRevealsSkipsSlot implements the other half of spec.md §8 S5: if
// no validator's reveal is known at all, no candidate is acceptable at
// any fallback rank, which is how the slot loop recognizes the slot
// must be skipped entirely.
func TestNoRevealsSkipsSlot(t *testing.T) {
	pk, _, _ := crypto.GenerateKey()
	addr := crypto.Address(pk)
	assert.False(t, IsAcceptableProposer(nil, addr, 0))
	assert.False(t, IsAcceptableProposer(nil, addr, 1))
}
