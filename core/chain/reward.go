package chain

import "math"

// BlockRewardGenesis is the fixed genesis-block reward (spec.md §6.3):
// 100 whole units in the smallest denomination.
const BlockRewardGenesis = 10_000_000_000

// BlockReward computes the protocol reward formula of spec.md §6.3:
// floor(100 x (1 + ln(h)) x 10^8) for h > 0, and the fixed genesis
// reward at h = 0. The spec's Open Question on the h=0 value is
// resolved in favor of the normalized 100-whole-unit genesis reward
// (see DESIGN.md).
func BlockReward(height uint64) uint64 {
	if height == 0 {
		return BlockRewardGenesis
	}
	return uint64(math.Floor(100 * (1 + math.Log(float64(height))) * 1e8))
}
