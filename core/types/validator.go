package types

import "github.com/slotchain/slotchain/common"

// StakeTier is one of the three fixed weight classes of spec.md §3.
type StakeTier uint8

const (
	TierBronze StakeTier = iota
	TierSilver
	TierGold
)

func (t StakeTier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	default:
		return "unknown"
	}
}

// Weight returns the fixed unitless stake weight for a tier
// (spec.md §3: Bronze=1, Silver=10, Gold=100).
func (t StakeTier) Weight() uint64 {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 10
	case TierGold:
		return 100
	default:
		return 0
	}
}

// Validator is a registered network participant (spec.md §3).
type Validator struct {
	Address         common.Address
	PublicKey       []byte
	Tier            StakeTier
	LastHeartbeat   uint64 // slot number
	Active          bool
}

func (v *Validator) StakeWeight() uint64 { return v.Tier.Weight() }
