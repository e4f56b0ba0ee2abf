package types

import "github.com/slotchain/slotchain/common"

// UTXOStatus enumerates the five-state lifecycle of spec.md §3.
type UTXOStatus uint8

const (
	StatusUnspent UTXOStatus = iota
	StatusLocked
	StatusSpentPending
	StatusSpent
	StatusSpentFinalized
)

func (s UTXOStatus) String() string {
	switch s {
	case StatusUnspent:
		return "unspent"
	case StatusLocked:
		return "locked"
	case StatusSpentPending:
		return "spent_pending"
	case StatusSpent:
		return "spent"
	case StatusSpentFinalized:
		return "spent_finalized"
	default:
		return "unknown"
	}
}

// UTXOEntry is the tracked state for one OutputRef: its value/owner (so
// a lookup doesn't need a second index) plus lifecycle fields that only
// apply in some states.
type UTXOEntry struct {
	Output Output
	Status UTXOStatus

	// Locked
	LockTxID  common.Hash
	LockUntil uint64 // absolute slot bound

	// SpentPending / Spent / SpentFinalized
	SpendTxID   common.Hash
	BlockHeight uint64
}
