package types

import "github.com/slotchain/slotchain/common"

// ConsensusRecord is the per-in-flight-transaction Snowflake/Snowball
// state of spec.md §3: preference, consecutive-success counter, round
// count, and a deadline. No separate confidence counter is kept; the
// consecutive-success counter is the only per-record tally.
type ConsensusRecord struct {
	TxID              common.Hash
	Preference        common.Hash // txid of the currently favored variant in this conflict set
	ConsecutiveCount  int
	Rounds            int
	DeadlineUnixNano  int64
}
