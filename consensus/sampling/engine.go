// Package sampling implements the C5 sampling consensus engine of
// spec.md §4.5: a per-transaction Snowflake/Snowball state machine
// parameterized by (k, α, β), using ECVRF-seeded stake-weighted
// sampling without replacement to pick each round's query committee.
//
// Per-conflict-set state machines are keyed in a hashicorp/golang-lru
// ARC cache exactly the way backend.recentMessages/knownMessages cache
// per-peer/per-hash state in consensus/istanbul/backend/backend.go. The
// round cadence (assemble committee -> broadcast query -> collect
// responses up to a deadline -> tally) follows the shape of
// consensus/istanbul/core/preprepare.go and commit.go's round-message
// handling, generalized from one BFT quorum per block to one sampled
// committee per in-flight transaction.
package sampling

import (
	"context"
	"math/rand"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/validator"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger(log.ModuleSampling)

// Params holds the (k, alpha, beta, max_rounds, query_timeout) tuple
// for one network profile (spec.md §4.5, §6.3).
type Params struct {
	K             int
	Alpha         int
	Beta          int
	MaxRounds     int
	QueryTimeout  time.Duration
}

// MainnetParams and TestnetParams are the two profiles spec.md §4.5 names.
var (
	MainnetParams = Params{K: 20, Alpha: 14, Beta: 20, MaxRounds: 100, QueryTimeout: 2 * time.Second}
	TestnetParams = Params{K: 10, Alpha: 7, Beta: 5, MaxRounds: 100, QueryTimeout: 2 * time.Second}
)

// Querier asks one validator for its current preference among the
// transactions in conflictSet, returning ok=false on timeout or no
// response (spec.md §4.5: "Missing responses count as 'no preference'").
type Querier interface {
	QueryPreference(ctx context.Context, v *types.Validator, conflictSet []common.Hash) (preference common.Hash, ok bool)
}

// Engine runs Snowflake/Snowball rounds over conflict sets.
type Engine struct {
	params   Params
	registry *validator.Registry
	querier  Querier
	vrfKey   crypto.PrivateKey

	recordsMu sync.Mutex
	records   *lru.ARCCache // conflict-set key (lowest txid) -> *types.ConsensusRecord
}

// New creates an engine. vrfKey is this node's own key, used to derive
// the VRF seed for committee sampling at each round (any node can
// recompute another node's committee given that node's VRF proof, but
// each querying node samples its own committee for its own rounds).
func New(params Params, registry *validator.Registry, querier Querier, vrfKey crypto.PrivateKey) *Engine {
	records, _ := lru.NewARC(4096)
	return &Engine{params: params, registry: registry, querier: querier, vrfKey: vrfKey, records: records}
}

// Outcome is the terminal result of running consensus to completion for
// one conflict set.
type Outcome struct {
	Winner  common.Hash
	Rounds  int
}

// conflictKey picks a deterministic representative for a conflict set
// (the set's members plus the candidate itself), so repeated calls for
// the same contest share one ConsensusRecord.
func conflictKey(candidate common.Hash, conflicts []common.Hash) common.Hash {
	min := candidate
	for _, c := range conflicts {
		if c.Cmp(min) < 0 {
			min = c
		}
	}
	return min
}

// CurrentPreference reports this node's present preference for a
// conflict set without advancing any round, the read-only counterpart
// recordFor's callers use internally. It answers the p2p
// ConsensusQuery a peer running its own Run sends this node (spec.md
// §4.5, §6.2): ok is false until Run has started for this conflict set
// (Run records the candidate as the initial preference before its first
// round) or after the record has been evicted from the cache.
func (e *Engine) CurrentPreference(candidate common.Hash, conflicts []common.Hash) (common.Hash, bool) {
	key := conflictKey(candidate, conflicts)
	e.recordsMu.Lock()
	defer e.recordsMu.Unlock()
	v, ok := e.records.Get(key)
	if !ok {
		return common.Hash{}, false
	}
	return v.(*types.ConsensusRecord).Preference, true
}

func (e *Engine) recordFor(key common.Hash, candidate common.Hash) *types.ConsensusRecord {
	e.recordsMu.Lock()
	defer e.recordsMu.Unlock()
	if v, ok := e.records.Get(key); ok {
		return v.(*types.ConsensusRecord)
	}
	rec := &types.ConsensusRecord{TxID: candidate, Preference: candidate}
	e.records.Add(key, rec)
	return rec
}

// Run drives Snowflake/Snowball to completion for candidate against its
// conflict set (spec.md §4.5). It blocks until the candidate's
// conflict set reaches a decision (acceptance of some member, which may
// not be candidate) or ctx/max_rounds is exhausted.
func (e *Engine) Run(ctx context.Context, candidate common.Hash, conflicts []common.Hash) (Outcome, error) {
	key := conflictKey(candidate, conflicts)
	rec := e.recordFor(key, candidate)
	all := append([]common.Hash{candidate}, conflicts...)

	for round := 1; round <= e.params.MaxRounds; round++ {
		rec.Rounds = round
		committee := e.sampleCommittee(candidate, round)
		if len(committee) == 0 {
			return Outcome{}, types.ErrConsensusTimeout
		}

		tally := make(map[common.Hash]int, len(all))
		var wg sync.WaitGroup
		var mu sync.Mutex
		roundCtx, cancel := context.WithTimeout(ctx, e.params.QueryTimeout)
		for _, v := range committee {
			v := v
			wg.Add(1)
			go func() {
				defer wg.Done()
				pref, ok := e.querier.QueryPreference(roundCtx, v, all)
				if !ok {
					return
				}
				mu.Lock()
				tally[pref]++
				mu.Unlock()
			}()
		}
		wg.Wait()
		cancel()

		topPref, topCount := topPreference(tally)
		reachedAlpha := topCount >= e.params.Alpha

		if reachedAlpha && topPref == rec.Preference {
			rec.ConsecutiveCount++
		} else {
			rec.ConsecutiveCount = 0
			if reachedAlpha {
				rec.Preference = topPref
			}
		}

		logger.Debug("sampling round", "candidate", candidate.Hex(), "round", round, "preference", rec.Preference.Hex(), "consecutive", rec.ConsecutiveCount)

		if rec.ConsecutiveCount >= e.params.Beta {
			return Outcome{Winner: rec.Preference, Rounds: round}, nil
		}

		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		default:
		}
	}
	return Outcome{}, types.ErrConsensusTimeout
}

func topPreference(tally map[common.Hash]int) (common.Hash, int) {
	var best common.Hash
	bestCount := -1
	for pref, count := range tally {
		if count > bestCount {
			best, bestCount = pref, count
		}
	}
	return best, bestCount
}

// sampleCommittee picks k validators from the active set by
// stake-weighted sampling without replacement, seeded by the ECVRF
// output of (candidate, round) so the sample is reproducible by anyone
// recomputing the same VRF input/proof pair yet unpredictable in
// advance (spec.md §4.5 step 1).
func (e *Engine) sampleCommittee(candidate common.Hash, round int) []*types.Validator {
	active := e.registry.ActiveSet()
	if len(active) == 0 {
		return nil
	}
	input := crypto.HashConcat(candidate.Bytes(), roundBytes(round)).Bytes()
	seed, _ := crypto.VRFProve(e.vrfKey, input)

	k := e.params.K
	if k > len(active) {
		k = len(active)
	}

	pool := make([]*types.Validator, len(active))
	copy(pool, active)
	weights := make([]uint64, len(pool))
	var total uint64
	for i, v := range pool {
		weights[i] = v.StakeWeight()
		total += weights[i]
	}

	rng := rand.New(rand.NewSource(seedToInt64(seed)))
	out := make([]*types.Validator, 0, k)
	for len(out) < k && len(pool) > 0 {
		if total == 0 {
			break
		}
		r := uint64(rng.Int63n(int64(total)))
		var cum uint64
		pick := 0
		for i, w := range weights {
			cum += w
			if r < cum {
				pick = i
				break
			}
		}
		out = append(out, pool[pick])
		total -= weights[pick]
		pool = append(pool[:pick], pool[pick+1:]...)
		weights = append(weights[:pick], weights[pick+1:]...)
	}
	return out
}

func roundBytes(round int) []byte {
	var b [8]byte
	u := uint64(round)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(u >> (8 * uint(i)))
	}
	return b[:]
}

func seedToInt64(h common.Hash) int64 {
	var v int64
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(h[i])
	}
	if v < 0 {
		v = -v
	}
	return v
}
