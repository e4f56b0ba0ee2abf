package p2p

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/slotchain/slotchain/common"
)

// category buckets spread the per-peer budget across message kinds so
// a flood of one kind (e.g. Transaction) cannot starve another (e.g.
// Heartbeat) on the same connection.
type category int

const (
	categoryGeneral category = iota
	categoryForkResolution
	categoryGossip
	numCategories
)

func categoryFor(k Kind) category {
	if k.IsForkResolution() {
		return categoryForkResolution
	}
	switch k {
	case KindBlockAnnouncement, KindTransaction:
		return categoryGossip
	default:
		return categoryGeneral
	}
}

// Per-category token bucket parameters (spec.md §4.8: "a token-bucket
// rate limiter per-peer per-category" with "a higher dedicated budget"
// for fork resolution).
var categoryLimits = map[category]struct {
	rate  rate.Limit
	burst int
}{
	categoryGeneral:        {rate: 20, burst: 40},
	categoryGossip:         {rate: 50, burst: 100},
	categoryForkResolution: {rate: 200, burst: 400},
}

// MaxViolations is the number of protocol violations a non-whitelisted
// peer tolerates before disconnection (spec.md §4.8: "default 5").
const MaxViolations = 5

// backoffBase and backoffCap bound the exponential reconnect backoff
// applied to whitelisted peers after a transport error.
const backoffBase = 1 * time.Second
const backoffCap = 2 * time.Minute

// PeerLimiter tracks one peer's per-category token buckets and
// violation count, mirroring the istanbul backend's per-peer bookkeeping
// but generalized from a single istanbul-message budget to the fuller
// wire protocol of spec.md §6.2.
type PeerLimiter struct {
	mu         sync.Mutex
	buckets    [numCategories]*rate.Limiter
	violations int
	blacklisted bool
	backoff    time.Duration
}

func NewPeerLimiter() *PeerLimiter {
	pl := &PeerLimiter{}
	for c := categoryGeneral; c < numCategories; c++ {
		lim := categoryLimits[c]
		pl.buckets[c] = rate.NewLimiter(lim.rate, lim.burst)
	}
	return pl
}

// Allow consumes one token from k's category bucket.
func (pl *PeerLimiter) Allow(k Kind) bool {
	return pl.buckets[categoryFor(k)].Allow()
}

// RecordViolation increments the violation counter and reports whether
// the caller (for a non-whitelisted peer) should now disconnect.
func (pl *PeerLimiter) RecordViolation() (shouldDisconnect bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.violations++
	return pl.violations >= MaxViolations
}

func (pl *PeerLimiter) Violations() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.violations
}

// Blacklist marks the peer temporarily blocked and doubles the backoff
// for its next reconnect attempt (spec.md §4.8: "exponential backoff").
func (pl *PeerLimiter) Blacklist() time.Duration {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.blacklisted = true
	if pl.backoff == 0 {
		pl.backoff = backoffBase
	} else {
		pl.backoff *= 2
		if pl.backoff > backoffCap {
			pl.backoff = backoffCap
		}
	}
	return pl.backoff
}

func (pl *PeerLimiter) IsBlacklisted() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.blacklisted
}

func (pl *PeerLimiter) ClearBlacklist() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.blacklisted = false
}

// Whitelist is the persistent set of peer addresses that receive
// lenient protocol treatment, populated only from the trusted bootstrap
// endpoint and operator configuration (spec.md §4.8) — never from
// peer-announced data, so there is deliberately no method to add an
// address learned over the wire.
type Whitelist struct {
	mu   sync.RWMutex
	addr map[common.Address]struct{}
}

func NewWhitelist(bootstrap, operatorConfigured []common.Address) *Whitelist {
	w := &Whitelist{addr: make(map[common.Address]struct{}, len(bootstrap)+len(operatorConfigured))}
	for _, a := range bootstrap {
		w.addr[a] = struct{}{}
	}
	for _, a := range operatorConfigured {
		w.addr[a] = struct{}{}
	}
	return w
}

func (w *Whitelist) Contains(addr common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.addr[addr]
	return ok
}
