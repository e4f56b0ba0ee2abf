// Package validator implements the C4 validator registry of spec.md
// §4.4: the active validator set, stake weights, and heartbeat
// liveness tracking.
//
// Directly adapted from weightedCouncil in
// consensus/istanbul/validator/weighted.go: an RWMutex-guarded map of
// members plus an atomically-swapped immutable snapshot so active_set()
// and total_weight() — read on every sampling round — never block on a
// writer. Tiers (Bronze/Silver/Gold → weights 1/10/100) replace the
// teacher's staking-derived votingPower/weight fields.
package validator

import (
	"sync"
	"sync/atomic"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger(log.ModuleValidator)

// HeartbeatTimeoutSlots is the number of missed slots after which a
// validator is marked inactive (spec.md §6.3: HEARTBEAT_TIMEOUT = 3).
const HeartbeatTimeoutSlots = 3

// snapshot is the immutable active-set view swapped in atomically.
type snapshot struct {
	active      []*types.Validator
	totalWeight uint64
}

// Registry is the validator registry. The zero value is not usable; use
// NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	members map[common.Address]*types.Validator

	current atomic.Value // holds *snapshot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{members: make(map[common.Address]*types.Validator)}
	r.current.Store(&snapshot{})
	return r
}

// Register adds or updates a validator entry. The validator starts
// active as of the slot it registers in.
func (r *Registry) Register(v *types.Validator, slot uint64) {
	r.mu.Lock()
	cp := *v
	cp.Active = true
	cp.LastHeartbeat = slot
	r.members[v.Address] = &cp
	r.mu.Unlock()
	r.rebuildSnapshot()
	logger.Info("validator registered", "address", v.Address, "tier", v.Tier.String())
}

// Heartbeat records liveness at slot for address, reactivating it if it
// had expired.
func (r *Registry) Heartbeat(address common.Address, slot uint64) bool {
	r.mu.Lock()
	v, ok := r.members[address]
	if ok {
		v.LastHeartbeat = slot
		v.Active = true
	}
	r.mu.Unlock()
	if ok {
		r.rebuildSnapshot()
	}
	return ok
}

// Expire deactivates every validator whose last heartbeat is more than
// HeartbeatTimeoutSlots behind currentSlot (spec.md §4.4).
func (r *Registry) Expire(currentSlot uint64) {
	r.mu.Lock()
	changed := false
	for _, v := range r.members {
		if v.Active && currentSlot > v.LastHeartbeat+HeartbeatTimeoutSlots {
			v.Active = false
			changed = true
			logger.Debug("validator expired", "address", v.Address, "lastHeartbeat", v.LastHeartbeat, "currentSlot", currentSlot)
		}
	}
	r.mu.Unlock()
	if changed {
		r.rebuildSnapshot()
	}
}

// rebuildSnapshot recomputes the atomically-swapped read view under the
// read lock, held only long enough to copy pointers.
func (r *Registry) rebuildSnapshot() {
	r.mu.RLock()
	active := make([]*types.Validator, 0, len(r.members))
	var total uint64
	for _, v := range r.members {
		if v.Active {
			active = append(active, v)
			total += v.StakeWeight()
		}
	}
	r.mu.RUnlock()
	r.current.Store(&snapshot{active: active, totalWeight: total})
}

// ActiveSet returns the current active validator set — a lock-free read
// of the atomically-swapped snapshot (spec.md §4.4: "read-mostly ...
// stable within a slot once sampled").
func (r *Registry) ActiveSet() []*types.Validator {
	return r.current.Load().(*snapshot).active
}

// TotalWeight returns the sum of stake weights of the active set.
func (r *Registry) TotalWeight() uint64 {
	return r.current.Load().(*snapshot).totalWeight
}

// Get returns a validator by address regardless of active state.
func (r *Registry) Get(address common.Address) (*types.Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.members[address]
	return v, ok
}
