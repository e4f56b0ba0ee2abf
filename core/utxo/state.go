// Package utxo implements the C2 UTXO state manager of spec.md §4.2: a
// concurrent, per-key-atomic map of OutputRef to its five-state
// lifecycle, sharded the way common.LRUShardConfig shards an LRU cache
// (common/cache.go) so unrelated keys never serialize behind one lock.
//
// Unlike an LRU, entries here are never evicted by capacity pressure —
// this map *is* the authoritative state, not an accelerator in front of
// one. A VictoriaMetrics/fastcache instance sits in front of it purely
// as a read-through cache for Unspent lookups from the hot path
// (transaction admission), per SPEC_FULL.md's C2 domain addition.
package utxo

import (
	"sort"
	"sync"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger(log.ModuleUTXO)

const defaultNumShards = 64

type shard struct {
	mu      sync.Mutex
	entries map[common.OutputRef]*types.UTXOEntry
}

// Manager is the UTXO state manager. The zero value is not usable; use
// NewManager.
type Manager struct {
	shards    []*shard
	mask      int
	readCache *fastcache.Cache

	// CurrentSlot is read to lazily reclaim expired locks on access
	// (spec.md §4.2: "Lock expiry is checked lazily on access").
	currentSlot func() uint64
}

// NewManager creates an empty manager with numShards rounded up to the
// next power of two, and a readCache of cacheBytes capacity (0 disables
// the read-through cache).
func NewManager(numShards int, cacheBytes int, currentSlot func() uint64) *Manager {
	n := 1
	for n < numShards {
		n *= 2
	}
	if n < 1 {
		n = defaultNumShards
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{entries: make(map[common.OutputRef]*types.UTXOEntry)}
	}
	var fc *fastcache.Cache
	if cacheBytes > 0 {
		fc = fastcache.New(cacheBytes)
	}
	return &Manager{shards: shards, mask: n - 1, readCache: fc, currentSlot: currentSlot}
}

func (m *Manager) shardFor(ref common.OutputRef) *shard {
	idx := int(ref.TxID[0]^ref.TxID[1]) & m.mask
	return m.shards[idx]
}

// shardIndices returns the deterministic, deduplicated, sorted shard
// indices touched by refs — locking shards in this order for a
// multi-shard operation avoids lock-ordering deadlocks between
// concurrent TryLock calls touching overlapping shard sets.
func (m *Manager) shardIndices(refs []common.OutputRef) []int {
	seen := make(map[int]struct{}, len(refs))
	for _, r := range refs {
		seen[int(r.TxID[0]^r.TxID[1])&m.mask] = struct{}{}
	}
	idxs := make([]int, 0, len(seen))
	for i := range seen {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	return idxs
}

func (m *Manager) lockAll(idxs []int) {
	for _, i := range idxs {
		m.shards[i].mu.Lock()
	}
}

func (m *Manager) unlockAll(idxs []int) {
	for _, i := range idxs {
		m.shards[i].mu.Unlock()
	}
}

// Insert registers a fresh Unspent output (used for genesis and for the
// outputs MarkPending creates). Not part of the public lifecycle state
// machine since it has no predecessor state.
func (m *Manager) Insert(ref common.OutputRef, out types.Output) {
	s := m.shardFor(ref)
	s.mu.Lock()
	s.entries[ref] = &types.UTXOEntry{Output: out, Status: types.StatusUnspent}
	s.mu.Unlock()
	m.invalidateRead(ref)
}

// IsUnspent is the hot-path existence check transaction admission makes
// for every input — satisfied from the fastcache read-through layer
// when possible, falling back to the sharded map on a miss.
func (m *Manager) IsUnspent(ref common.OutputRef) bool {
	key := []byte(ref.String())
	if m.readCache != nil {
		if v, ok := m.readCache.HasGet(nil, key); ok {
			return len(v) == 1 && v[0] == 1
		}
	}
	e, ok := m.Lookup(ref)
	unspent := ok && e.Status == types.StatusUnspent
	if m.readCache != nil {
		if unspent {
			m.readCache.Set(key, []byte{1})
		} else {
			m.readCache.Set(key, []byte{0})
		}
	}
	return unspent
}

// Lookup returns a copy of the current entry, reclaiming an expired
// lock to Unspent first if applicable.
func (m *Manager) Lookup(ref common.OutputRef) (types.UTXOEntry, bool) {
	s := m.shardFor(ref)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ref]
	if !ok {
		return types.UTXOEntry{}, false
	}
	m.reclaimExpiredLocked(ref, e)
	return *e, true
}

func (m *Manager) reclaimExpiredLocked(ref common.OutputRef, e *types.UTXOEntry) {
	if e.Status == types.StatusLocked && m.currentSlot != nil && m.currentSlot() > e.LockUntil {
		e.Status = types.StatusUnspent
		e.LockTxID = common.Hash{}
		e.LockUntil = 0
		m.invalidateRead(ref)
	}
}

func (m *Manager) invalidateRead(ref common.OutputRef) {
	if m.readCache != nil {
		m.readCache.Del([]byte(ref.String()))
	}
}

// TryLock atomically transitions every ref from Unspent to
// Locked(txid, expiry); on ANY conflict, no state changes at all
// (spec.md §4.2).
func (m *Manager) TryLock(refs []common.OutputRef, txid common.Hash, expiry uint64) error {
	if len(refs) == 0 {
		return nil
	}
	idxs := m.shardIndices(refs)
	m.lockAll(idxs)
	defer m.unlockAll(idxs)

	for _, ref := range refs {
		s := m.shardFor(ref)
		e, ok := s.entries[ref]
		if !ok {
			return types.ErrNotUnspent
		}
		m.reclaimExpiredLocked(ref, e)
		if e.Status != types.StatusUnspent {
			if e.Status == types.StatusLocked {
				return types.ErrAlreadyLocked
			}
			return types.ErrNotUnspent
		}
	}
	for _, ref := range refs {
		s := m.shardFor(ref)
		e := s.entries[ref]
		e.Status = types.StatusLocked
		e.LockTxID = txid
		e.LockUntil = expiry
		m.invalidateRead(ref)
	}
	return nil
}

// Release returns Locked(txid, _) entries to Unspent; a release against
// a non-matching lock is a no-op per ref (spec.md §4.2).
func (m *Manager) Release(refs []common.OutputRef, txid common.Hash) {
	if len(refs) == 0 {
		return
	}
	idxs := m.shardIndices(refs)
	m.lockAll(idxs)
	defer m.unlockAll(idxs)
	for _, ref := range refs {
		s := m.shardFor(ref)
		e, ok := s.entries[ref]
		if !ok || e.Status != types.StatusLocked || e.LockTxID != txid {
			continue
		}
		e.Status = types.StatusUnspent
		e.LockTxID = common.Hash{}
		e.LockUntil = 0
		m.invalidateRead(ref)
	}
}

// MarkPending atomically moves Locked(txid,_) inputs to SpentPending(txid)
// and inserts the new outputs as Unspent (spec.md §4.2).
func (m *Manager) MarkPending(txid common.Hash, refs []common.OutputRef, newRefs []common.OutputRef, outputs []types.Output) error {
	idxs := m.shardIndices(refs)
	m.lockAll(idxs)
	for _, ref := range refs {
		s := m.shardFor(ref)
		e, ok := s.entries[ref]
		if !ok || e.Status != types.StatusLocked || e.LockTxID != txid {
			m.unlockAll(idxs)
			return types.ErrNotUnspent
		}
	}
	for _, ref := range refs {
		s := m.shardFor(ref)
		e := s.entries[ref]
		e.Status = types.StatusSpentPending
		e.SpendTxID = txid
		m.invalidateRead(ref)
	}
	m.unlockAll(idxs)

	for i, ref := range newRefs {
		m.Insert(ref, outputs[i])
	}
	return nil
}

// Commit moves SpentPending(txid) to Spent(txid, blockHeight), marking a
// transaction embedded in a committed block (spec.md §4.2).
func (m *Manager) Commit(txid common.Hash, refs []common.OutputRef, blockHeight uint64) error {
	idxs := m.shardIndices(refs)
	m.lockAll(idxs)
	defer m.unlockAll(idxs)
	for _, ref := range refs {
		s := m.shardFor(ref)
		e, ok := s.entries[ref]
		if !ok || e.Status != types.StatusSpentPending || e.SpendTxID != txid {
			return types.ErrNotUnspent
		}
	}
	for _, ref := range refs {
		s := m.shardFor(ref)
		e := s.entries[ref]
		e.Status = types.StatusSpent
		e.BlockHeight = blockHeight
		m.invalidateRead(ref)
	}
	return nil
}

// Bury promotes every Spent entry buried below the finalization depth to
// SpentFinalized (spec.md §4.2). Since entries aren't indexed by height,
// callers pass the exact refs spent at each height being buried (the
// chain manager tracks this per block it commits).
func (m *Manager) Bury(refs []common.OutputRef, blockHeight uint64) {
	for _, ref := range refs {
		s := m.shardFor(ref)
		s.mu.Lock()
		if e, ok := s.entries[ref]; ok && e.Status == types.StatusSpent {
			e.Status = types.StatusSpentFinalized
			m.invalidateRead(ref)
		}
		s.mu.Unlock()
	}
}

// RevertTransaction reverses one transaction's effect: deletes its
// outputs (if still Unspent — anything else means they were spent by a
// later, now-invalid transaction, which the caller must have already
// reverted) and restores its inputs to Unspent. Fails with
// ErrReorgTooDeep if any input was already SpentFinalized (I3).
func (m *Manager) RevertTransaction(txid common.Hash, inputRefs []common.OutputRef, outputRefs []common.OutputRef) error {
	for _, ref := range outputRefs {
		s := m.shardFor(ref)
		s.mu.Lock()
		if e, ok := s.entries[ref]; ok && e.Status != types.StatusUnspent {
			s.mu.Unlock()
			return types.ErrNotUnspent
		}
		delete(s.entries, ref)
		s.mu.Unlock()
		m.invalidateRead(ref)
	}
	idxs := m.shardIndices(inputRefs)
	m.lockAll(idxs)
	defer m.unlockAll(idxs)
	for _, ref := range inputRefs {
		s := m.shardFor(ref)
		e, ok := s.entries[ref]
		if !ok {
			return types.ErrNotUnspent
		}
		if e.Status == types.StatusSpentFinalized {
			return types.ErrReorgTooDeep
		}
	}
	for _, ref := range inputRefs {
		s := m.shardFor(ref)
		e := s.entries[ref]
		e.Status = types.StatusUnspent
		e.SpendTxID = common.Hash{}
		e.BlockHeight = 0
		m.invalidateRead(ref)
	}
	logger.Debug("reverted transaction", "txid", txid.Hex())
	return nil
}
