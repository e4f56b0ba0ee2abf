// Package txpool implements the C3 bounded mempool of spec.md §4.3:
// submit/remove/drain_finalized with fee-aware eviction once the pool's
// byte or count budget is exceeded.
//
// The drain order is a karalabe/cookiejar.v2/collections/prque
// (declared in the teacher's go.mod for its p2p/discover lookup table,
// not otherwise exercised by the retrieved file set) keyed by
// fee-per-byte, whose Pop returns the highest fee first; eviction scans
// the pooled entries for the lowest fee-per-byte instead. The conflict index — which candidate
// txids spend a given OutputRef — is a gopkg.in/fatih/set.v0 set per
// key, mirroring the teacher's own ancestor/family/uncle sets in
// work/worker.go.
package txpool

import (
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/fatih/set.v0"
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger(log.ModulePool)

const (
	// DefaultMaxBytes is the pool's total serialized-byte budget
	// (spec.md §4.3, §6.3 resource caps: "Mempool 300 MB").
	DefaultMaxBytes = 300 * 1024 * 1024
	// DefaultMaxCount is the pool's transaction-count budget.
	DefaultMaxCount = 10000
)

type pooledTx struct {
	tx       *types.Transaction
	feePerKB int64 // fee-per-byte scaled to an integer prque priority
}

// Pool is the bounded, fee-evicting mempool.
type Pool struct {
	mu sync.Mutex

	maxBytes int
	maxCount int

	byTxID    map[common.Hash]*pooledTx
	conflicts map[common.OutputRef]*set.Set // OutputRef -> set of txid (as common.Hash)
	priority  *prque.Prque
	totalSize int

	utxo *utxo.Manager
}

// New creates an empty pool backed by utxoMgr for input-state checks.
func New(utxoMgr *utxo.Manager, maxBytes, maxCount int) *Pool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	return &Pool{
		maxBytes:  maxBytes,
		maxCount:  maxCount,
		byTxID:    make(map[common.Hash]*pooledTx),
		conflicts: make(map[common.OutputRef]*set.Set),
		priority:  prque.New(nil),
		utxo:      utxoMgr,
	}
}

// Submit validates structure (balance, fee, signatures) and input
// availability, locks the inputs via the UTXO manager, and admits the
// transaction, evicting lowest-fee-per-byte entries if the pool is over
// budget afterward (spec.md §4.3). inputValues and ownerPubKeys are the
// resolved state for each input in tx.Inputs order, looked up by the
// caller from the UTXO manager before calling Submit.
func (p *Pool) Submit(tx *types.Transaction, inputValues []uint64, ownerPubKeys []crypto.PublicKey) error {
	txid := tx.TxID()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byTxID[txid]; exists {
		return types.ErrDuplicateTx
	}
	if err := tx.ValidateStructure(inputValues, ownerPubKeys); err != nil {
		if err == types.ErrTxFeeTooLow {
			return types.ErrInsufficientFee
		}
		return errors.Wrap(types.ErrInvalidTransaction, err.Error())
	}
	for _, ref := range tx.InputRefs() {
		if !p.utxo.IsUnspent(ref) {
			return types.ErrInvalidTransaction
		}
	}
	if err := p.utxo.TryLock(tx.InputRefs(), txid, 0); err != nil {
		return errors.Wrap(err, "txpool: lock inputs")
	}

	size := tx.Size()
	if len(p.byTxID) >= p.maxCount || p.totalSize+size > p.maxBytes {
		if !p.evictToFit(size, tx.FeePerByte()) {
			p.utxo.Release(tx.InputRefs(), txid)
			return types.ErrPoolFull
		}
	}

	pt := &pooledTx{tx: tx, feePerKB: int64(tx.FeePerByte() * 1000)}
	p.byTxID[txid] = pt
	p.priority.Push(txid, pt.feePerKB)
	p.totalSize += size
	for _, ref := range tx.InputRefs() {
		s, ok := p.conflicts[ref]
		if !ok {
			s = set.New()
			p.conflicts[ref] = s
		}
		s.Add(txid)
	}
	logger.Debug("admitted transaction", "txid", txid.Hex(), "feePerByte", tx.FeePerByte())
	return nil
}

// evictToFit removes the lowest-fee-per-byte entries until there's room
// for a newcomer of needSize bytes and newFeePerByte priority, or the pool
// cannot make room without evicting something of equal-or-higher fee.
func (p *Pool) evictToFit(needSize int, newFeePerByte float64) bool {
	for (len(p.byTxID) >= p.maxCount || p.totalSize+needSize > p.maxBytes) && len(p.byTxID) > 0 {
		var victim common.Hash
		victimFee, first := 0.0, true
		for txid, pt := range p.byTxID {
			if fee := pt.tx.FeePerByte(); first || fee < victimFee {
				victim, victimFee, first = txid, fee, false
			}
		}
		if victimFee >= newFeePerByte {
			// Nothing left is cheaper than the newcomer: refuse.
			return false
		}
		p.removeLocked(victim)
	}
	return len(p.byTxID) < p.maxCount && p.totalSize+needSize <= p.maxBytes
}

// Remove evicts a transaction (rejected by consensus, or superseded by
// a conflicting winner) and releases its input locks.
func (p *Pool) Remove(txid common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txid)
}

func (p *Pool) removeLocked(txid common.Hash) {
	pt, ok := p.byTxID[txid]
	if !ok {
		return
	}
	delete(p.byTxID, txid)
	p.totalSize -= pt.tx.Size()
	p.utxo.Release(pt.tx.InputRefs(), txid)
	for _, ref := range pt.tx.InputRefs() {
		if s, ok := p.conflicts[ref]; ok {
			s.Remove(txid)
			if s.Size() == 0 {
				delete(p.conflicts, ref)
			}
		}
	}
}

// DrainFinalized pops up to n transactions from the fee queue,
// highest-fee-first, for the block builder to embed (spec.md §4.3).
// Only the fee queue entries are consumed: the drained transactions stay
// in the txid and conflict indexes with their input locks held, so Get,
// Conflicts and Remove still see them, and the caller calls Remove for
// each once its block lands or it is rejected. A drained transaction is
// not returned again by a later DrainFinalized.
func (p *Pool) DrainFinalized(n int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.Transaction, 0, n)
	for len(out) < n && p.priority.Size() > 0 {
		v, _ := p.priority.Pop()
		// Entries for transactions already removed or evicted are stale
		// and are dropped here.
		if pt, ok := p.byTxID[v.(common.Hash)]; ok {
			out = append(out, pt.tx)
		}
	}
	return out
}

// Conflicts returns the candidate txids sharing an input with tx,
// excluding tx itself — the conflict set the sampling engine (C5)
// resolves via Snowball (spec.md §4.5).
func (p *Pool) Conflicts(tx *types.Transaction) []common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[common.Hash]struct{})
	for _, ref := range tx.InputRefs() {
		s, ok := p.conflicts[ref]
		if !ok {
			continue
		}
		for _, v := range s.List() {
			id := v.(common.Hash)
			if id != tx.TxID() {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]common.Hash, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// Get returns a pooled transaction by id.
func (p *Pool) Get(txid common.Hash) (*types.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt, ok := p.byTxID[txid]
	if !ok {
		return nil, false
	}
	return pt.tx, true
}

// Len returns the current transaction count.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byTxID)
}
