// Package chain implements the C7 chain manager of spec.md §4.7: block
// validation, chain_work canonical selection, reorg/revert/reapply,
// checkpoint enforcement, and orphan buffering.
//
// findCommonAncestor walks parent pointers exactly the way the
// teacher's storage/database/db_manager.go does for its own
// FindCommonAncestor: equalize heights first, then walk both chains
// back together until hashes match. Canonical-hash bookkeeping mirrors
// ReadCanonicalHash/WriteCanonicalHash in the same file, narrowed from
// an Ethereum-style block/header/body/receipt split down to this
// protocol's single Block type.
package chain

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/consensus/slot"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger(log.ModuleChain)

// FinalizationDepth and MaxReorgDepth are spec.md §6.3's chain bounds.
const (
	FinalizationDepth = 20
	MaxReorgDepth      = 100
	MaxOrphans         = 256
)

// Checkpoint is a hard-coded (height, hash) anchor (spec.md §4.7).
type Checkpoint struct {
	Height uint64
	Hash   common.Hash
}

// Store is the persistence surface the chain manager needs; storage's
// KVStore satisfies it.
type Store interface {
	PutBlock(b *types.Block) error
	GetBlock(hash common.Hash) (*types.Block, bool)
	GetBlockByHeight(height uint64) (common.Hash, bool)
	PutCanonical(height uint64, hash common.Hash) error
	DeleteCanonical(height uint64) error
}

// Tip identifies a chain's head for chain_work comparison.
type Tip struct {
	Height uint64
	Hash   common.Hash
}

// Better implements the chain_work order of spec.md §4.7: a longer
// chain always wins; equal-height ties go to the numerically smaller
// tip hash. Open Question resolution (DESIGN.md): chain_work is
// expressed as a comparison rather than a scalar, since (height, hash)
// already totally orders candidate tips the way the spec requires
// without inventing an arbitrary numeric weight.
func Better(a, b Tip) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	return a.Hash.Cmp(b.Hash) < 0
}

// ValidationContext carries the facts about the network a single
// block's validation needs beyond its own bytes and the store: the
// slot's VRF reveals collected so far (for the liveness-fallback rank
// check) and the resolved UTXO state each input claims to spend.
type ValidationContext struct {
	SlotReveals  []slot.Reveal
	FallbackRank int
	InputValues  map[common.OutputRef]uint64
	InputOwners  map[common.OutputRef]crypto.PublicKey
}

// Manager validates and commits blocks, maintaining the canonical tip.
type Manager struct {
	mu sync.Mutex

	store       Store
	utxoMgr     *utxo.Manager
	scheduler   *slot.Scheduler
	checkpoints []Checkpoint

	tip     Tip
	orphans map[common.Hash]*types.Block
}

// NewManager creates a chain manager rooted at genesis (already
// committed to store by the caller).
func NewManager(store Store, utxoMgr *utxo.Manager, scheduler *slot.Scheduler, genesisTip Tip, checkpoints []Checkpoint) *Manager {
	return &Manager{
		store:       store,
		utxoMgr:     utxoMgr,
		scheduler:   scheduler,
		checkpoints: checkpoints,
		tip:         genesisTip,
		orphans:     make(map[common.Hash]*types.Block),
	}
}

// Tip returns the current canonical tip.
func (m *Manager) Tip() Tip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip
}

// ValidateBlock runs the ordered checks of spec.md §4.7 against parent
// (nil for a block claiming to extend genesis).
func (m *Manager) ValidateBlock(b *types.Block, parent *types.Block, ctx ValidationContext) error {
	if parent != nil && b.Header.PreviousHash != parent.Header.Hash() {
		return types.ErrUnknownParent
	}

	ts := time.Unix(b.Header.Timestamp, 0)
	slotNum := m.scheduler.SlotAt(ts)
	if !m.scheduler.ValidateTimestamp(ts, slotNum, b.Header.Height) {
		return types.ErrTimestampOutOfRange
	}

	if len(ctx.SlotReveals) > 0 && !slot.IsAcceptableProposer(ctx.SlotReveals, b.Header.LeaderAddress, ctx.FallbackRank) {
		return types.ErrInvalidLeader
	}

	if types.ComputeMerkleRoot(b.Transactions) != b.Header.MerkleRoot {
		return types.ErrInvalidBlock
	}

	if BlockReward(b.Header.Height) != b.Header.BlockReward {
		return types.ErrRewardMismatch
	}

	for _, tx := range b.Transactions {
		inValues := make([]uint64, len(tx.Inputs))
		pubKeys := make([]crypto.PublicKey, len(tx.Inputs))
		for i, in := range tx.Inputs {
			inValues[i] = ctx.InputValues[in.Ref]
			pubKeys[i] = ctx.InputOwners[in.Ref]
		}
		if err := tx.ValidateStructure(inValues, pubKeys); err != nil {
			return types.ErrInvalidTransaction
		}
	}

	for _, cp := range m.checkpoints {
		if cp.Height == b.Header.Height && cp.Hash != b.Header.Hash() {
			return types.ErrCheckpointViolation
		}
	}
	return nil
}

// Commit applies a validated block on top of the current tip (or
// buffers it as an orphan if its parent is unknown), then reorgs to it
// if it improves on chain_work (spec.md §4.7).
func (m *Manager) Commit(b *types.Block) error {
	m.mu.Lock()
	ready, err := m.commitLocked(b)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	for _, orphan := range ready {
		_ = m.Commit(orphan)
	}
	return nil
}

func (m *Manager) commitLocked(b *types.Block) ([]*types.Block, error) {
	hash := b.Header.Hash()
	if _, ok := m.store.GetBlock(hash); ok {
		return nil, nil
	}
	if b.Header.Height != 0 {
		if _, ok := m.store.GetBlock(b.Header.PreviousHash); !ok {
			if len(m.orphans) >= MaxOrphans {
				return nil, types.ErrInvalidBlock
			}
			m.orphans[hash] = b
			return nil, types.ErrUnknownParent
		}
	}

	if err := m.store.PutBlock(b); err != nil {
		return nil, err
	}
	candidate := Tip{Height: b.Header.Height, Hash: hash}
	if Better(candidate, m.tip) {
		if err := m.reorgTo(b); err != nil {
			return nil, err
		}
	}

	var ready []*types.Block
	for orphanHash, orphan := range m.orphans {
		if orphan.Header.PreviousHash == hash {
			delete(m.orphans, orphanHash)
			ready = append(ready, orphan)
		}
	}
	return ready, nil
}

// reorgTo switches the canonical chain to end at b, reverting blocks
// above the common ancestor in reverse order and reapplying the new
// chain's blocks in order. All-or-nothing: any failure restores the
// previous tip (spec.md §4.7).
func (m *Manager) reorgTo(b *types.Block) error {
	oldTip := m.tip
	oldTipBlock, ok := m.store.GetBlock(oldTip.Hash)
	if !ok {
		return m.applyForward(nil, b)
	}

	ancestor := m.findCommonAncestor(oldTipBlock, b)
	if ancestor == nil {
		return types.ErrUnknownParent
	}
	if oldTip.Height-ancestor.Height > MaxReorgDepth {
		return types.ErrReorgTooDeep
	}
	if oldTip.Height >= FinalizationDepth && ancestor.Height <= oldTip.Height-FinalizationDepth {
		return types.ErrReorgTooDeep
	}

	reverted, err := m.revertTo(oldTipBlock, ancestor)
	if err != nil {
		m.reapply(reverted, oldTip)
		return errors.Wrap(err, "chain: reorg revert failed, tip restored")
	}

	if err := m.applyForward(ancestor, b); err != nil {
		m.reapply(reverted, oldTip)
		return errors.Wrap(err, "chain: reorg apply failed, tip restored")
	}
	logger.Info("reorg complete", "from", oldTip.Hash.Hex(), "to", b.Header.Hash().Hex(), "ancestorHeight", ancestor.Height)
	return nil
}

// reapply restores a chain this manager reverted, used when a reorg
// attempt fails partway through and must restore the previous tip.
func (m *Manager) reapply(reverted []*types.Block, oldTip Tip) {
	for i := len(reverted) - 1; i >= 0; i-- {
		blk := reverted[i]
		for _, tx := range blk.Transactions {
			txid := tx.TxID()
			m.utxoMgr.TryLock(tx.InputRefs(), txid, 0)
			m.utxoMgr.MarkPending(txid, tx.InputRefs(), outputRefsOf(tx), tx.Outputs)
			m.utxoMgr.Commit(txid, tx.InputRefs(), blk.Header.Height)
		}
		_ = m.store.PutCanonical(blk.Header.Height, blk.Header.Hash())
	}
	m.tip = oldTip
}

func outputRefsOf(tx *types.Transaction) []common.OutputRef {
	txid := tx.TxID()
	refs := make([]common.OutputRef, len(tx.Outputs))
	for i := range tx.Outputs {
		refs[i] = common.OutputRef{TxID: txid, Index: uint32(i)}
	}
	return refs
}

// revertTo walks from tipBlock back to (excluding) ancestor, calling
// utxo.RevertTransaction for every transaction in reverse order, and
// returns the blocks it reverted in descending-height order (so
// reapply can walk them back in ascending order).
func (m *Manager) revertTo(tipBlock *types.Block, ancestor *types.Header) ([]*types.Block, error) {
	var reverted []*types.Block
	cur := tipBlock
	for cur.Header.Height > ancestor.Height {
		for i := len(cur.Transactions) - 1; i >= 0; i-- {
			tx := cur.Transactions[i]
			if err := m.utxoMgr.RevertTransaction(tx.TxID(), tx.InputRefs(), outputRefsOf(tx)); err != nil {
				return reverted, errors.Wrap(err, "chain: revert transaction")
			}
		}
		if err := m.store.DeleteCanonical(cur.Header.Height); err != nil {
			return reverted, err
		}
		reverted = append(reverted, cur)
		parent, ok := m.store.GetBlock(cur.Header.PreviousHash)
		if !ok {
			break
		}
		cur = parent
	}
	return reverted, nil
}

// applyForward commits the new chain's blocks from just above ancestor
// (nil meaning genesis) through b, in height order.
func (m *Manager) applyForward(ancestor *types.Header, b *types.Block) error {
	chainToApply := []*types.Block{b}
	cur := b
	for {
		if ancestor != nil && cur.Header.Height == ancestor.Height+1 {
			break
		}
		if cur.Header.Height == 0 {
			break
		}
		parent, ok := m.store.GetBlock(cur.Header.PreviousHash)
		if !ok {
			break
		}
		chainToApply = append([]*types.Block{parent}, chainToApply...)
		cur = parent
	}

	for _, blk := range chainToApply {
		for _, tx := range blk.Transactions {
			txid := tx.TxID()
			if err := m.utxoMgr.MarkPending(txid, tx.InputRefs(), outputRefsOf(tx), tx.Outputs); err != nil {
				return errors.Wrap(err, "chain: mark transaction pending")
			}
			if err := m.utxoMgr.Commit(txid, tx.InputRefs(), blk.Header.Height); err != nil {
				return errors.Wrap(err, "chain: commit transaction")
			}
		}
		if err := m.store.PutCanonical(blk.Header.Height, blk.Header.Hash()); err != nil {
			return err
		}
		m.tip = Tip{Height: blk.Header.Height, Hash: blk.Header.Hash()}
		m.buryFinalized(blk.Header.Height)
	}
	return nil
}

// buryFinalized promotes Spent entries at height tip-FINALIZATION_DEPTH
// to SpentFinalized (spec.md §4.2, §4.7).
func (m *Manager) buryFinalized(tipHeight uint64) {
	if tipHeight < FinalizationDepth {
		return
	}
	finalizeHeight := tipHeight - FinalizationDepth
	hash, ok := m.store.GetBlockByHeight(finalizeHeight)
	if !ok {
		return
	}
	blk, ok := m.store.GetBlock(hash)
	if !ok {
		return
	}
	for _, tx := range blk.Transactions {
		m.utxoMgr.Bury(tx.InputRefs(), finalizeHeight)
	}
}

// findCommonAncestor walks parent pointers from both tips, equalizing
// height first, then stepping back together until the hashes match —
// the same two-phase walk as the teacher's
// storage/database/db_manager.go FindCommonAncestor.
func (m *Manager) findCommonAncestor(a, b *types.Block) *types.Header {
	ah, bh := &a.Header, &b.Header
	for ah.Height > bh.Height {
		parent, ok := m.store.GetBlock(ah.PreviousHash)
		if !ok {
			return nil
		}
		ah = &parent.Header
	}
	for bh.Height > ah.Height {
		parent, ok := m.store.GetBlock(bh.PreviousHash)
		if !ok {
			return nil
		}
		bh = &parent.Header
	}
	for ah.Hash() != bh.Hash() {
		pa, ok := m.store.GetBlock(ah.PreviousHash)
		if !ok {
			return nil
		}
		pb, ok := m.store.GetBlock(bh.PreviousHash)
		if !ok {
			return nil
		}
		ah, bh = &pa.Header, &pb.Header
	}
	return ah
}
