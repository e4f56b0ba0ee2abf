package utxo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
)

func testRef(b byte, idx uint32) common.OutputRef {
	var h common.Hash
	h[0] = b
	h[1] = b
	return common.OutputRef{TxID: h, Index: idx}
}

func newTestManager(slot uint64) *Manager {
	return NewManager(8, 0, func() uint64 { return slot })
}

func TestTryLockAndRelease(t *testing.T) {
	m := newTestManager(0)
	ref := testRef(1, 0)
	m.Insert(ref, types.Output{Value: 10, OwnerScript: "alice"})

	var txid common.Hash
	txid[0] = 0xAA
	assert.NoError(t, m.TryLock([]common.OutputRef{ref}, txid, 100))

	e, ok := m.Lookup(ref)
	assert.True(t, ok)
	assert.Equal(t, types.StatusLocked, e.Status)

	var other common.Hash
	other[0] = 0xBB
	assert.ErrorIs(t, m.TryLock([]common.OutputRef{ref}, other, 100), types.ErrAlreadyLocked)

	m.Release([]common.OutputRef{ref}, txid)
	e, _ = m.Lookup(ref)
	assert.Equal(t, types.StatusUnspent, e.Status)
}

func TestTryLockAllOrNothing(t *testing.T) {
	m := newTestManager(0)
	refA := testRef(1, 0)
	refB := testRef(2, 0)
	m.Insert(refA, types.Output{Value: 1, OwnerScript: "a"})
	// refB deliberately not inserted: TryLock must fail without touching refA.

	var txid common.Hash
	txid[0] = 1
	err := m.TryLock([]common.OutputRef{refA, refB}, txid, 100)
	assert.Error(t, err)

	e, _ := m.Lookup(refA)
	assert.Equal(t, types.StatusUnspent, e.Status, "refA must be untouched when refB fails")
}

func TestLockExpiryReclaim(t *testing.T) {
	slot := uint64(10)
	m := newTestManager(slot)
	ref := testRef(3, 0)
	m.Insert(ref, types.Output{Value: 5, OwnerScript: "a"})

	var txid common.Hash
	txid[0] = 9
	assert.NoError(t, m.TryLock([]common.OutputRef{ref}, txid, 5)) // expires at slot 5

	e, _ := m.Lookup(ref)
	assert.Equal(t, types.StatusUnspent, e.Status, "lock past its expiry slot reclaims lazily on access")
}

func TestFullLifecycle(t *testing.T) {
	m := newTestManager(0)
	in := testRef(4, 0)
	m.Insert(in, types.Output{Value: 100, OwnerScript: "alice"})

	var txid common.Hash
	txid[0] = 0x10
	out := common.OutputRef{TxID: txid, Index: 0}

	assert.NoError(t, m.TryLock([]common.OutputRef{in}, txid, 1000))
	assert.NoError(t, m.MarkPending(txid, []common.OutputRef{in}, []common.OutputRef{out}, []types.Output{{Value: 100, OwnerScript: "bob"}}))

	e, _ := m.Lookup(in)
	assert.Equal(t, types.StatusSpentPending, e.Status)
	o, ok := m.Lookup(out)
	assert.True(t, ok)
	assert.Equal(t, types.StatusUnspent, o.Status)

	assert.NoError(t, m.Commit(txid, []common.OutputRef{in}, 7))
	e, _ = m.Lookup(in)
	assert.Equal(t, types.StatusSpent, e.Status)
	assert.Equal(t, uint64(7), e.BlockHeight)

	m.Bury([]common.OutputRef{in}, 7)
	e, _ = m.Lookup(in)
	assert.Equal(t, types.StatusSpentFinalized, e.Status)
}

func TestRevertTransactionRejectsFinalized(t *testing.T) {
	m := newTestManager(0)
	in := testRef(5, 0)
	m.Insert(in, types.Output{Value: 1, OwnerScript: "a"})

	var txid common.Hash
	txid[0] = 0x20
	out := common.OutputRef{TxID: txid, Index: 0}

	assert.NoError(t, m.TryLock([]common.OutputRef{in}, txid, 1000))
	assert.NoError(t, m.MarkPending(txid, []common.OutputRef{in}, []common.OutputRef{out}, []types.Output{{Value: 1, OwnerScript: "b"}}))
	assert.NoError(t, m.Commit(txid, []common.OutputRef{in}, 3))
	m.Bury([]common.OutputRef{in}, 3)

	err := m.RevertTransaction(txid, []common.OutputRef{in}, []common.OutputRef{out})
	assert.ErrorIs(t, err, types.ErrReorgTooDeep)
}

func TestIsUnspentReadThroughCache(t *testing.T) {
	m := NewManager(4, 1<<20, func() uint64 { return 0 })
	ref := testRef(6, 0)
	assert.False(t, m.IsUnspent(ref))

	m.Insert(ref, types.Output{Value: 1, OwnerScript: "a"})
	assert.True(t, m.IsUnspent(ref))

	var txid common.Hash
	txid[0] = 0x30
	assert.NoError(t, m.TryLock([]common.OutputRef{ref}, txid, 1000))
	assert.False(t, m.IsUnspent(ref), "cache entry must be invalidated by the lock transition")
}
