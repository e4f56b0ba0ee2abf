package txpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
	"github.com/slotchain/slotchain/crypto"
)

func newFundedPool(t *testing.T) (*Pool, common.OutputRef, crypto.PublicKey, crypto.PrivateKey) {
	t.Helper()
	pk, sk, err := crypto.GenerateKey()
	require.NoError(t, err)

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	var genesisTxID common.Hash
	genesisTxID[0] = 1
	ref := common.OutputRef{TxID: genesisTxID, Index: 0}
	um.Insert(ref, types.Output{Value: 10_000_000_000, OwnerScript: crypto.Address(pk)})

	pool := New(um, 0, 0)
	return pool, ref, pk, sk
}

func buildTx(ref common.OutputRef, sk crypto.PrivateKey, inValue uint64, outputs []types.Output, fee uint64) *types.Transaction {
	tx := &types.Transaction{
		Version:  1,
		Inputs:   []types.TxInput{{Ref: ref}},
		Outputs:  outputs,
		Fee:      fee,
		Locktime: 0,
	}
	sigHash := tx.SigningHash()
	tx.Inputs[0].Signature = crypto.Sign(sk, sigHash.Bytes())
	return tx
}

func TestSubmitAndDrain(t *testing.T) {
	pool, ref, pk, sk := newFundedPool(t)
	tx := buildTx(ref, sk, 10_000_000_000, []types.Output{
		{Value: 9_000_000_000, OwnerScript: "bob"},
		{Value: 999_000_000, OwnerScript: "alice"},
	}, 1_000_000)

	err := pool.Submit(tx, []uint64{10_000_000_000}, []crypto.PublicKey{pk})
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Len())

	drained := pool.DrainFinalized(10)
	require.Len(t, drained, 1)
	assert.Equal(t, tx.TxID(), drained[0].TxID())
}

func TestSubmitRejectsDuplicateAndLowFee(t *testing.T) {
	pool, ref, pk, sk := newFundedPool(t)
	tx := buildTx(ref, sk, 10_000_000_000, []types.Output{
		{Value: 9_000_000_000, OwnerScript: "bob"},
		{Value: 999_000_000, OwnerScript: "alice"},
	}, 1_000_000)

	require.NoError(t, pool.Submit(tx, []uint64{10_000_000_000}, []crypto.PublicKey{pk}))
	err := pool.Submit(tx, []uint64{10_000_000_000}, []crypto.PublicKey{pk})
	assert.ErrorIs(t, err, types.ErrDuplicateTx)

	lowFee := buildTx(common.OutputRef{TxID: common.Hash{9}, Index: 0}, sk, 10, []types.Output{{Value: 5, OwnerScript: "x"}}, 1)
	err = pool.Submit(lowFee, []uint64{10}, []crypto.PublicKey{pk})
	assert.ErrorIs(t, err, types.ErrInsufficientFee)
}

func TestConflictsWith(t *testing.T) {
	pool, ref, pk, sk := newFundedPool(t)
	txA := buildTx(ref, sk, 10_000_000_000, []types.Output{{Value: 9_999_000_000, OwnerScript: "bob"}}, 1_000_000)
	require.NoError(t, pool.Submit(txA, []uint64{10_000_000_000}, []crypto.PublicKey{pk}))

	txB := buildTx(ref, sk, 10_000_000_000, []types.Output{{Value: 9_998_000_000, OwnerScript: "carol"}}, 2_000_000)
	// txB double-spends ref: admission fails since ref is locked by txA,
	// so Conflicts only knows about pooled transactions and reports none.
	err := pool.Submit(txB, []uint64{10_000_000_000}, []crypto.PublicKey{pk})
	assert.Error(t, err)

	conflicts := pool.Conflicts(txA)
	assert.Empty(t, conflicts, "txB never entered the pool, so no conflict entry exists for it")
}
