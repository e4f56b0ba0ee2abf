package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/consensus/sampling"
	"github.com/slotchain/slotchain/consensus/slot"
	"github.com/slotchain/slotchain/core/chain"
	"github.com/slotchain/slotchain/core/txpool"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
	"github.com/slotchain/slotchain/core/validator"
	"github.com/slotchain/slotchain/crypto"
)

// signedSpend builds a one-input transaction spending ref (owned by sk)
// into the given outputs, fee filling the remainder.
func signedSpend(sk crypto.PrivateKey, ref common.OutputRef, outputs []types.Output, fee uint64) *types.Transaction {
	tx := &types.Transaction{
		Version:  1,
		Inputs:   []types.TxInput{{Ref: ref}},
		Outputs:  outputs,
		Fee:      fee,
		Locktime: 0,
	}
	sig := crypto.Sign(sk, tx.SigningHash().Bytes())
	tx.Inputs[0].Signature = sig
	return tx
}

// TestSingleSlotBlockWithOneTransaction implements spec.md §8 S1: a
// genesis output is spent by one transaction, admitted to the pool,
// included in the height-1 block (merkle root = txid(T1)), and its
// spent input only becomes SpentFinalized FinalizationDepth blocks later.
func TestSingleSlotBlockWithOneTransaction(t *testing.T) {
	alicePub, aliceSK, err := crypto.GenerateKey()
	require.NoError(t, err)
	alice := crypto.Address(alicePub)
	bob := common.Address("bob")

	genesisValue := uint64(10_000_000_000)
	genesis := &types.Block{
		Header:  types.Header{Version: 1, Height: 0, Timestamp: 0},
		Rewards: map[common.Address]uint64{alice: genesisValue},
	}
	o0 := common.OutputRef{TxID: genesis.Hash(), Index: 0}

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	creditRewards(um, genesis.Hash(), genesis.Rewards)

	t1 := signedSpend(aliceSK, o0,
		[]types.Output{
			{Value: 9_000_000_000, OwnerScript: bob},
			{Value: 999_000_000, OwnerScript: alice},
		},
		1_000_000,
	)

	pool := txpool.New(um, 0, 0)
	entry, ok := um.Lookup(o0)
	require.True(t, ok)
	require.NoError(t, pool.Submit(t1, []uint64{entry.Output.Value}, []crypto.PublicKey{alicePub}))

	drained := pool.DrainFinalized(10)
	require.Len(t, drained, 1)
	assert.Equal(t, t1.TxID(), drained[0].TxID())
	assert.Equal(t, t1.TxID(), types.ComputeMerkleRoot(drained))

	store := openTestKV(t)
	defer store.Close()
	require.NoError(t, store.PutBlock(genesis))
	require.NoError(t, store.PutCanonical(0, genesis.Hash()))
	genesisTime := time.Unix(0, 0)
	sched := slot.NewScheduler(genesisTime, slot.DefaultSlotDuration, slot.NewClock())
	mgr := chain.NewManager(store, um, sched, chain.Tip{Height: 0, Hash: genesis.Hash()}, nil)

	blk := &types.Block{
		Header: types.Header{
			Version:      1,
			Height:       1,
			PreviousHash: genesis.Hash(),
			Timestamp:    genesisTime.Add(slot.DefaultSlotDuration).Unix(),
			MerkleRoot:   types.ComputeMerkleRoot(drained),
			BlockReward:  chain.BlockReward(1),
		},
		Transactions: drained,
		Rewards:      map[common.Address]uint64{},
	}
	require.NoError(t, mgr.Commit(blk))

	bobRef := common.OutputRef{TxID: t1.TxID(), Index: 0}
	bobEntry, ok := um.Lookup(bobRef)
	require.True(t, ok)
	assert.Equal(t, types.StatusUnspent, bobEntry.Status)

	o0Entry, ok := um.Lookup(o0)
	require.True(t, ok)
	assert.NotEqual(t, types.StatusSpentFinalized, o0Entry.Status, "O0 must not be finalized before FinalizationDepth has elapsed")

	parent := blk
	for h := uint64(2); h <= chain.FinalizationDepth+1; h++ {
		next := &types.Block{
			Header: types.Header{
				Version:      1,
				Height:       h,
				PreviousHash: parent.Header.Hash(),
				Timestamp:    genesisTime.Add(time.Duration(h) * slot.DefaultSlotDuration).Unix(),
				MerkleRoot:   types.ComputeMerkleRoot(nil),
				BlockReward:  chain.BlockReward(h),
			},
			Rewards: map[common.Address]uint64{},
		}
		require.NoError(t, mgr.Commit(next))
		parent = next
	}

	o0Entry, ok = um.Lookup(o0)
	require.True(t, ok)
	assert.Equal(t, types.StatusSpentFinalized, o0Entry.Status, "O0 must be SpentFinalized once FinalizationDepth blocks have elapsed")
}

// fixedQuerier answers every ConsensusQuery with a fixed preference,
// simulating a validator committee that has already switched its vote
// (spec.md §8 S2: "Exactly one reaches acceptance").
type fixedQuerier struct{ pref common.Hash }

func (f fixedQuerier) QueryPreference(ctx context.Context, v *types.Validator, conflictSet []common.Hash) (common.Hash, bool) {
	return f.pref, true
}

// TestConflictingTransactionsResolveToOneWinner implements spec.md §8
// S2: two transactions spend the same output; Snowball consensus
// settles on exactly one winner.
func TestConflictingTransactionsResolveToOneWinner(t *testing.T) {
	alicePub, aliceSK, err := crypto.GenerateKey()
	require.NoError(t, err)
	alice := crypto.Address(alicePub)
	bob := common.Address("bob")
	carol := common.Address("carol")

	var genesisHash common.Hash
	genesisHash[0] = 0x01
	o0 := common.OutputRef{TxID: genesisHash, Index: 0}

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	um.Insert(o0, types.Output{Value: 10_000_000_000, OwnerScript: alice})

	ta := signedSpend(aliceSK, o0, []types.Output{{Value: 9_999_000_000, OwnerScript: bob}}, 1_000_000)
	tb := signedSpend(aliceSK, o0, []types.Output{{Value: 9_999_000_000, OwnerScript: carol}}, 1_000_000)
	require.NotEqual(t, ta.TxID(), tb.TxID())
	assert.True(t, ta.ConflictsWith(tb))

	registry := validator.NewRegistry()
	for i := 0; i < 3; i++ {
		pub, _, err := crypto.GenerateKey()
		require.NoError(t, err)
		registry.Register(&types.Validator{Address: crypto.Address(pub), PublicKey: pub, Tier: types.TierGold, Active: true}, 0)
	}

	_, vrfSK, err := crypto.GenerateKey()
	require.NoError(t, err)

	querier := fixedQuerier{pref: ta.TxID()}
	params := sampling.Params{K: 3, Alpha: 2, Beta: 3, MaxRounds: 20, QueryTimeout: time.Second}
	engine := sampling.New(params, registry, querier, vrfSK)

	outcome, err := engine.Run(context.Background(), tb.TxID(), []common.Hash{ta.TxID()})
	require.NoError(t, err)
	assert.Equal(t, ta.TxID(), outcome.Winner, "the committee's held preference must be the eventual winner regardless of which side called Run")
}
