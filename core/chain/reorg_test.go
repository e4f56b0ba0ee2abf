package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/consensus/slot"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
)

// buildChain commits n blocks on top of genesis, giving each a distinct
// hash by varying BlockReward (a convenient unique-per-call field), and
// returns them in order including genesis.
func buildChain(t *testing.T, mgr *Manager, genesis *types.Block, genesisTime time.Time, n int, salt uint64) []*types.Block {
	t.Helper()
	chain := []*types.Block{genesis}
	parent := genesis
	for i := 1; i <= n; i++ {
		blk := &types.Block{
			Header: types.Header{
				Version:      1,
				Height:       parent.Header.Height + 1,
				PreviousHash: parent.Header.Hash(),
				Timestamp:    genesisTime.Add(time.Duration(parent.Header.Height+1) * slot.DefaultSlotDuration).Unix(),
				BlockReward:  BlockReward(parent.Header.Height+1) + salt,
			},
			Rewards: map[common.Address]uint64{},
		}
		blk.Header.MerkleRoot = types.ComputeMerkleRoot(nil)
		require.NoError(t, mgr.Commit(blk))
		chain = append(chain, blk)
		parent = blk
	}
	return chain
}

// TestReorgSwitchesToGreaterWork implements spec.md §8 S3: a peer's
// chain with strictly greater chain_work past the local tip causes N to
// revert to the common ancestor and reapply the peer's blocks.
func TestReorgSwitchesToGreaterWork(t *testing.T) {
	genesis := makeGenesis()
	store := newMemStore()
	require.NoError(t, store.PutBlock(genesis))
	require.NoError(t, store.PutCanonical(0, genesis.Header.Hash()))
	genesisTime := time.Unix(genesis.Header.Timestamp, 0)

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	sched := slot.NewScheduler(genesisTime, slot.DefaultSlotDuration, slot.NewClock())
	mgr := NewManager(store, um, sched, Tip{Height: 0, Hash: genesis.Header.Hash()}, nil)

	local := buildChain(t, mgr, genesis, genesisTime, 3, 0)
	require.Equal(t, Tip{Height: 3, Hash: local[3].Header.Hash()}, mgr.Tip())

	fork := buildChain(t, mgr, genesis, genesisTime, 4, 1000)
	require.Equal(t, Tip{Height: 4, Hash: fork[4].Header.Hash()}, mgr.Tip(), "strictly greater chain_work must win")

	got, ok := store.GetBlockByHeight(2)
	require.True(t, ok)
	assert.Equal(t, fork[2].Header.Hash(), got, "canonical height 2 now resolves to the fork's block")
}

// TestDeepReorgRefused implements spec.md §8 S4: a peer's chain forking
// FinalizationDepth+1 blocks back is refused with ErrReorgTooDeep and
// must not alter the local chain, even though it is longer.
func TestDeepReorgRefused(t *testing.T) {
	genesis := makeGenesis()
	store := newMemStore()
	require.NoError(t, store.PutBlock(genesis))
	require.NoError(t, store.PutCanonical(0, genesis.Header.Hash()))
	genesisTime := time.Unix(genesis.Header.Timestamp, 0)

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	sched := slot.NewScheduler(genesisTime, slot.DefaultSlotDuration, slot.NewClock())
	mgr := NewManager(store, um, sched, Tip{Height: 0, Hash: genesis.Header.Hash()}, nil)

	buildChain(t, mgr, genesis, genesisTime, FinalizationDepth+1, 0)
	originalTip := mgr.Tip()
	require.Equal(t, uint64(FinalizationDepth+1), originalTip.Height)

	// The peer's fork also starts at genesis but is one block longer, so
	// it would win on chain_work alone were it not for the finalization
	// depth refusal — committed one block at a time, as blocks arrive
	// over the wire.
	fork := []*types.Block{genesis}
	parent := genesis
	var lastErr error
	for i := 1; i <= FinalizationDepth+2; i++ {
		blk := &types.Block{
			Header: types.Header{
				Version:      1,
				Height:       parent.Header.Height + 1,
				PreviousHash: parent.Header.Hash(),
				Timestamp:    genesisTime.Add(time.Duration(parent.Header.Height+1) * slot.DefaultSlotDuration).Unix(),
				BlockReward:  BlockReward(parent.Header.Height+1) + 999,
			},
			Rewards: map[common.Address]uint64{},
		}
		blk.Header.MerkleRoot = types.ComputeMerkleRoot(nil)
		lastErr = mgr.Commit(blk)
		fork = append(fork, blk)
		parent = blk
	}

	assert.ErrorIs(t, lastErr, types.ErrReorgTooDeep)
	assert.Equal(t, originalTip, mgr.Tip(), "a refused deep reorg must not alter the tip")
}
