package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
)

func TestPutGetBlock(t *testing.T) {
	store := NewKVStore(NewMemoryDatabase())
	blk := &types.Block{
		Header:  types.Header{Version: 1, Height: 3, BlockReward: 1},
		Rewards: map[common.Address]uint64{},
	}
	require.NoError(t, store.PutBlock(blk))

	got, ok := store.GetBlock(blk.Header.Hash())
	require.True(t, ok)
	assert.Equal(t, blk.Header.Height, got.Header.Height)

	hash, ok := store.GetBlockByHeight(3)
	require.True(t, ok)
	assert.Equal(t, blk.Header.Hash(), hash)
}

func TestChainMetaRoundTrip(t *testing.T) {
	store := NewKVStore(NewMemoryDatabase())
	_, ok := store.GetChainMeta()
	assert.False(t, ok)

	var h common.Hash
	h[0] = 0x42
	require.NoError(t, store.PutChainMeta(ChainMeta{TipHash: h, TipHeight: 10}))

	meta, ok := store.GetChainMeta()
	require.True(t, ok)
	assert.Equal(t, uint64(10), meta.TipHeight)
	assert.Equal(t, h, meta.TipHash)
}

func TestValidatorRoundTrip(t *testing.T) {
	store := NewKVStore(NewMemoryDatabase())
	v := &types.Validator{Address: "alice", PublicKey: []byte{1, 2, 3}, Tier: types.TierGold, LastHeartbeat: 5, Active: true}
	require.NoError(t, store.PutValidator(v))

	got, ok := store.GetValidator("alice")
	require.True(t, ok)
	assert.Equal(t, v.Tier, got.Tier)
	assert.Equal(t, v.LastHeartbeat, got.LastHeartbeat)
	assert.True(t, got.Active)
}

func TestUTXOSnapshotRoundTrip(t *testing.T) {
	store := NewKVStore(NewMemoryDatabase())
	ref := common.OutputRef{TxID: common.Hash{1}, Index: 2}
	entry := types.UTXOEntry{Output: types.Output{Value: 99, OwnerScript: "bob"}, Status: types.StatusSpent, BlockHeight: 7}
	require.NoError(t, store.PutUTXOSnapshot(ref, entry))

	got, ok := store.GetUTXOSnapshot(ref)
	require.True(t, ok)
	assert.Equal(t, types.StatusSpent, got.Status)
	assert.Equal(t, uint64(99), got.Output.Value)
}
