package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
	"github.com/slotchain/slotchain/storage"
)

func openTestKV(t *testing.T) *storage.KVStore {
	t.Helper()
	db, err := storage.Open(storage.LevelDB, t.TempDir(), 0, 0)
	require.NoError(t, err)
	return storage.NewKVStore(db)
}

func TestCreditRewardsIsDeterministicByAddress(t *testing.T) {
	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	var blockHash common.Hash
	blockHash[0] = 0x01

	rewards := map[common.Address]uint64{
		"zzz": 10,
		"aaa": 20,
	}
	creditRewards(um, blockHash, rewards)

	refZero := common.OutputRef{TxID: blockHash, Index: 0}
	entry, ok := um.Lookup(refZero)
	require.True(t, ok)
	assert.Equal(t, common.Address("aaa"), entry.Output.OwnerScript, "lowest address sorts first, so index 0 must be its reward")
	assert.Equal(t, uint64(20), entry.Output.Value)

	refOne := common.OutputRef{TxID: blockHash, Index: 1}
	entry, ok = um.Lookup(refOne)
	require.True(t, ok)
	assert.Equal(t, common.Address("zzz"), entry.Output.OwnerScript)
}

func TestSetupGenesisPersistsOnFreshStore(t *testing.T) {
	kv := openTestKV(t)
	defer kv.Close()
	um := utxo.NewManager(4, 0, func() uint64 { return 0 })

	genesis := &types.Block{
		Header:  types.Header{Version: 1, Height: 0, Timestamp: 1_700_000_000},
		Rewards: map[common.Address]uint64{"validator-a": 1000},
	}

	tip, err := setupGenesis(kv, um, genesis)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tip.Height)
	assert.Equal(t, genesis.Hash(), tip.Hash)

	meta, ok := kv.GetChainMeta()
	require.True(t, ok)
	assert.Equal(t, tip.Hash, meta.TipHash)

	entry, ok := um.Lookup(common.OutputRef{TxID: genesis.Hash(), Index: 0})
	require.True(t, ok)
	assert.Equal(t, uint64(1000), entry.Output.Value)
}

func TestSetupGenesisResumesFromExistingMeta(t *testing.T) {
	kv := openTestKV(t)
	defer kv.Close()
	um := utxo.NewManager(4, 0, func() uint64 { return 0 })

	genesis := &types.Block{Header: types.Header{Version: 1, Height: 0}, Rewards: map[common.Address]uint64{}}
	firstTip, err := setupGenesis(kv, um, genesis)
	require.NoError(t, err)

	secondTip, err := setupGenesis(kv, um, nil)
	require.NoError(t, err)
	assert.Equal(t, firstTip, secondTip, "a second call on an initialized store must resume, not require genesis again")
}

func TestSetupGenesisRequiresBlockOnEmptyStore(t *testing.T) {
	kv := openTestKV(t)
	defer kv.Close()
	um := utxo.NewManager(4, 0, func() uint64 { return 0 })

	_, err := setupGenesis(kv, um, nil)
	assert.Error(t, err)
}
