package chain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/consensus/slot"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
)

type memStore struct {
	mu         sync.Mutex
	blocks     map[common.Hash]*types.Block
	canonical  map[uint64]common.Hash
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[common.Hash]*types.Block), canonical: make(map[uint64]common.Hash)}
}

func (s *memStore) PutBlock(b *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Header.Hash()] = b
	return nil
}

func (s *memStore) GetBlock(hash common.Hash) (*types.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[hash]
	return b, ok
}

func (s *memStore) GetBlockByHeight(height uint64) (common.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.canonical[height]
	return h, ok
}

func (s *memStore) PutCanonical(height uint64, hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canonical[height] = hash
	return nil
}

func (s *memStore) DeleteCanonical(height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.canonical, height)
	return nil
}

func TestBetterChainWork(t *testing.T) {
	var h1, h2 common.Hash
	h1[0] = 1
	h2[0] = 2
	assert.True(t, Better(Tip{Height: 5, Hash: h1}, Tip{Height: 4, Hash: h2}))
	assert.True(t, Better(Tip{Height: 5, Hash: h1}, Tip{Height: 5, Hash: h2}), "equal height: smaller hash wins")
	assert.False(t, Better(Tip{Height: 5, Hash: h2}, Tip{Height: 5, Hash: h1}))
}

func TestBlockRewardFormula(t *testing.T) {
	assert.Equal(t, uint64(BlockRewardGenesis), BlockReward(0))
	assert.Greater(t, BlockReward(1), uint64(0))
	assert.Greater(t, BlockReward(100), BlockReward(1))
}

func makeGenesis() *types.Block {
	hdr := types.Header{Version: 1, Height: 0, Timestamp: 1_700_000_000, BlockReward: BlockRewardGenesis}
	return &types.Block{Header: hdr, Rewards: map[common.Address]uint64{}}
}

func TestCommitExtendsTip(t *testing.T) {
	genesis := makeGenesis()
	store := newMemStore()
	require.NoError(t, store.PutBlock(genesis))
	require.NoError(t, store.PutCanonical(0, genesis.Header.Hash()))

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	genesisTime := time.Unix(genesis.Header.Timestamp, 0)
	sched := slot.NewScheduler(genesisTime, slot.DefaultSlotDuration, slot.NewClock())

	mgr := NewManager(store, um, sched, Tip{Height: 0, Hash: genesis.Header.Hash()}, nil)

	next := &types.Block{
		Header: types.Header{
			Version:      1,
			Height:       1,
			PreviousHash: genesis.Header.Hash(),
			Timestamp:    genesisTime.Add(slot.DefaultSlotDuration).Unix(),
			BlockReward:  BlockReward(1),
		},
		Rewards: map[common.Address]uint64{},
	}
	next.Header.MerkleRoot = types.ComputeMerkleRoot(nil)

	require.NoError(t, mgr.Commit(next))
	assert.Equal(t, Tip{Height: 1, Hash: next.Header.Hash()}, mgr.Tip())
}

func TestCommitBuffersOrphan(t *testing.T) {
	genesis := makeGenesis()
	store := newMemStore()
	require.NoError(t, store.PutBlock(genesis))

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	sched := slot.NewScheduler(time.Unix(genesis.Header.Timestamp, 0), slot.DefaultSlotDuration, slot.NewClock())
	mgr := NewManager(store, um, sched, Tip{Height: 0, Hash: genesis.Header.Hash()}, nil)

	var unknownParent common.Hash
	unknownParent[0] = 0xFF
	orphan := &types.Block{Header: types.Header{Height: 5, PreviousHash: unknownParent}}

	err := mgr.Commit(orphan)
	assert.ErrorIs(t, err, types.ErrUnknownParent)
}

func TestCheckpointViolationRejected(t *testing.T) {
	genesis := makeGenesis()
	store := newMemStore()
	require.NoError(t, store.PutBlock(genesis))
	require.NoError(t, store.PutCanonical(0, genesis.Header.Hash()))

	um := utxo.NewManager(4, 0, func() uint64 { return 0 })
	genesisTime := time.Unix(genesis.Header.Timestamp, 0)
	sched := slot.NewScheduler(genesisTime, slot.DefaultSlotDuration, slot.NewClock())

	var wrongHash common.Hash
	wrongHash[0] = 0xAB
	mgr := NewManager(store, um, sched, Tip{Height: 0, Hash: genesis.Header.Hash()}, []Checkpoint{{Height: 1, Hash: wrongHash}})

	next := &types.Block{
		Header: types.Header{
			Height:       1,
			PreviousHash: genesis.Header.Hash(),
			Timestamp:    genesisTime.Add(slot.DefaultSlotDuration).Unix(),
			BlockReward:  BlockReward(1),
			MerkleRoot:   types.ComputeMerkleRoot(nil),
		},
	}
	err := mgr.ValidateBlock(next, genesis, ValidationContext{})
	assert.ErrorIs(t, err, types.ErrCheckpointViolation)
}
