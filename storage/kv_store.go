// KVStore narrows Database to the six namespaces spec.md §6.1 names:
// blocks/<height>, block_by_hash/<hash>, utxo/<txid><index>, chain_meta,
// validators/<address>, peers/<address>. Key layout mirrors the
// teacher's accessors_chain.go-style prefix+big-endian-number scheme
// (headerPrefix, blockBodyPrefix, etc. in db_manager.go), collapsed
// onto one Database instead of the teacher's per-entry-type partitioned
// DBManager since this protocol has far fewer persisted entry kinds.
package storage

import (
	"encoding/binary"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
)

var (
	prefixBlockByHeight = []byte("blocks/")
	prefixBlockByHash   = []byte("block_by_hash/")
	prefixUTXO          = []byte("utxo/")
	prefixValidator     = []byte("validators/")
	prefixPeer          = []byte("peers/")
	keyChainMeta        = []byte("chain_meta")
)

// KVStore is the node's persistence layer: chain.Store plus validator,
// peer, and UTXO snapshot namespaces.
type KVStore struct {
	db Database
}

// NewKVStore wraps an opened Database.
func NewKVStore(db Database) *KVStore { return &KVStore{db: db} }

func heightKey(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return append(append([]byte{}, prefixBlockByHeight...), b[:]...)
}

func hashKey(hash common.Hash) []byte {
	return append(append([]byte{}, prefixBlockByHash...), hash.Bytes()...)
}

// PutBlock stores b under both its hash and height keys, plus the
// canonical height->hash mapping, in one atomic batch (spec.md §6.1:
// "all writes within a block commit are grouped into a single atomic
// batch").
func (s *KVStore) PutBlock(b *types.Block) error {
	encoded := types.EncodeBlock(b)
	batch := s.db.NewBatch()
	if err := batch.Put(hashKey(b.Header.Hash()), encoded); err != nil {
		return err
	}
	if err := batch.Put(heightKey(b.Header.Height), b.Header.Hash().Bytes()); err != nil {
		return err
	}
	return batch.Write()
}

// GetBlock looks up a block by its hash.
func (s *KVStore) GetBlock(hash common.Hash) (*types.Block, bool) {
	raw, err := s.db.Get(hashKey(hash))
	if err != nil {
		return nil, false
	}
	blk, err := types.DecodeBlock(raw)
	if err != nil {
		return nil, false
	}
	return blk, true
}

// GetBlockByHeight resolves the block hash stored at a height, which
// PutBlock records regardless of whether that height is canonical —
// callers needing the canonical chain should cross-check against
// ChainMeta's tip lineage, mirroring how the teacher's
// ReadCanonicalHash is a distinct call from WriteHeader/WriteBody.
func (s *KVStore) GetBlockByHeight(height uint64) (common.Hash, bool) {
	raw, err := s.db.Get(heightKey(height))
	if err != nil {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

// PutCanonical and DeleteCanonical record/remove the height->hash
// canonical mapping under the blocks/<height> key (the same key PutBlock
// writes), analogous
// to the teacher's WriteCanonicalHash/DeleteCanonicalHash.
func (s *KVStore) PutCanonical(height uint64, hash common.Hash) error {
	return s.db.Put(heightKey(height), hash.Bytes())
}

func (s *KVStore) DeleteCanonical(height uint64) error {
	return s.db.Delete(heightKey(height))
}

// ChainMeta is the (tip_hash, tip_height) record of spec.md §6.1.
type ChainMeta struct {
	TipHash   common.Hash
	TipHeight uint64
}

func (s *KVStore) PutChainMeta(m ChainMeta) error {
	var b [40]byte
	copy(b[:32], m.TipHash.Bytes())
	binary.BigEndian.PutUint64(b[32:], m.TipHeight)
	return s.db.Put(keyChainMeta, b[:])
}

func (s *KVStore) GetChainMeta() (ChainMeta, bool) {
	raw, err := s.db.Get(keyChainMeta)
	if err != nil || len(raw) != 40 {
		return ChainMeta{}, false
	}
	return ChainMeta{TipHash: common.BytesToHash(raw[:32]), TipHeight: binary.BigEndian.Uint64(raw[32:])}, true
}

func validatorKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixValidator...), []byte(addr)...)
}

func (s *KVStore) PutValidator(v *types.Validator) error {
	w := encodeValidator(v)
	return s.db.Put(validatorKey(v.Address), w)
}

func (s *KVStore) GetValidator(addr common.Address) (*types.Validator, bool) {
	raw, err := s.db.Get(validatorKey(addr))
	if err != nil {
		return nil, false
	}
	return decodeValidator(raw)
}

func peerKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixPeer...), []byte(addr)...)
}

// PeerRecord is the last-seen metadata of spec.md §6.1.
type PeerRecord struct {
	Address     common.Address
	NetAddr     string // dialable network address, e.g. "host:port"
	LastSeenAt  int64
}

func (s *KVStore) PutPeer(p PeerRecord) error {
	w := encodePeer(p)
	return s.db.Put(peerKey(p.Address), w)
}

func (s *KVStore) GetPeer(addr common.Address) (PeerRecord, bool) {
	raw, err := s.db.Get(peerKey(addr))
	if err != nil {
		return PeerRecord{}, false
	}
	return decodePeer(raw)
}

func utxoKey(ref common.OutputRef) []byte {
	k := make([]byte, 0, len(prefixUTXO)+36)
	k = append(k, prefixUTXO...)
	k = append(k, ref.TxID.Bytes()...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], ref.Index)
	return append(k, idx[:]...)
}

// PutUTXOSnapshot and GetUTXOSnapshot persist a single UTXO entry —
// used for periodic snapshotting of the in-memory utxo.Manager state,
// not for the hot read/write path (spec.md §6.1, §4.2: the manager
// itself is the source of truth during normal operation).
func (s *KVStore) PutUTXOSnapshot(ref common.OutputRef, entry types.UTXOEntry) error {
	return s.db.Put(utxoKey(ref), encodeUTXOEntry(entry))
}

func (s *KVStore) GetUTXOSnapshot(ref common.OutputRef) (types.UTXOEntry, bool) {
	raw, err := s.db.Get(utxoKey(ref))
	if err != nil {
		return types.UTXOEntry{}, false
	}
	return decodeUTXOEntry(raw)
}

func (s *KVStore) Close() { s.db.Close() }
