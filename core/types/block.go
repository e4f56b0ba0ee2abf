package types

import (
	"sort"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/pkg/rlp"
)

// TierCounts is the per-tier validator census embedded in the header
// (spec.md §3: "validator_tier_counts"), used by readers to sanity-check
// reward distribution without re-deriving the validator set.
type TierCounts struct {
	Bronze uint32
	Silver uint32
	Gold   uint32
}

// Header carries every field spec.md §3 names. The block id is the hash
// of this struct's canonical encoding.
type Header struct {
	Version          uint8
	Height           uint64
	PreviousHash     common.Hash
	MerkleRoot       common.Hash
	Timestamp        int64
	LeaderAddress    common.Address
	VRFOutput        common.Hash
	VRFProof         []byte
	ValidatorTiers   TierCounts
	AttestationRoot  common.Hash
	BlockReward      uint64
	LeaderSignature  []byte
}

func (h *Header) encode(withSignature bool) []byte {
	w := rlp.NewWriter()
	w.WriteUint8(h.Version)
	w.WriteUint64(h.Height)
	w.WriteBytes(h.PreviousHash.Bytes())
	w.WriteBytes(h.MerkleRoot.Bytes())
	w.WriteInt64(h.Timestamp)
	w.WriteString(string(h.LeaderAddress))
	w.WriteBytes(h.VRFOutput.Bytes())
	w.WriteBytes(h.VRFProof)
	w.WriteUint32(h.ValidatorTiers.Bronze)
	w.WriteUint32(h.ValidatorTiers.Silver)
	w.WriteUint32(h.ValidatorTiers.Gold)
	w.WriteBytes(h.AttestationRoot.Bytes())
	w.WriteUint64(h.BlockReward)
	if withSignature {
		w.WriteBytes(h.LeaderSignature)
	}
	return w.Bytes()
}

// SigningHash is what the leader signs: the header without its own
// signature field.
func (h *Header) SigningHash() common.Hash { return crypto.Hash(h.encode(false)) }

// Hash is the block id: the hash of the fully encoded (signed) header
// (spec.md §3: "The block id is the hash of the canonically encoded
// header").
func (h *Header) Hash() common.Hash { return crypto.Hash(h.encode(true)) }

// Block is a header plus its ordered transaction list and validator
// reward distribution.
type Block struct {
	Header       Header
	Transactions []*Transaction
	Rewards      map[common.Address]uint64
}

func (b *Block) Hash() common.Hash { return b.Header.Hash() }

// ComputeMerkleRoot hashes the ordered list of txids, sorted ascending
// by byte value, independent of arrival order — spec.md §3's
// determinism requirement for the merkle root.
func ComputeMerkleRoot(txs []*Transaction) common.Hash {
	if len(txs) == 0 {
		return common.Hash{}
	}
	ids := make([]common.Hash, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TxID()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return merkleFold(ids)
}

// merkleFold builds a binary merkle tree over pre-sorted leaves, moving
// up to log2(n) levels and duplicating the last node when a level is
// odd-sized (the conventional Bitcoin-style fold), hashing pairs with
// crypto.HashConcat for a single deterministic root.
func merkleFold(level []common.Hash) common.Hash {
	if len(level) == 1 {
		return level[0]
	}
	next := make([]common.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, crypto.HashConcat(level[i].Bytes(), level[i+1].Bytes()))
		} else {
			next = append(next, crypto.HashConcat(level[i].Bytes(), level[i].Bytes()))
		}
	}
	return merkleFold(next)
}

// SortedTxIDs returns the txids in the same ascending order used for the
// merkle root, for callers (e.g. the chain manager) that need to
// recompute or display it.
func SortedTxIDs(txs []*Transaction) []common.Hash {
	ids := make([]common.Hash, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TxID()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

func EncodeBlock(b *Block) []byte {
	w := rlp.NewWriter()
	w.WriteBytes(b.Header.encode(true))
	w.WriteUint32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.WriteBytes(tx.encode())
	}
	w.WriteUint32(uint32(len(b.Rewards)))
	addrs := make([]string, 0, len(b.Rewards))
	for a := range b.Rewards {
		addrs = append(addrs, string(a))
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		w.WriteString(a)
		w.WriteUint64(b.Rewards[common.Address(a)])
	}
	return w.Bytes()
}

func DecodeBlock(b []byte) (*Block, error) {
	r := rlp.NewReader(b)
	hdrBytes, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	hdr, err := decodeHeader(hdrBytes)
	if err != nil {
		return nil, err
	}
	ntx, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, ntx)
	for i := range txs {
		txBytes, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	nrw, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	rewards := make(map[common.Address]uint64, nrw)
	for i := uint32(0); i < nrw; i++ {
		addr, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		val, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		rewards[common.Address(addr)] = val
	}
	return &Block{Header: *hdr, Transactions: txs, Rewards: rewards}, nil
}

func decodeHeader(b []byte) (*Header, error) {
	r := rlp.NewReader(b)
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	height, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	prev, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	merkle, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	ts, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	leader, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	vrfOut, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	vrfProof, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	bronze, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	silver, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	gold, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	attest, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	reward, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	sig, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &Header{
		Version:         version,
		Height:          height,
		PreviousHash:    common.BytesToHash(prev),
		MerkleRoot:      common.BytesToHash(merkle),
		Timestamp:       ts,
		LeaderAddress:   common.Address(leader),
		VRFOutput:       common.BytesToHash(vrfOut),
		VRFProof:        vrfProof,
		ValidatorTiers:  TierCounts{Bronze: bronze, Silver: silver, Gold: gold},
		AttestationRoot: common.BytesToHash(attest),
		BlockReward:     reward,
		LeaderSignature: sig,
	}, nil
}
