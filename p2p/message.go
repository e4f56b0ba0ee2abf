// Package p2p implements the C8 peer transport & dispatcher of spec.md
// §4.8: one connection per peer, a version/network_id/nonce handshake,
// the wire message kinds of §6.2, a dedup filter, per-peer per-category
// rate limiting with a relaxed budget for fork resolution, a trusted
// whitelist, and gossip relay.
//
// Message framing and the handshake/dispatch split are grounded on the
// teacher's networks/p2p/peer.go and consensus/istanbul/backend/handler.go
// (HandleMsg's decode-then-dedup-then-post pattern), adapted from a
// devp2p multi-protocol multiplexer onto this protocol's flat message
// set.
package p2p

import (
	"errors"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/pkg/rlp"
)

// Kind is the wire message discriminator of spec.md §6.2.
type Kind uint8

const (
	KindHandshake Kind = iota
	KindPing
	KindPong
	KindGetPeers
	KindPeersResponse
	KindGetChainTip
	KindChainTipResponse
	KindGetBlocks
	KindBlocksResponse
	KindGetBlockHash
	KindBlockHashResponse
	KindBlockAnnouncement
	KindTransaction
	KindConsensusQuery
	KindConsensusQueryResponse
	KindGetMasternodes
	KindMasternodesResponse
	KindHeartbeat
	// KindLeaderReveal is not in spec.md §6.2's literal table: it exists
	// because VRF output is only computable by the secret-key holder, so
	// "every honest node computes the same leader" (spec.md §4.6) is only
	// achievable once every validator's reveal for the slot has been
	// broadcast and collected — see consensus/slot.Reveal and DESIGN.md's
	// Open Question resolution for §4.6.
	KindLeaderReveal
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "Handshake"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindGetPeers:
		return "GetPeers"
	case KindPeersResponse:
		return "PeersResponse"
	case KindGetChainTip:
		return "GetChainTip"
	case KindChainTipResponse:
		return "ChainTipResponse"
	case KindGetBlocks:
		return "GetBlocks"
	case KindBlocksResponse:
		return "BlocksResponse"
	case KindGetBlockHash:
		return "GetBlockHash"
	case KindBlockHashResponse:
		return "BlockHashResponse"
	case KindBlockAnnouncement:
		return "BlockAnnouncement"
	case KindTransaction:
		return "Transaction"
	case KindConsensusQuery:
		return "ConsensusQuery"
	case KindConsensusQueryResponse:
		return "ConsensusQueryResponse"
	case KindGetMasternodes:
		return "GetMasternodes"
	case KindMasternodesResponse:
		return "MasternodesResponse"
	case KindHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}

// IsForkResolution reports whether k is one of the range/hash lookup
// kinds spec.md §4.8 exempts from the normal rate limit budget during
// fork recovery.
func (k Kind) IsForkResolution() bool {
	switch k {
	case KindGetChainTip, KindChainTipResponse, KindGetBlocks, KindBlocksResponse,
		KindGetBlockHash, KindBlockHashResponse:
		return true
	default:
		return false
	}
}

// MaxBlocksPerRange caps a single BlocksResponse (spec.md §5 resource caps).
const MaxBlocksPerRange = 100

// MaxMessageSize is the wire-level cap on a single encoded message
// (spec.md §5: "max message size 10 MB").
const MaxMessageSize = 10 * 1024 * 1024

var ErrMessageTooLarge = errors.New("p2p: message exceeds MaxMessageSize")

// Message is the decoded wire envelope: a kind plus its RLP-encoded payload.
type Message struct {
	Kind    Kind
	Payload []byte
}

func EncodeMessage(m Message) []byte {
	w := rlp.NewWriter()
	w.WriteUint8(uint8(m.Kind))
	w.WriteBytes(m.Payload)
	return w.Bytes()
}

func DecodeMessage(b []byte) (Message, error) {
	r := rlp.NewReader(b)
	kind, err := r.ReadUint8()
	if err != nil {
		return Message{}, err
	}
	payload, err := r.ReadBytes()
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: Kind(kind), Payload: payload}, nil
}

// HandshakePayload is exchanged as the mandatory first message
// (spec.md §4.8, §6.2).
type HandshakePayload struct {
	Version       uint8
	NetworkID     string
	Nonce         string // hashicorp/go-uuid-generated, see NewNonce
	Address       common.Address
	AnnouncedAddr string
}

func EncodeHandshake(h HandshakePayload) []byte {
	w := rlp.NewWriter()
	w.WriteUint8(h.Version)
	w.WriteString(h.NetworkID)
	w.WriteString(h.Nonce)
	w.WriteString(string(h.Address))
	w.WriteString(h.AnnouncedAddr)
	return w.Bytes()
}

func DecodeHandshake(b []byte) (HandshakePayload, error) {
	r := rlp.NewReader(b)
	version, err := r.ReadUint8()
	if err != nil {
		return HandshakePayload{}, err
	}
	netID, err := r.ReadString()
	if err != nil {
		return HandshakePayload{}, err
	}
	nonce, err := r.ReadString()
	if err != nil {
		return HandshakePayload{}, err
	}
	addr, err := r.ReadString()
	if err != nil {
		return HandshakePayload{}, err
	}
	announced, err := r.ReadString()
	if err != nil {
		return HandshakePayload{}, err
	}
	return HandshakePayload{Version: version, NetworkID: netID, Nonce: nonce, Address: common.Address(addr), AnnouncedAddr: announced}, nil
}

// PingPongPayload carries the echoed nonce for Ping/Pong.
type PingPongPayload struct{ Nonce uint64 }

func EncodePingPong(p PingPongPayload) []byte {
	w := rlp.NewWriter()
	w.WriteUint64(p.Nonce)
	return w.Bytes()
}

func DecodePingPong(b []byte) (PingPongPayload, error) {
	r := rlp.NewReader(b)
	n, err := r.ReadUint64()
	if err != nil {
		return PingPongPayload{}, err
	}
	return PingPongPayload{Nonce: n}, nil
}

// ChainTipPayload answers GetChainTip.
type ChainTipPayload struct {
	Height uint64
	Hash   common.Hash
}

func EncodeChainTip(p ChainTipPayload) []byte {
	w := rlp.NewWriter()
	w.WriteUint64(p.Height)
	w.WriteBytes(p.Hash.Bytes())
	return w.Bytes()
}

func DecodeChainTip(b []byte) (ChainTipPayload, error) {
	r := rlp.NewReader(b)
	h, err := r.ReadUint64()
	if err != nil {
		return ChainTipPayload{}, err
	}
	hash, err := r.ReadBytes()
	if err != nil {
		return ChainTipPayload{}, err
	}
	return ChainTipPayload{Height: h, Hash: common.BytesToHash(hash)}, nil
}

// GetBlocksPayload requests the half-open height range [Start, End).
type GetBlocksPayload struct {
	Start uint64
	End   uint64
}

func EncodeGetBlocks(p GetBlocksPayload) []byte {
	w := rlp.NewWriter()
	w.WriteUint64(p.Start)
	w.WriteUint64(p.End)
	return w.Bytes()
}

func DecodeGetBlocks(b []byte) (GetBlocksPayload, error) {
	r := rlp.NewReader(b)
	start, err := r.ReadUint64()
	if err != nil {
		return GetBlocksPayload{}, err
	}
	end, err := r.ReadUint64()
	if err != nil {
		return GetBlocksPayload{}, err
	}
	return GetBlocksPayload{Start: start, End: end}, nil
}

func EncodeBlocksResponse(blocks []*types.Block) []byte {
	w := rlp.NewWriter()
	w.WriteUint32(uint32(len(blocks)))
	for _, b := range blocks {
		w.WriteBytes(types.EncodeBlock(b))
	}
	return w.Bytes()
}

func DecodeBlocksResponse(b []byte) ([]*types.Block, error) {
	r := rlp.NewReader(b)
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	blocks := make([]*types.Block, n)
	for i := range blocks {
		raw, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		blk, err := types.DecodeBlock(raw)
		if err != nil {
			return nil, err
		}
		blocks[i] = blk
	}
	return blocks, nil
}

func EncodeGetBlockHash(height uint64) []byte {
	w := rlp.NewWriter()
	w.WriteUint64(height)
	return w.Bytes()
}

func DecodeGetBlockHash(b []byte) (uint64, error) {
	r := rlp.NewReader(b)
	return r.ReadUint64()
}

// BlockHashResponsePayload answers GetBlockHash; Found is false when the
// responder has no block at that height ("Option<hash>" in spec.md §6.2).
type BlockHashResponsePayload struct {
	Found bool
	Hash  common.Hash
}

func EncodeBlockHashResponse(p BlockHashResponsePayload) []byte {
	w := rlp.NewWriter()
	w.WriteBool(p.Found)
	w.WriteBytes(p.Hash.Bytes())
	return w.Bytes()
}

func DecodeBlockHashResponse(b []byte) (BlockHashResponsePayload, error) {
	r := rlp.NewReader(b)
	found, err := r.ReadBool()
	if err != nil {
		return BlockHashResponsePayload{}, err
	}
	hash, err := r.ReadBytes()
	if err != nil {
		return BlockHashResponsePayload{}, err
	}
	return BlockHashResponsePayload{Found: found, Hash: common.BytesToHash(hash)}, nil
}

func EncodeTransaction(tx *types.Transaction) []byte {
	return types.EncodeTransaction(tx)
}

func DecodeTransactionMessage(b []byte) (*types.Transaction, error) {
	return types.DecodeTransaction(b)
}

// ConsensusQueryPayload is the sampling engine's over-the-wire poll
// (consensus/sampling.Querier), spec.md §6.2.
type ConsensusQueryPayload struct {
	TxID  common.Hash
	Round uint32
}

func EncodeConsensusQuery(p ConsensusQueryPayload) []byte {
	w := rlp.NewWriter()
	w.WriteBytes(p.TxID.Bytes())
	w.WriteUint32(p.Round)
	return w.Bytes()
}

func DecodeConsensusQuery(b []byte) (ConsensusQueryPayload, error) {
	r := rlp.NewReader(b)
	txid, err := r.ReadBytes()
	if err != nil {
		return ConsensusQueryPayload{}, err
	}
	round, err := r.ReadUint32()
	if err != nil {
		return ConsensusQueryPayload{}, err
	}
	return ConsensusQueryPayload{TxID: common.BytesToHash(txid), Round: round}, nil
}

// ConsensusQueryResponsePayload carries the responder's current
// preference among the conflict set, or Found=false if it has none yet.
type ConsensusQueryResponsePayload struct {
	Found      bool
	Preference common.Hash
}

func EncodeConsensusQueryResponse(p ConsensusQueryResponsePayload) []byte {
	w := rlp.NewWriter()
	w.WriteBool(p.Found)
	w.WriteBytes(p.Preference.Bytes())
	return w.Bytes()
}

func DecodeConsensusQueryResponse(b []byte) (ConsensusQueryResponsePayload, error) {
	r := rlp.NewReader(b)
	found, err := r.ReadBool()
	if err != nil {
		return ConsensusQueryResponsePayload{}, err
	}
	pref, err := r.ReadBytes()
	if err != nil {
		return ConsensusQueryResponsePayload{}, err
	}
	return ConsensusQueryResponsePayload{Found: found, Preference: common.BytesToHash(pref)}, nil
}

// HeartbeatPayload is the validator liveness broadcast of spec.md §4.?/§6.2.
type HeartbeatPayload struct {
	Address   common.Address
	Slot      uint64
	Signature []byte
}

func EncodeHeartbeat(p HeartbeatPayload) []byte {
	w := rlp.NewWriter()
	w.WriteString(string(p.Address))
	w.WriteUint64(p.Slot)
	w.WriteBytes(p.Signature)
	return w.Bytes()
}

func DecodeHeartbeat(b []byte) (HeartbeatPayload, error) {
	r := rlp.NewReader(b)
	addr, err := r.ReadString()
	if err != nil {
		return HeartbeatPayload{}, err
	}
	slot, err := r.ReadUint64()
	if err != nil {
		return HeartbeatPayload{}, err
	}
	sig, err := r.ReadBytes()
	if err != nil {
		return HeartbeatPayload{}, err
	}
	return HeartbeatPayload{Address: common.Address(addr), Slot: slot, Signature: sig}, nil
}

// EncodeLeaderReveal/DecodeLeaderReveal carry one validator's VRF
// reveal for a slot (consensus/slot.Reveal plus the slot number it was
// computed for) without this package importing consensus/slot —
// server-level code converts to/from that type.
func EncodeLeaderReveal(slotNum uint64, validator common.Address, output common.Hash, proof []byte) []byte {
	w := rlp.NewWriter()
	w.WriteUint64(slotNum)
	w.WriteString(string(validator))
	w.WriteBytes(output.Bytes())
	w.WriteBytes(proof)
	return w.Bytes()
}

func DecodeLeaderReveal(b []byte) (slotNum uint64, validator common.Address, output common.Hash, proof []byte, err error) {
	r := rlp.NewReader(b)
	if slotNum, err = r.ReadUint64(); err != nil {
		return
	}
	var addrStr string
	if addrStr, err = r.ReadString(); err != nil {
		return
	}
	validator = common.Address(addrStr)
	var outBytes []byte
	if outBytes, err = r.ReadBytes(); err != nil {
		return
	}
	output = common.BytesToHash(outBytes)
	proof, err = r.ReadBytes()
	return
}

// PeersResponsePayload answers GetPeers with dialable addresses.
type PeersResponsePayload struct {
	Addrs []string
}

func EncodePeersResponse(p PeersResponsePayload) []byte {
	w := rlp.NewWriter()
	w.WriteUint32(uint32(len(p.Addrs)))
	for _, a := range p.Addrs {
		w.WriteString(a)
	}
	return w.Bytes()
}

func DecodePeersResponse(b []byte) (PeersResponsePayload, error) {
	r := rlp.NewReader(b)
	n, err := r.ReadUint32()
	if err != nil {
		return PeersResponsePayload{}, err
	}
	addrs := make([]string, n)
	for i := range addrs {
		a, err := r.ReadString()
		if err != nil {
			return PeersResponsePayload{}, err
		}
		addrs[i] = a
	}
	return PeersResponsePayload{Addrs: addrs}, nil
}

// MasternodesResponsePayload answers GetMasternodes with the active
// validator set, each encoded the same way storage persists them.
type MasternodesResponsePayload struct {
	Validators []*types.Validator
}

func EncodeMasternodesResponse(p MasternodesResponsePayload) []byte {
	w := rlp.NewWriter()
	w.WriteUint32(uint32(len(p.Validators)))
	for _, v := range p.Validators {
		w.WriteString(string(v.Address))
		w.WriteBytes(v.PublicKey)
		w.WriteUint8(uint8(v.Tier))
		w.WriteUint64(v.LastHeartbeat)
	}
	return w.Bytes()
}

func DecodeMasternodesResponse(b []byte) (MasternodesResponsePayload, error) {
	r := rlp.NewReader(b)
	n, err := r.ReadUint32()
	if err != nil {
		return MasternodesResponsePayload{}, err
	}
	out := make([]*types.Validator, n)
	for i := range out {
		addr, err := r.ReadString()
		if err != nil {
			return MasternodesResponsePayload{}, err
		}
		pub, err := r.ReadBytes()
		if err != nil {
			return MasternodesResponsePayload{}, err
		}
		tier, err := r.ReadUint8()
		if err != nil {
			return MasternodesResponsePayload{}, err
		}
		hb, err := r.ReadUint64()
		if err != nil {
			return MasternodesResponsePayload{}, err
		}
		out[i] = &types.Validator{Address: common.Address(addr), PublicKey: pub, Tier: types.StakeTier(tier), LastHeartbeat: hb, Active: true}
	}
	return MasternodesResponsePayload{Validators: out}, nil
}
