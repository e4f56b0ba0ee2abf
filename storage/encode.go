package storage

import (
	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/pkg/rlp"
)

func encodeValidator(v *types.Validator) []byte {
	w := rlp.NewWriter()
	w.WriteString(string(v.Address))
	w.WriteBytes(v.PublicKey)
	w.WriteUint8(uint8(v.Tier))
	w.WriteUint64(v.LastHeartbeat)
	if v.Active {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
	return w.Bytes()
}

func decodeValidator(b []byte) (*types.Validator, bool) {
	r := rlp.NewReader(b)
	addr, err := r.ReadString()
	if err != nil {
		return nil, false
	}
	pub, err := r.ReadBytes()
	if err != nil {
		return nil, false
	}
	tier, err := r.ReadUint8()
	if err != nil {
		return nil, false
	}
	heartbeat, err := r.ReadUint64()
	if err != nil {
		return nil, false
	}
	active, err := r.ReadUint8()
	if err != nil {
		return nil, false
	}
	return &types.Validator{
		Address:       common.Address(addr),
		PublicKey:     pub,
		Tier:          types.StakeTier(tier),
		LastHeartbeat: heartbeat,
		Active:        active == 1,
	}, true
}

func encodePeer(p PeerRecord) []byte {
	w := rlp.NewWriter()
	w.WriteString(string(p.Address))
	w.WriteString(p.NetAddr)
	w.WriteInt64(p.LastSeenAt)
	return w.Bytes()
}

func decodePeer(b []byte) (PeerRecord, bool) {
	r := rlp.NewReader(b)
	addr, err := r.ReadString()
	if err != nil {
		return PeerRecord{}, false
	}
	netAddr, err := r.ReadString()
	if err != nil {
		return PeerRecord{}, false
	}
	seen, err := r.ReadInt64()
	if err != nil {
		return PeerRecord{}, false
	}
	return PeerRecord{Address: common.Address(addr), NetAddr: netAddr, LastSeenAt: seen}, true
}

func encodeUTXOEntry(e types.UTXOEntry) []byte {
	w := rlp.NewWriter()
	e.Output.EncodeCanonical(w)
	w.WriteUint8(uint8(e.Status))
	w.WriteBytes(e.LockTxID.Bytes())
	w.WriteUint64(e.LockUntil)
	w.WriteBytes(e.SpendTxID.Bytes())
	w.WriteUint64(e.BlockHeight)
	return w.Bytes()
}

func decodeUTXOEntry(b []byte) (types.UTXOEntry, bool) {
	r := rlp.NewReader(b)
	out, err := types.DecodeOutput(r)
	if err != nil {
		return types.UTXOEntry{}, false
	}
	status, err := r.ReadUint8()
	if err != nil {
		return types.UTXOEntry{}, false
	}
	lockTxID, err := r.ReadBytes()
	if err != nil {
		return types.UTXOEntry{}, false
	}
	lockUntil, err := r.ReadUint64()
	if err != nil {
		return types.UTXOEntry{}, false
	}
	spendTxID, err := r.ReadBytes()
	if err != nil {
		return types.UTXOEntry{}, false
	}
	height, err := r.ReadUint64()
	if err != nil {
		return types.UTXOEntry{}, false
	}
	return types.UTXOEntry{
		Output:      out,
		Status:      types.UTXOStatus(status),
		LockTxID:    common.BytesToHash(lockTxID),
		LockUntil:   lockUntil,
		SpendTxID:   common.BytesToHash(spendTxID),
		BlockHeight: height,
	}, true
}
