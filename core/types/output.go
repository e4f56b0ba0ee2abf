package types

import (
	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/pkg/rlp"
)

// Output is a single transaction output: a value and an owning
// address script (spec.md §3).
type Output struct {
	Value       uint64
	OwnerScript common.Address
}

func (o Output) EncodeCanonical(w *rlp.Writer) {
	w.WriteUint64(o.Value)
	w.WriteString(string(o.OwnerScript))
}

func DecodeOutput(r *rlp.Reader) (Output, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return Output{}, err
	}
	owner, err := r.ReadString()
	if err != nil {
		return Output{}, err
	}
	return Output{Value: v, OwnerScript: common.Address(owner)}, nil
}
