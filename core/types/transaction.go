package types

import (
	"errors"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/pkg/rlp"
)

// MinFee is the protocol minimum fee in the smallest unit (spec.md §3, §6.3).
const MinFee = 1000

var (
	ErrTxUnbalanced   = errors.New("types: inputs do not balance outputs+fee")
	ErrTxFeeTooLow    = errors.New("types: fee below MIN_FEE")
	ErrTxNoInputs     = errors.New("types: transaction has no inputs")
	ErrTxNoOutputs    = errors.New("types: transaction has no outputs")
	ErrTxBadSignature = errors.New("types: input signature does not verify")
)

// TxInput is an input reference plus the signature authorizing its spend
// (spec.md §3: "inputs: [OutputRef + signature]").
type TxInput struct {
	Ref       common.OutputRef
	Signature crypto.Signature
}

// Transaction is the spec's (version, inputs, outputs, fee, locktime)
// tuple. Txid is derived, not stored, from the full canonical encoding
// including the input signatures (see TxID); the signatures themselves
// cover SigningHash, the encoding without them, matching the teacher's
// split between a signable pre-image and the final signed transaction in
// blockchain/types/tx_signatures.go.
type Transaction struct {
	Version  uint8
	Inputs   []TxInput
	Outputs  []Output
	Fee      uint64
	Locktime uint64
}

// SigningHash is the canonical digest each input's signature is taken
// over: the transaction with signatures stripped. This lets every
// signer sign the same bytes regardless of input order-of-assembly.
func (tx *Transaction) SigningHash() common.Hash {
	w := rlp.NewWriter()
	w.WriteUint8(tx.Version)
	w.WriteUint32(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		w.WriteBytes(in.Ref.TxID.Bytes())
		w.WriteUint32(in.Ref.Index)
	}
	w.WriteUint32(uint32(len(tx.Outputs)))
	for _, o := range tx.Outputs {
		o.EncodeCanonical(w)
	}
	w.WriteUint64(tx.Fee)
	w.WriteUint64(tx.Locktime)
	return crypto.Hash(w.Bytes())
}

// TxID is the hash of the fully-encoded transaction including
// signatures — the identifier referenced by every OutputRef, block, and
// wire message (spec.md §3).
func (tx *Transaction) TxID() common.Hash {
	return crypto.Hash(tx.encode())
}

func (tx *Transaction) encode() []byte {
	w := rlp.NewWriter()
	w.WriteUint8(tx.Version)
	w.WriteUint32(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		w.WriteBytes(in.Ref.TxID.Bytes())
		w.WriteUint32(in.Ref.Index)
		w.WriteBytes(in.Signature)
	}
	w.WriteUint32(uint32(len(tx.Outputs)))
	for _, o := range tx.Outputs {
		o.EncodeCanonical(w)
	}
	w.WriteUint64(tx.Fee)
	w.WriteUint64(tx.Locktime)
	return w.Bytes()
}

// EncodeTransaction is the canonical wire encoding used by the pool,
// storage, and the p2p Transaction message (spec.md §6.2).
func EncodeTransaction(tx *Transaction) []byte { return tx.encode() }

func DecodeTransaction(b []byte) (*Transaction, error) {
	r := rlp.NewReader(b)
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	nin, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	inputs := make([]TxInput, nin)
	for i := range inputs {
		txidBytes, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		idx, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		sig, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		inputs[i] = TxInput{Ref: common.OutputRef{TxID: common.BytesToHash(txidBytes), Index: idx}, Signature: sig}
	}
	nout, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	outputs := make([]Output, nout)
	for i := range outputs {
		o, err := DecodeOutput(r)
		if err != nil {
			return nil, err
		}
		outputs[i] = o
	}
	fee, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	locktime, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &Transaction{Version: version, Inputs: inputs, Outputs: outputs, Fee: fee, Locktime: locktime}, nil
}

// Size is the canonical encoded byte size, used by the pool's byte
// budget and fee-per-byte eviction ordering (spec.md §4.3).
func (tx *Transaction) Size() int { return len(tx.encode()) }

// FeePerByte is the eviction priority key for the transaction pool.
func (tx *Transaction) FeePerByte() float64 {
	size := tx.Size()
	if size == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(size)
}

// ValidateStructure checks the invariants of spec.md §3 that don't
// require chain state: balance, minimum fee, non-empty input/output
// lists, and that every input's signature verifies against the output
// it claims to spend (ownerPubKeys is the resolved owner's public key for
// each input, supplied by the caller since it requires a UTXO lookup).
func (tx *Transaction) ValidateStructure(inputValues []uint64, ownerPubKeys []crypto.PublicKey) error {
	if len(tx.Inputs) == 0 {
		return ErrTxNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrTxNoOutputs
	}
	if tx.Fee < MinFee {
		return ErrTxFeeTooLow
	}
	var inSum, outSum uint64
	for _, v := range inputValues {
		inSum += v
	}
	for _, o := range tx.Outputs {
		outSum += o.Value
	}
	if inSum != outSum+tx.Fee {
		return ErrTxUnbalanced
	}
	signingHash := tx.SigningHash()
	for i, in := range tx.Inputs {
		if !crypto.Verify(ownerPubKeys[i], signingHash.Bytes(), in.Signature) {
			return ErrTxBadSignature
		}
	}
	return nil
}

// ConflictsWith reports whether tx and other share any input OutputRef,
// the definition of a "conflict set" driving consensus (spec.md §4.5).
func (tx *Transaction) ConflictsWith(other *Transaction) bool {
	refs := make(map[common.OutputRef]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		refs[in.Ref] = struct{}{}
	}
	for _, in := range other.Inputs {
		if _, ok := refs[in.Ref]; ok {
			return true
		}
	}
	return false
}

// InputRefs returns the OutputRefs this transaction spends.
func (tx *Transaction) InputRefs() []common.OutputRef {
	refs := make([]common.OutputRef, len(tx.Inputs))
	for i, in := range tx.Inputs {
		refs[i] = in.Ref
	}
	return refs
}
