// Package common holds the identifier types shared by every layer of
// the node (hashes, addresses) plus the sharded/LRU cache helper adapted
// from the teacher's common/cache.go.
package common

import (
	"encoding/hex"
	"fmt"
)

// HashLength is the size in bytes of a protocol hash (spec.md §3: "Fixed
// 32-byte digest").
const HashLength = 32

// Hash is a 32-byte protocol digest: transaction id, block id, or an
// arbitrary content hash.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

// Cmp gives a total order over hashes, treating the digest as a
// big-endian unsigned integer — used for VRF leader comparison (§4.6)
// and tip-hash tie-breaking (§4.7).
func (h Hash) Cmp(o Hash) int {
	for i := 0; i < HashLength; i++ {
		if h[i] != o[i] {
			if h[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// getShardIndex implements common.CacheKey for the sharded LRU cache
// below, matching the teacher's common/cache.go shard-by-key-bits scheme.
func (h Hash) getShardIndex(shardMask int) int {
	return int(h[0]) & shardMask
}

// HexToHash parses a 0x-prefixed or bare hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return BytesToHash(b), nil
}

// Address is an owner_script / validator identity: spec.md §3 specifies
// "owner_script encodes ownership; interpretation is an address string",
// so addresses are opaque strings rather than a fixed-width binary type.
type Address string

func (a Address) String() string { return string(a) }

func (a Address) getShardIndex(shardMask int) int {
	if len(a) == 0 {
		return 0
	}
	return int(a[0]) & shardMask
}

// OutputRef is (txid, output_index) — globally unique per spec.md §3.
type OutputRef struct {
	TxID  Hash
	Index uint32
}

func (r OutputRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID.Hex(), r.Index)
}

func (r OutputRef) getShardIndex(shardMask int) int {
	return int(r.TxID[0]^r.TxID[1]) & shardMask
}
