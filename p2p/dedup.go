package p2p

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/slotchain/slotchain/common"
)

// dedupTTL is the short window a (sender, message_hash) pair is
// remembered for (spec.md §4.8: "a short TTL").
const dedupTTL = 2 * time.Minute

// dedupCapacity bounds memory regardless of traffic volume.
const dedupCapacity = 16384

type dedupEntry struct {
	expiresAt time.Time
}

// Dedup is the inbound message filter keyed by (sender, message_hash),
// adapted from the teacher's backend.knownMessages/recentMessages pair
// of *lru.ARCCache in consensus/istanbul/backend/handler.go: there one
// cache tracks messages known globally and a per-peer cache tracks what
// each peer has already sent, so the node never re-processes or
// re-gossips the same message back to its origin.
type Dedup struct {
	mu      sync.Mutex
	known   *lru.ARCCache // message hash -> dedupEntry, across all senders
	perPeer map[common.Address]*lru.ARCCache
}

func NewDedup() *Dedup {
	known, _ := lru.NewARC(dedupCapacity)
	return &Dedup{known: known, perPeer: make(map[common.Address]*lru.ARCCache)}
}

// Seen reports whether (sender, hash) has already been processed and,
// if not, records it. The first call for a given hash (from any sender)
// returns false; later calls within the TTL return true.
func (d *Dedup) Seen(sender common.Address, hash common.Hash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.markPeer(sender, hash)

	if v, ok := d.known.Get(hash); ok {
		if e, ok := v.(dedupEntry); ok && time.Now().Before(e.expiresAt) {
			return true
		}
	}
	d.known.Add(hash, dedupEntry{expiresAt: time.Now().Add(dedupTTL)})
	return false
}

// markPeer records that sender has (re-)delivered hash, so gossip relay
// can skip re-sending it back to its origin.
func (d *Dedup) markPeer(sender common.Address, hash common.Hash) {
	c, ok := d.perPeer[sender]
	if !ok {
		c, _ = lru.NewARC(dedupCapacity)
		d.perPeer[sender] = c
	}
	c.Add(hash, dedupEntry{expiresAt: time.Now().Add(dedupTTL)})
}

// HasSentTo reports whether peer has already been the source or a
// confirmed recipient of hash, used to exclude the origin from gossip
// relay (spec.md §4.8: "re-broadcast to all other connected peers
// except A").
func (d *Dedup) HasSentTo(peer common.Address, hash common.Hash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.perPeer[peer]
	if !ok {
		return false
	}
	v, ok := c.Get(hash)
	if !ok {
		return false
	}
	e, ok := v.(dedupEntry)
	return ok && time.Now().Before(e.expiresAt)
}

// Forget drops a peer's dedup bookkeeping on disconnect.
func (d *Dedup) Forget(peer common.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.perPeer, peer)
}
