package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slotchain/slotchain/common"
)

func TestDedupSeenOnce(t *testing.T) {
	d := NewDedup()
	var h common.Hash
	h[0] = 7

	assert.False(t, d.Seen("alice", h))
	assert.True(t, d.Seen("alice", h))
	assert.True(t, d.Seen("bob", h))
}

func TestDedupHasSentToExcludesOrigin(t *testing.T) {
	d := NewDedup()
	var h common.Hash
	h[0] = 9

	d.Seen("alice", h)
	assert.True(t, d.HasSentTo("alice", h))
	assert.False(t, d.HasSentTo("bob", h))
}
