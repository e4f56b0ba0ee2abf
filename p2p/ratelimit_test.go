package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slotchain/slotchain/common"
)

func TestPeerLimiterViolationsDisconnectAtMax(t *testing.T) {
	pl := NewPeerLimiter()
	for i := 0; i < MaxViolations-1; i++ {
		assert.False(t, pl.RecordViolation())
	}
	assert.True(t, pl.RecordViolation())
}

func TestPeerLimiterForkResolutionHasHigherBudget(t *testing.T) {
	pl := NewPeerLimiter()
	generalAllowed, forkAllowed := 0, 0
	for i := 0; i < 150; i++ {
		if pl.Allow(KindTransaction) {
			generalAllowed++
		}
	}
	pl2 := NewPeerLimiter()
	for i := 0; i < 150; i++ {
		if pl2.Allow(KindGetBlocks) {
			forkAllowed++
		}
	}
	assert.Greater(t, forkAllowed, generalAllowed)
}

func TestWhitelistContains(t *testing.T) {
	w := NewWhitelist([]common.Address{"alice"}, []common.Address{"bob"})
	assert.True(t, w.Contains("alice"))
	assert.True(t, w.Contains("bob"))
	assert.False(t, w.Contains("mallory"))
}

func TestBlacklistExponentialBackoff(t *testing.T) {
	pl := NewPeerLimiter()
	d1 := pl.Blacklist()
	d2 := pl.Blacklist()
	assert.Greater(t, d2, d1)
	assert.True(t, pl.IsBlacklisted())
}
