package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
)

// TestWhitelistedPeerSurvivesProtocolViolations implements spec.md §8
// S6's connection-survival half: a whitelisted peer forwarding malformed
// block announcements (standing in for blocks on a chain N cannot yet
// validate, e.g. a deep fork) is never disconnected for it, no matter
// how many violations accrue — only its non-whitelisted counterpart hits
// MaxViolations and is dropped.
func TestWhitelistedPeerSurvivesProtocolViolations(t *testing.T) {
	hA := newStubHandler()
	wl := NewWhitelist([]common.Address{"B"}, nil)
	srvA, addrA := startTestServer(t, "A", hA, wl)
	defer srvA.Close()

	hB := newStubHandler()
	srvB, _ := startTestServer(t, "B", hB, nil)
	defer srvB.Close()

	hC := newStubHandler()
	srvC, _ := startTestServer(t, "C", hC, nil)
	defer srvC.Close()

	require.NoError(t, srvB.Dial(addrA, "A"))
	require.NoError(t, srvC.Dial(addrA, "A"))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, srvA.ConnectedCount())

	malformed := Message{Kind: KindBlockAnnouncement, Payload: []byte("not a valid encoded block")}
	for i := 0; i < MaxViolations+2; i++ {
		require.NoError(t, srvB.peers["A"].Send(malformed))
		require.NoError(t, srvC.peers["A"].Send(malformed))
	}
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, srvA.ConnectedCount(), "only the non-whitelisted peer should have been disconnected")
	srvA.mu.RLock()
	_, whitelistedStillConnected := srvA.peers["B"]
	_, nonWhitelistedStillConnected := srvA.peers["C"]
	srvA.mu.RUnlock()
	assert.True(t, whitelistedStillConnected, "whitelisted peer B must survive repeated protocol violations")
	assert.False(t, nonWhitelistedStillConnected, "non-whitelisted peer C must be disconnected after MaxViolations")
}

// TestWhitelistedPeerKeepsConnectionForForkResolutionQuery covers
// spec.md §8 S6's reconciliation half at the transport level: a
// whitelisted peer sends a fork-resolution query (GetBlockHash for
// height 3) and its connection stays registered. The query's answer is
// not inspected.
func TestWhitelistedPeerKeepsConnectionForForkResolutionQuery(t *testing.T) {
	hA := newStubHandler()
	hA.tipHeight, hA.tipHash = 10, common.Hash{1}
	wl := NewWhitelist([]common.Address{"B"}, nil)
	srvA, addrA := startTestServer(t, "A", hA, wl)
	defer srvA.Close()

	hB := newStubHandler()
	srvB, _ := startTestServer(t, "B", hB, nil)
	defer srvB.Close()

	require.NoError(t, srvB.Dial(addrA, "A"))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, srvB.peers["A"].Send(Message{Kind: KindGetBlockHash, Payload: EncodeGetBlockHash(3)}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srvA.ConnectedCount(), "the whitelisted peer's connection must remain usable for fork-resolution queries")
}
