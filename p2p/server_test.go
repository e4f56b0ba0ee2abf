package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
)

type stubHandler struct {
	tipHeight uint64
	tipHash   common.Hash
	preference common.Hash
	gotTx     chan *types.Transaction
	gotBlock  chan *types.Block
}

func newStubHandler() *stubHandler {
	return &stubHandler{gotTx: make(chan *types.Transaction, 4), gotBlock: make(chan *types.Block, 4)}
}

func (h *stubHandler) OnBlockAnnouncement(from common.Address, b *types.Block) { h.gotBlock <- b }
func (h *stubHandler) OnTransaction(from common.Address, tx *types.Transaction) { h.gotTx <- tx }
func (h *stubHandler) OnHeartbeat(from common.Address, p HeartbeatPayload) {}
func (h *stubHandler) OnLeaderReveal(from common.Address, slotNum uint64, validator common.Address, output common.Hash, proof []byte) {
}
func (h *stubHandler) OnConsensusQuery(from common.Address, q ConsensusQueryPayload) (ConsensusQueryResponsePayload, bool) {
	return ConsensusQueryResponsePayload{Found: true, Preference: h.preference}, true
}
func (h *stubHandler) ChainTip() (uint64, common.Hash)               { return h.tipHeight, h.tipHash }
func (h *stubHandler) GetBlocks(start, end uint64) []*types.Block    { return nil }
func (h *stubHandler) GetBlockHash(height uint64) (common.Hash, bool) { return common.Hash{}, false }
func (h *stubHandler) Masternodes() []*types.Validator               { return nil }

func startTestServer(t *testing.T, addr common.Address, handler Handler, wl *Whitelist) (*Server, string) {
	t.Helper()
	if wl == nil {
		wl = NewWhitelist(nil, nil)
	}
	nonce, err := NewNonce()
	require.NoError(t, err)
	srv := NewServer(HandshakePayload{Version: 1, NetworkID: "test", Nonce: nonce, Address: addr}, handler, wl)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	return srv, srv.listener.Addr().String()
}

func TestHandshakeAndConnect(t *testing.T) {
	hA := newStubHandler()
	hA.tipHeight, hA.tipHash = 3, common.Hash{9}
	srvA, addrA := startTestServer(t, "A", hA, nil)
	defer srvA.Close()

	hB := newStubHandler()
	srvB, _ := startTestServer(t, "B", hB, nil)
	defer srvB.Close()

	require.NoError(t, srvB.Dial(addrA, "A"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, srvA.ConnectedCount())
	assert.Equal(t, 1, srvB.ConnectedCount())
}

func TestGossipRelayExcludesOrigin(t *testing.T) {
	hA := newStubHandler()
	srvA, addrA := startTestServer(t, "A", hA, nil)
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

	tx := &types.Transaction{Version: 1, Fee: types.MinFee}
	require.NoError(t, srvB.peers["A"].Send(Message{Kind: KindTransaction, Payload: EncodeTransaction(tx)}))

	select {
	case got := <-hA.gotTx:
		assert.Equal(t, tx.TxID(), got.TxID())
	case <-time.After(time.Second):
		t.Fatal("server A never received the transaction")
	}

	select {
	case got := <-hC.gotTx:
		assert.Equal(t, tx.TxID(), got.TxID())
	case <-time.After(time.Second):
		t.Fatal("server C never received A's relay")
	}

	select {
	case <-hB.gotTx:
		t.Fatal("origin peer B should not receive its own relayed transaction back")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQueryPreferenceRoundTrip(t *testing.T) {
	pref := common.Hash{5}
	hA := newStubHandler()
	hA.preference = pref
	srvA, addrA := startTestServer(t, "A", hA, nil)
	defer srvA.Close()

	hB := newStubHandler()
	srvB, _ := startTestServer(t, "B", hB, nil)
	defer srvB.Close()

	require.NoError(t, srvB.Dial(addrA, "A"))
	time.Sleep(50 * time.Millisecond)

	v := &types.Validator{Address: "A"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := srvB.QueryPreference(ctx, v, []common.Hash{pref})
	require.True(t, ok)
	assert.Equal(t, pref, got)
}

func TestDuplicateConnectionRejected(t *testing.T) {
	hA := newStubHandler()
	srvA, addrA := startTestServer(t, "A", hA, nil)
	defer srvA.Close()

	hB := newStubHandler()
	srvB, _ := startTestServer(t, "B", hB, nil)
	defer srvB.Close()

	require.NoError(t, srvB.Dial(addrA, "A"))
	time.Sleep(30 * time.Millisecond)
	err := srvB.Dial(addrA, "A")
	time.Sleep(30 * time.Millisecond)
	_ = err // second physical connection is closed server-side; ConnectedCount stays at 1
	assert.Equal(t, 1, srvA.ConnectedCount())
}
