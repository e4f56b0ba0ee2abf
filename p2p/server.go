package p2p

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/log"
)

// MaxConnections and MinWhitelistedSlots are the resource caps of
// spec.md §5: "max total connections configurable (default 100) with
// ≥ 50 slots reserved for whitelisted peers".
const (
	MaxConnections      = 100
	MinWhitelistedSlots = 50
	MinPeersForLeading  = 2 // spec.md §4.8: below this, block production is skipped
)

// Handler is the upper layer (the node) that consumes dispatched wire
// messages and answers request/response kinds. Implemented outside this
// package to keep p2p ignorant of chain/consensus/pool internals,
// matching the teacher's consensus.Handler split from networks/p2p.
type Handler interface {
	OnBlockAnnouncement(from common.Address, b *types.Block)
	OnTransaction(from common.Address, tx *types.Transaction)
	OnHeartbeat(from common.Address, p HeartbeatPayload)
	OnLeaderReveal(from common.Address, slotNum uint64, validator common.Address, output common.Hash, proof []byte)
	OnConsensusQuery(from common.Address, q ConsensusQueryPayload) (ConsensusQueryResponsePayload, bool)
	ChainTip() (height uint64, hash common.Hash)
	GetBlocks(start, end uint64) []*types.Block
	GetBlockHash(height uint64) (common.Hash, bool)
	Masternodes() []*types.Validator
}

type pendingQuery struct {
	ch chan ConsensusQueryResponsePayload
}

// Server is the C8 peer transport & dispatcher: it owns at most one
// live connection per peer identity, runs the handshake, applies dedup
// and rate limiting to every inbound message, relays gossip, and
// answers/forwards request kinds to Handler.
type Server struct {
	self      HandshakePayload
	handler   Handler
	whitelist *Whitelist
	dedup     *Dedup

	log log.Logger

	mu    sync.RWMutex
	peers map[common.Address]*Peer

	pendingMu sync.Mutex
	pending   map[string]*pendingQuery // queryKey(from, txid, round) -> waiter

	listener net.Listener
}

func NewServer(self HandshakePayload, handler Handler, whitelist *Whitelist) *Server {
	return &Server{
		self:      self,
		handler:   handler,
		whitelist: whitelist,
		dedup:     NewDedup(),
		log:       log.NewModuleLogger("p2p"),
		peers:     make(map[common.Address]*Peer),
		pending:   make(map[string]*pendingQuery),
	}
}

// Listen starts accepting inbound connections on addr.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleInbound(conn)
	}
}

func (s *Server) handleInbound(conn net.Conn) {
	hs, err := handshake(conn, s.self, false)
	if err != nil {
		s.log.Debug("inbound handshake failed", "err", err)
		conn.Close()
		return
	}
	if !s.admitsNewConnection(hs.Address) {
		conn.Close()
		return
	}
	s.registerAndServe(conn, hs.Address, hs.AnnouncedAddr, false)
}

// Dial opens an outbound connection to a known peer address.
func (s *Server) Dial(netAddr string, addr common.Address) error {
	if !s.admitsNewConnection(addr) {
		return types.ErrTooManyConnections
	}
	conn, err := net.Dial("tcp", netAddr)
	if err != nil {
		return err
	}
	if _, err := handshake(conn, s.self, true); err != nil {
		conn.Close()
		return err
	}
	go s.registerAndServe(conn, addr, netAddr, true)
	return nil
}

// admitsNewConnection enforces spec.md §5's connection cap with slots
// reserved for whitelisted peers.
func (s *Server) admitsNewConnection(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.peers) < MaxConnections-MinWhitelistedSlots {
		return true
	}
	return s.whitelist.Contains(addr) && len(s.peers) < MaxConnections
}

// registerAndServe enforces the single-connection-per-peer rule: if a
// connection for addr already exists, the new one is closed with
// ErrDuplicateConnection (spec.md §4.8). Otherwise it registers the peer
// and runs its dispatch loop until disconnect.
func (s *Server) registerAndServe(conn net.Conn, addr common.Address, netAddr string, outbound bool) {
	peer := newPeer(conn, addr, netAddr)

	s.mu.Lock()
	if _, exists := s.peers[addr]; exists {
		s.mu.Unlock()
		s.log.Debug("rejecting duplicate connection", "peer", addr)
		conn.Close()
		return
	}
	s.peers[addr] = peer
	s.mu.Unlock()

	s.log.Info("peer connected", "peer", addr, "outbound", outbound)
	err := peer.ReadLoop(func(m Message) error { return s.dispatch(peer, m) })
	s.log.Debug("peer disconnected", "peer", addr, "err", err)

	s.mu.Lock()
	delete(s.peers, addr)
	s.mu.Unlock()
	s.dedup.Forget(addr)

	if s.whitelist.Contains(addr) {
		go s.scheduleReconnect(netAddr, addr, peer.limiter.Blacklist())
	}
}

func (s *Server) scheduleReconnect(netAddr string, addr common.Address, delay time.Duration) {
	time.Sleep(delay)
	if err := s.Dial(netAddr, addr); err != nil {
		s.log.Debug("reconnect failed", "peer", addr, "err", err)
	}
}

// dispatch applies dedup + rate limiting, then routes one decoded
// message to the appropriate handler, following the
// decode-dedup-handle order of the teacher's backend.HandleMsg.
func (s *Server) dispatch(peer *Peer, m Message) error {
	if !peer.limiter.Allow(m.Kind) {
		if s.whitelist.Contains(peer.Address) {
			return nil // whitelisted peers are never disconnected on rate limiting alone
		}
		if peer.limiter.RecordViolation() {
			return types.ErrRateLimited
		}
		return nil
	}

	switch m.Kind {
	case KindPing:
		p, err := DecodePingPong(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		return peer.Send(Message{Kind: KindPong, Payload: EncodePingPong(p)})

	case KindPong:
		return nil

	case KindGetChainTip:
		h, hash := s.handler.ChainTip()
		return peer.Send(Message{Kind: KindChainTipResponse, Payload: EncodeChainTip(ChainTipPayload{Height: h, Hash: hash})})

	case KindChainTipResponse:
		return nil

	case KindGetBlocks:
		req, err := DecodeGetBlocks(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		if req.End < req.Start || req.End-req.Start > MaxBlocksPerRange {
			return s.violate(peer)
		}
		blocks := s.handler.GetBlocks(req.Start, req.End)
		return peer.Send(Message{Kind: KindBlocksResponse, Payload: EncodeBlocksResponse(blocks)})

	case KindBlocksResponse:
		return nil

	case KindGetBlockHash:
		height, err := DecodeGetBlockHash(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		hash, found := s.handler.GetBlockHash(height)
		return peer.Send(Message{Kind: KindBlockHashResponse, Payload: EncodeBlockHashResponse(BlockHashResponsePayload{Found: found, Hash: hash})})

	case KindBlockHashResponse:
		return nil

	case KindBlockAnnouncement:
		blk, err := types.DecodeBlock(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		if s.dedup.Seen(peer.Address, blk.Hash()) {
			return nil
		}
		s.handler.OnBlockAnnouncement(peer.Address, blk)
		s.Relay(m, peer.Address)
		return nil

	case KindTransaction:
		tx, err := types.DecodeTransaction(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		if s.dedup.Seen(peer.Address, tx.TxID()) {
			return nil
		}
		s.handler.OnTransaction(peer.Address, tx)
		s.Relay(m, peer.Address)
		return nil

	case KindConsensusQuery:
		q, err := DecodeConsensusQuery(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		resp, ok := s.handler.OnConsensusQuery(peer.Address, q)
		if !ok {
			resp = ConsensusQueryResponsePayload{Found: false}
		}
		return peer.Send(Message{Kind: KindConsensusQueryResponse, Payload: EncodeConsensusQueryResponse(resp)})

	case KindConsensusQueryResponse:
		resp, err := DecodeConsensusQueryResponse(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		s.deliverPendingResponse(peer.Address, resp)
		return nil

	case KindGetMasternodes:
		return peer.Send(Message{Kind: KindMasternodesResponse, Payload: EncodeMasternodesResponse(MasternodesResponsePayload{Validators: s.handler.Masternodes()})})

	case KindMasternodesResponse:
		return nil

	case KindGetPeers:
		return peer.Send(Message{Kind: KindPeersResponse, Payload: EncodePeersResponse(s.peerAddrs())})

	case KindPeersResponse:
		return nil

	case KindHeartbeat:
		hb, err := DecodeHeartbeat(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		hbHash := common.BytesToHash(hb.Signature)
		if s.dedup.Seen(peer.Address, hbHash) {
			return nil
		}
		s.handler.OnHeartbeat(peer.Address, hb)
		s.Relay(m, peer.Address)
		return nil

	case KindLeaderReveal:
		slotNum, validator, output, proof, err := DecodeLeaderReveal(m.Payload)
		if err != nil {
			return s.violate(peer)
		}
		revealHash := crypto.HashConcat(output.Bytes(), []byte(validator))
		if s.dedup.Seen(peer.Address, revealHash) {
			return nil
		}
		s.handler.OnLeaderReveal(peer.Address, slotNum, validator, output, proof)
		s.Relay(m, peer.Address)
		return nil

	case KindHandshake:
		return s.violate(peer) // handshake only valid as the very first message

	default:
		return s.violate(peer)
	}
}

func (s *Server) violate(peer *Peer) error {
	if s.whitelist.Contains(peer.Address) {
		return nil
	}
	if peer.limiter.RecordViolation() {
		return types.ErrInvalidSignature
	}
	return nil
}

func (s *Server) peerAddrs() PeersResponsePayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]string, 0, len(s.peers))
	for _, p := range s.peers {
		addrs = append(addrs, p.NetAddr)
	}
	return PeersResponsePayload{Addrs: addrs}
}

// Relay rebroadcasts m to every connected peer except except Addr,
// subject to the dedup filter (spec.md §4.8 gossip discipline).
func (s *Server) Relay(m Message, except common.Address) {
	s.mu.RLock()
	peers := make([]*Peer, 0, len(s.peers))
	for addr, p := range s.peers {
		if addr == except {
			continue
		}
		peers = append(peers, p)
	}
	s.mu.RUnlock()
	for _, p := range peers {
		_ = p.Send(m)
	}
}

// ConnectedCount is the number of live peer connections.
func (s *Server) ConnectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// CanProduceBlocks reports whether enough peers are connected for
// leader-elected block production to proceed safely (spec.md §4.8:
// "When insufficient peers are connected (< 2), leader-elected block
// production is skipped to prevent solo-forking").
func (s *Server) CanProduceBlocks() bool { return s.ConnectedCount() >= MinPeersForLeading }

// QueryPreference implements consensus/sampling.Querier by sending a
// ConsensusQuery to the validator's connection and waiting for its
// response or ctx's deadline. Each call owns its slot in s.pending for
// its duration; the sampling engine issues queries to a given validator
// sequentially within a round, so one outstanding query per peer at a
// time is sufficient.
func (s *Server) QueryPreference(ctx context.Context, v *types.Validator, conflictSet []common.Hash) (common.Hash, bool) {
	s.mu.RLock()
	peer, ok := s.peers[v.Address]
	s.mu.RUnlock()
	if !ok {
		return common.Hash{}, false
	}

	waiter := &pendingQuery{ch: make(chan ConsensusQueryResponsePayload, 1)}
	key := string(v.Address)
	s.pendingMu.Lock()
	s.pending[key] = waiter
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, key)
		s.pendingMu.Unlock()
	}()

	round := uint32(time.Now().UnixNano())
	if err := peer.Send(Message{Kind: KindConsensusQuery, Payload: EncodeConsensusQuery(ConsensusQueryPayload{TxID: conflictSet[0], Round: round})}); err != nil {
		return common.Hash{}, false
	}

	select {
	case resp := <-waiter.ch:
		if !resp.Found {
			return common.Hash{}, false
		}
		return resp.Preference, true
	case <-ctx.Done():
		return common.Hash{}, false
	}
}

func (s *Server) deliverPendingResponse(from common.Address, resp ConsensusQueryResponsePayload) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if waiter, ok := s.pending[string(from)]; ok {
		select {
		case waiter.ch <- resp:
		default:
		}
	}
}

func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		p.Close()
	}
}
