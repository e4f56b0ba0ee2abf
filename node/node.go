package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/consensus/sampling"
	"github.com/slotchain/slotchain/consensus/slot"
	"github.com/slotchain/slotchain/core/chain"
	"github.com/slotchain/slotchain/core/txpool"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/utxo"
	"github.com/slotchain/slotchain/core/validator"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/datasync/eventbus"
	"github.com/slotchain/slotchain/datasync/indexer"
	"github.com/slotchain/slotchain/log"
	"github.com/slotchain/slotchain/metrics"
	"github.com/slotchain/slotchain/p2p"
	"github.com/slotchain/slotchain/storage"
)

var logger = log.NewModuleLogger(log.ModuleNode)

// Node wires every C1-C8 component into one running process and drives
// the per-slot state machine of spec.md §4.6: Idle -> Sampling_Leader
// -> {Proposing | Awaiting} -> Validating -> Committed | Skipped.
//
// The wiring mirrors the teacher's node/service.go: one constructor
// assembles every subsystem in dependency order and a Start/Stop pair
// owns their lifecycle, generalized from klaytn's pluggable Service
// registry down to this protocol's fixed component set.
type Node struct {
	cfg      Config
	selfKey  crypto.PrivateKey
	selfPub  crypto.PublicKey
	selfAddr common.Address

	store     *storage.KVStore
	utxoMgr   *utxo.Manager
	pool      *txpool.Pool
	registry  *validator.Registry
	sampler   *sampling.Engine
	scheduler *slot.Scheduler
	clock     *slot.Clock
	chainMgr  *chain.Manager
	server    *p2p.Server

	metricsReg *metrics.Registry
	metricsSrv *metrics.Server
	publisher  eventbus.Publisher
	indexer    *indexer.Repository

	revealsMu sync.Mutex
	reveals   map[uint64][]slot.Reveal

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewNode assembles a Node. genesis is required only when the store has
// no chain_meta recorded yet (a fresh data directory); an already
// initialized store resumes from its persisted tip.
func NewNode(cfg Config, sk crypto.PrivateKey, genesis *types.Block) (*Node, error) {
	pubAny := sk.Public()
	pub, ok := pubAny.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("node: private key did not yield an ed25519 public key")
	}
	addr := crypto.Address(crypto.PublicKey(pub))

	db, err := storage.Open(storage.Backend(cfg.DBBackend), cfg.DataDir, cfg.CacheSizeMB, cfg.DBHandles)
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}
	kv := storage.NewKVStore(db)

	clock := slot.NewClock()
	scheduler := slot.NewScheduler(cfg.GenesisTime, cfg.SlotDuration, clock)
	utxoMgr := utxo.NewManager(64, 64*1024*1024, scheduler.CurrentSlot)

	tip, err := setupGenesis(kv, utxoMgr, genesis)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := validator.NewRegistry()
	pool := txpool.New(utxoMgr, 0, 0)
	chainMgr := chain.NewManager(kv, utxoMgr, scheduler, tip, cfg.Checkpoints)

	var publisher eventbus.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := eventbus.NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("node: kafka publisher: %w", err)
		}
		publisher = kp
	} else {
		publisher = eventbus.NoopPublisher{}
	}

	var repo *indexer.Repository
	if cfg.SQLDSN != "" {
		repo, err = indexer.Open(cfg.SQLDSN)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("node: sql indexer: %w", err)
		}
	}

	n := &Node{
		cfg:        cfg,
		selfKey:    sk,
		selfPub:    crypto.PublicKey(pub),
		selfAddr:   addr,
		store:      kv,
		utxoMgr:    utxoMgr,
		pool:       pool,
		registry:   registry,
		scheduler:  scheduler,
		clock:      clock,
		chainMgr:   chainMgr,
		metricsReg: metrics.NewRegistry(),
		publisher:  publisher,
		indexer:    repo,
		reveals:    make(map[uint64][]slot.Reveal),
		stopCh:     make(chan struct{}),
	}

	whitelisted := make([]common.Address, 0, len(cfg.Bootstrap))
	for _, bp := range cfg.Bootstrap {
		whitelisted = append(whitelisted, bp.Address)
	}
	wl := p2p.NewWhitelist(whitelisted, nil)

	nonce, err := p2p.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("node: generate handshake nonce: %w", err)
	}
	hs := p2p.HandshakePayload{Version: 1, NetworkID: cfg.NetworkID, Nonce: nonce, Address: addr, AnnouncedAddr: cfg.ListenAddr}
	n.server = p2p.NewServer(hs, n, wl)

	n.sampler = sampling.New(cfg.SamplingParams, registry, n.server, sk)

	return n, nil
}

// setupGenesis commits genesis to the store on a fresh data directory,
// crediting its rewards to the UTXO set, or resumes from the store's
// persisted tip if one already exists.
func setupGenesis(kv *storage.KVStore, utxoMgr *utxo.Manager, genesis *types.Block) (chain.Tip, error) {
	if meta, ok := kv.GetChainMeta(); ok {
		return chain.Tip{Height: meta.TipHeight, Hash: meta.TipHash}, nil
	}
	if genesis == nil {
		return chain.Tip{}, fmt.Errorf("node: empty data directory requires a genesis block")
	}
	if err := kv.PutBlock(genesis); err != nil {
		return chain.Tip{}, err
	}
	if err := kv.PutCanonical(0, genesis.Hash()); err != nil {
		return chain.Tip{}, err
	}
	creditRewards(utxoMgr, genesis.Hash(), genesis.Rewards)
	tip := chain.Tip{Height: 0, Hash: genesis.Hash()}
	if err := kv.PutChainMeta(storage.ChainMeta{TipHash: tip.Hash, TipHeight: tip.Height}); err != nil {
		return chain.Tip{}, err
	}
	return tip, nil
}

// creditRewards inserts one fresh UTXO per reward recipient, keyed by
// the block hash as a synthetic txid with a deterministic (sorted
// address) index so repeated calls with the same block are idempotent.
func creditRewards(utxoMgr *utxo.Manager, blockHash common.Hash, rewards map[common.Address]uint64) {
	addrs := make([]string, 0, len(rewards))
	for a := range rewards {
		addrs = append(addrs, string(a))
	}
	sort.Strings(addrs)
	for i, a := range addrs {
		ref := common.OutputRef{TxID: blockHash, Index: uint32(i)}
		utxoMgr.Insert(ref, types.Output{Value: rewards[common.Address(a)], OwnerScript: common.Address(a)})
	}
}

// Start opens the listening socket, dials configured bootstrap peers,
// starts the metrics/health HTTP endpoint, and launches the slot loop.
func (n *Node) Start() error {
	if err := n.server.Listen(n.cfg.ListenAddr); err != nil {
		return fmt.Errorf("node: listen: %w", err)
	}
	for _, bp := range n.cfg.Bootstrap {
		if err := n.server.Dial(bp.NetAddr, bp.Address); err != nil {
			logger.Warn("failed to dial bootstrap peer", "addr", bp.NetAddr, "err", err)
		}
	}
	if n.cfg.MetricsAddr != "" {
		n.metricsSrv = metrics.NewServer(n.cfg.MetricsAddr, n.metricsReg, n.health)
		go func() {
			if err := n.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}
	go n.attemptNATTraversal()
	go n.runSlotLoop()
	logger.Info("node started", "address", n.selfAddr, "listen", n.cfg.ListenAddr, "tip", n.chainMgr.Tip().Height)
	return nil
}

// attemptNATTraversal is a best-effort NAT-PMP mapping for operators
// running a node behind a home/office router without manual port
// forwarding; failure just leaves bootstrap dialing dependent on the
// configured ListenAddr being directly reachable.
func (n *Node) attemptNATTraversal() {
	_, portStr, err := net.SplitHostPort(n.cfg.ListenAddr)
	if err != nil {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return
	}
	addr, err := p2p.DiscoverExternalAddr(port)
	if err != nil {
		logger.Debug("nat traversal unavailable", "err", err)
		return
	}
	logger.Info("discovered external address via nat-pmp", "addr", addr)
}

func (n *Node) health() (bool, string) {
	if n.server.ConnectedCount() == 0 {
		return false, "no peers connected"
	}
	return true, "ok"
}

// Stop shuts every owned resource down; safe to call once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.server.Close()
		if n.metricsSrv != nil {
			n.metricsSrv.Close()
		}
		n.publisher.Close()
		if n.indexer != nil {
			n.indexer.Close()
		}
		n.store.Close()
	})
}

// SubmitTransaction is the local-client entry point (a JSON-RPC or CLI
// front door would call this), performing the same input resolution and
// admission OnTransaction applies to gossiped transactions.
func (n *Node) SubmitTransaction(tx *types.Transaction) error {
	values, pubkeys, ok := n.resolveTxContext(tx)
	if !ok {
		return types.ErrInvalidTransaction
	}
	if err := n.pool.Submit(tx, values, pubkeys); err != nil {
		return err
	}
	n.server.Relay(p2p.Message{Kind: p2p.KindTransaction, Payload: p2p.EncodeTransaction(tx)}, "")
	n.metricsReg.MempoolCount.Update(int64(n.pool.Len()))
	return nil
}

// resolveTxContext looks up each input's value and owning validator's
// public key from the UTXO set and validator registry respectively, the
// way every admission path (local submit, gossiped transaction, block
// validation) needs before calling tx.ValidateStructure. ok is false
// when any input is unknown or its owner isn't a registered validator:
// owner public keys come only from the validator registry, so an output
// paid to any other address cannot be spent through this path
// (DESIGN.md).
func (n *Node) resolveTxContext(tx *types.Transaction) (values []uint64, pubkeys []crypto.PublicKey, ok bool) {
	refs := tx.InputRefs()
	values = make([]uint64, len(refs))
	pubkeys = make([]crypto.PublicKey, len(refs))
	for i, ref := range refs {
		entry, found := n.utxoMgr.Lookup(ref)
		if !found {
			return nil, nil, false
		}
		values[i] = entry.Output.Value
		v, found := n.registry.Get(entry.Output.OwnerScript)
		if !found {
			return nil, nil, false
		}
		pubkeys[i] = crypto.PublicKey(v.PublicKey)
	}
	return values, pubkeys, true
}

// validationContext resolves the input state for every transaction in
// txs into the maps core/chain.ValidationContext needs, alongside the
// reveals collected for the slot and which fallback rank is being
// validated against (spec.md §4.6, §4.7).
func (n *Node) validationContext(reveals []slot.Reveal, fallbackRank int, txs []*types.Transaction) chain.ValidationContext {
	values := make(map[common.OutputRef]uint64)
	owners := make(map[common.OutputRef]crypto.PublicKey)
	for _, tx := range txs {
		for _, ref := range tx.InputRefs() {
			entry, found := n.utxoMgr.Lookup(ref)
			if !found {
				continue
			}
			values[ref] = entry.Output.Value
			if v, found := n.registry.Get(entry.Output.OwnerScript); found {
				owners[ref] = crypto.PublicKey(v.PublicKey)
			}
		}
	}
	return chain.ValidationContext{SlotReveals: reveals, FallbackRank: fallbackRank, InputValues: values, InputOwners: owners}
}

// --- p2p.Handler implementation ---

func (n *Node) OnTransaction(from common.Address, tx *types.Transaction) {
	values, pubkeys, ok := n.resolveTxContext(tx)
	if !ok {
		logger.Debug("dropping transaction with unresolved inputs", "txid", tx.TxID().Hex())
		return
	}
	if err := n.pool.Submit(tx, values, pubkeys); err != nil {
		logger.Debug("rejected gossiped transaction", "txid", tx.TxID().Hex(), "err", err)
		return
	}
	n.metricsReg.MempoolCount.Update(int64(n.pool.Len()))
}

func (n *Node) OnHeartbeat(from common.Address, p p2p.HeartbeatPayload) {
	n.registry.Heartbeat(p.Address, p.Slot)
}

func (n *Node) OnLeaderReveal(from common.Address, slotNum uint64, validatorAddr common.Address, output common.Hash, proof []byte) {
	v, ok := n.registry.Get(validatorAddr)
	if !ok {
		return
	}
	tip := n.chainMgr.Tip()
	reveal := slot.Reveal{Validator: validatorAddr, Output: output, Proof: proof}
	if !slot.VerifyReveal(crypto.PublicKey(v.PublicKey), tip.Hash, slotNum, reveal) {
		logger.Debug("rejecting invalid VRF reveal", "validator", validatorAddr, "slot", slotNum)
		return
	}
	n.recordReveal(slotNum, reveal)
}

func (n *Node) OnConsensusQuery(from common.Address, q p2p.ConsensusQueryPayload) (p2p.ConsensusQueryResponsePayload, bool) {
	tx, ok := n.pool.Get(q.TxID)
	if !ok {
		return p2p.ConsensusQueryResponsePayload{Found: false}, true
	}
	conflicts := n.pool.Conflicts(tx)
	pref, found := n.sampler.CurrentPreference(q.TxID, conflicts)
	if !found {
		// No Run has started for this conflict set; spec.md §4.5's
		// default preference is the candidate itself.
		pref = q.TxID
	}
	return p2p.ConsensusQueryResponsePayload{Found: true, Preference: pref}, true
}

func (n *Node) OnBlockAnnouncement(from common.Address, b *types.Block) {
	var parent *types.Block
	if b.Header.Height > 0 {
		if p, ok := n.store.GetBlock(b.Header.PreviousHash); ok {
			parent = p
		}
	}

	slotNum := n.scheduler.SlotAt(time.Unix(b.Header.Timestamp, 0))
	reveals := n.revealsFor(slotNum)
	fallbackRank := 0
	if ranked := slot.RankedCandidates(reveals); len(ranked) > 0 {
		fallbackRank = -1
		for i, rv := range ranked {
			if rv.Validator == b.Header.LeaderAddress {
				fallbackRank = i
				break
			}
		}
		if fallbackRank == -1 {
			logger.Debug("rejecting block from unranked leader", "leader", b.Header.LeaderAddress, "slot", slotNum)
			return
		}
	}

	ctx := n.validationContext(reveals, fallbackRank, b.Transactions)
	if err := n.chainMgr.ValidateBlock(b, parent, ctx); err != nil {
		logger.Debug("rejected announced block", "from", from, "height", b.Header.Height, "err", err)
		return
	}
	oldTip := n.chainMgr.Tip()
	if err := n.chainMgr.Commit(b); err != nil {
		logger.Debug("commit failed for announced block", "err", err)
		return
	}
	n.onCommitted(b, oldTip)
}

func (n *Node) ChainTip() (uint64, common.Hash) {
	t := n.chainMgr.Tip()
	return t.Height, t.Hash
}

func (n *Node) GetBlocks(start, end uint64) []*types.Block {
	out := make([]*types.Block, 0, end-start)
	for h := start; h < end; h++ {
		hash, ok := n.store.GetBlockByHeight(h)
		if !ok {
			break
		}
		blk, ok := n.store.GetBlock(hash)
		if !ok {
			break
		}
		out = append(out, blk)
	}
	return out
}

func (n *Node) GetBlockHash(height uint64) (common.Hash, bool) {
	return n.store.GetBlockByHeight(height)
}

func (n *Node) Masternodes() []*types.Validator {
	return n.registry.ActiveSet()
}

// --- slot loop ---

func (n *Node) recordReveal(slotNum uint64, r slot.Reveal) {
	n.revealsMu.Lock()
	defer n.revealsMu.Unlock()
	for _, existing := range n.reveals[slotNum] {
		if existing.Validator == r.Validator {
			return
		}
	}
	n.reveals[slotNum] = append(n.reveals[slotNum], r)
	if slotNum >= 2 {
		delete(n.reveals, slotNum-2)
	}
}

func (n *Node) revealsFor(slotNum uint64) []slot.Reveal {
	n.revealsMu.Lock()
	defer n.revealsMu.Unlock()
	out := make([]slot.Reveal, len(n.reveals[slotNum]))
	copy(out, n.reveals[slotNum])
	return out
}

func (n *Node) runSlotLoop() {
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}
		n.runSlot(n.scheduler.CurrentSlot())
	}
}

// runSlot drives one slot through Idle -> Sampling_Leader ->
// {Proposing | Awaiting} -> Validating -> Committed | Skipped. Every
// connected honest node computes reveals deterministically, but
// leadership can only be established once reveals are exchanged (see
// p2p.KindLeaderReveal's doc comment), so this node publishes its own
// reveal immediately and polls the collected set until it is either the
// current-ranked proposer or the slot runs out.
func (n *Node) runSlot(slotNum uint64) {
	n.scheduler.SetPhase(slotNum, slot.PhaseSamplingLeader)
	tip := n.chainMgr.Tip()
	n.metricsReg.ChainHeight.Update(int64(tip.Height))
	n.metricsReg.ConnectedPeers.Update(int64(n.server.ConnectedCount()))

	reveal := slot.ComputeReveal(n.selfAddr, n.selfKey, tip.Hash, slotNum)
	n.recordReveal(slotNum, reveal)
	n.server.Relay(p2p.Message{
		Kind:    p2p.KindLeaderReveal,
		Payload: p2p.EncodeLeaderReveal(slotNum, reveal.Validator, reveal.Output, reveal.Proof),
	}, "")

	boundary := n.scheduler.SlotBoundary(slotNum)
	slotEnd := boundary.Add(n.cfg.SlotDuration)

	committed := false
	for time.Now().Before(slotEnd) {
		if n.chainMgr.Tip().Height > tip.Height {
			committed = true
			break
		}
		if !n.server.CanProduceBlocks() {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		rank := int(time.Since(boundary) / slot.LeaderTimeout)
		reveals := n.revealsFor(slotNum)
		if slot.IsAcceptableProposer(reveals, n.selfAddr, rank) {
			n.scheduler.SetPhase(slotNum, slot.PhaseProposing)
			if err := n.proposeBlock(slotNum, tip, reveals, rank); err != nil {
				logger.Debug("block proposal failed", "slot", slotNum, "err", err)
			} else {
				committed = true
				break
			}
		} else {
			n.scheduler.SetPhase(slotNum, slot.PhaseAwaiting)
		}
		time.Sleep(200 * time.Millisecond)
	}

	if committed {
		n.scheduler.SetPhase(slotNum, slot.PhaseCommitted)
	} else {
		n.scheduler.SetPhase(slotNum, slot.PhaseSkipped)
		logger.Warn("slot skipped", "slot", slotNum)
	}

	if sleepFor := slotEnd.Sub(time.Now()); sleepFor > 0 {
		time.Sleep(sleepFor)
	}
}

// proposeBlock assembles, signs, validates, and commits a block for
// slotNum at fallbackRank, then announces it to peers (spec.md §4.6
// Proposing state, §4.7 commit).
func (n *Node) proposeBlock(slotNum uint64, tip chain.Tip, reveals []slot.Reveal, fallbackRank int) error {
	ranked := slot.RankedCandidates(reveals)
	if fallbackRank >= len(ranked) {
		return types.ErrInvalidLeader
	}
	myReveal := ranked[fallbackRank]

	candidates := n.pool.DrainFinalized(1000)
	txs := n.resolveConsensus(candidates)

	reward := chain.BlockReward(tip.Height + 1)
	hdr := types.Header{
		Version:         1,
		Height:          tip.Height + 1,
		PreviousHash:    tip.Hash,
		MerkleRoot:      types.ComputeMerkleRoot(txs),
		Timestamp:       time.Now().Unix(),
		LeaderAddress:   n.selfAddr,
		VRFOutput:       myReveal.Output,
		VRFProof:        myReveal.Proof,
		ValidatorTiers:  n.tierCounts(),
		AttestationRoot: common.Hash{},
		BlockReward:     reward,
	}
	hdr.LeaderSignature = crypto.Sign(n.selfKey, hdr.SigningHash().Bytes())
	blk := &types.Block{Header: hdr, Transactions: txs, Rewards: map[common.Address]uint64{n.selfAddr: reward}}

	var parent *types.Block
	if tip.Height > 0 {
		p, ok := n.store.GetBlock(tip.Hash)
		if !ok {
			return types.ErrUnknownParent
		}
		parent = p
	}
	ctx := n.validationContext(reveals, fallbackRank, txs)
	if err := n.chainMgr.ValidateBlock(blk, parent, ctx); err != nil {
		for _, tx := range txs {
			n.pool.Remove(tx.TxID())
		}
		return err
	}
	oldTip := n.chainMgr.Tip()
	if err := n.chainMgr.Commit(blk); err != nil {
		return err
	}
	n.onCommitted(blk, oldTip)

	n.server.Relay(p2p.Message{Kind: p2p.KindBlockAnnouncement, Payload: types.EncodeBlock(blk)}, "")
	n.metricsReg.LeaderSlotsWon.Inc(1)
	return nil
}

// onCommitted applies the side effects every successful commit needs
// regardless of whether the block was proposed locally or received from
// a peer: reward crediting, mempool cleanup, metrics, and the external
// eventbus/indexer fan-out.
func (n *Node) onCommitted(b *types.Block, oldTip chain.Tip) {
	creditRewards(n.utxoMgr, b.Hash(), b.Rewards)
	for _, tx := range b.Transactions {
		n.pool.Remove(tx.TxID())
	}
	newTip := n.chainMgr.Tip()
	n.metricsReg.BlocksCommitted.Inc(1)
	n.metricsReg.ChainHeight.Update(int64(newTip.Height))
	if newTip.Hash != b.Hash() || oldTip.Hash == b.Header.PreviousHash {
		// Ordinary linear extension; only emit a reorg event when the
		// new tip didn't simply extend the previous one.
	} else if oldTip.Height > 0 && oldTip.Hash != b.Header.PreviousHash {
		n.metricsReg.ReorgsHandled.Inc(1)
		_ = n.publisher.PublishReorg(eventbus.ReorgEvent{OldTip: oldTip.Hash, NewTip: newTip.Hash, RevertedToHeight: newTip.Height, Depth: oldTip.Height - newTip.Height})
	}
	_ = n.publisher.PublishBlockCommitted(eventbus.BlockCommittedEvent{
		Height: b.Header.Height, Hash: b.Hash(), TxCount: len(b.Transactions), Timestamp: b.Header.Timestamp,
	})
	if n.indexer != nil {
		if err := n.indexer.IndexBlock(b, true); err != nil {
			logger.Error("sql indexer write failed", "height", b.Header.Height, "err", err)
		}
	}
}

// resolveConsensus drops every losing member of each conflict set
// represented in candidates, running the sampling engine to completion
// for any candidate with live conflicts still in the pool, and returns
// the surviving transactions in their original relative order (spec.md
// §4.3 drain_finalized feeding §4.5 consensus).
func (n *Node) resolveConsensus(candidates []*types.Transaction) []*types.Transaction {
	seen := make(map[common.Hash]bool, len(candidates))
	winners := make(map[common.Hash]bool, len(candidates))
	budget := time.Duration(n.cfg.SamplingParams.MaxRounds) * n.cfg.SamplingParams.QueryTimeout

	for _, tx := range candidates {
		id := tx.TxID()
		if seen[id] {
			continue
		}
		conflicts := n.pool.Conflicts(tx)
		if len(conflicts) == 0 {
			seen[id] = true
			winners[id] = true
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		outcome, err := n.sampler.Run(ctx, id, conflicts)
		cancel()
		seen[id] = true
		for _, c := range conflicts {
			seen[c] = true
		}
		if err == nil {
			winners[outcome.Winner] = true
		}
	}

	out := make([]*types.Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if winners[tx.TxID()] {
			out = append(out, tx)
		} else {
			n.pool.Remove(tx.TxID())
		}
	}
	return out
}

func (n *Node) tierCounts() types.TierCounts {
	var tc types.TierCounts
	for _, v := range n.registry.ActiveSet() {
		switch v.Tier {
		case types.TierBronze:
			tc.Bronze++
		case types.TierSilver:
			tc.Silver++
		case types.TierGold:
			tc.Gold++
		}
	}
	return tc
}

// RegisterValidator adds a validator to the registry at the node's
// current slot, used by genesis bootstrapping and by an operator
// onboarding a new masternode.
func (n *Node) RegisterValidator(v *types.Validator) {
	n.registry.Register(v, n.scheduler.CurrentSlot())
}
