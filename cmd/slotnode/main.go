// Command slotnode runs a single slot-scheduled consensus node: it
// loads or generates a validator key, assembles node.Config from CLI
// flags, and runs until interrupted.
//
// Flag layout and the app/init/main split follow the teacher's
// cmd/kcn/main.go, narrowed from klaytn's sprawling flag set down to
// this protocol's own configuration surface.
package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/units"
	"gopkg.in/urfave/cli.v1"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/consensus/sampling"
	"github.com/slotchain/slotchain/core/chain"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/crypto"
	"github.com/slotchain/slotchain/log"
	"github.com/slotchain/slotchain/node"
	"github.com/slotchain/slotchain/params"
)

var logger = log.NewModuleLogger(log.ModuleNode)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for chain, utxo, and validator state",
		Value: node.DefaultDataDir(),
	}
	dbBackendFlag = cli.StringFlag{
		Name:  "db-backend",
		Usage: "Storage backend: leveldb or badger",
		Value: "leveldb",
	}
	cacheFlag = cli.StringFlag{
		Name:  "cache",
		Usage: "Storage block cache size (e.g. 256MB)",
		Value: "256MB",
	}
	listenAddrFlag = cli.StringFlag{
		Name:  "listen-addr",
		Usage: "Address this node listens for peer connections on",
		Value: ":30900",
	}
	networkIDFlag = cli.StringFlag{
		Name:  "network-id",
		Usage: "Network identifier exchanged during the peer handshake",
		Value: "slotchain-mainnet",
	}
	bootstrapFlag = cli.StringSliceFlag{
		Name:  "bootstrap",
		Usage: "Trusted bootstrap peer as address@host:port, repeatable",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Address for the Prometheus /metrics and /healthz endpoint",
		Value: "127.0.0.1:9100",
	}
	kafkaBrokersFlag = cli.StringFlag{
		Name:  "kafka-brokers",
		Usage: "Comma-separated Kafka brokers for the event bus (blank disables it)",
	}
	sqlDSNFlag = cli.StringFlag{
		Name:  "sql-dsn",
		Usage: "MySQL DSN for the relational block/transaction indexer (blank disables it)",
	}
	genesisTimeFlag = cli.Int64Flag{
		Name:  "genesis-time",
		Usage: "Genesis slot-0 boundary, Unix seconds",
		Value: 1_700_000_000,
	}
	slotDurationFlag = cli.DurationFlag{
		Name:  "slot-duration",
		Usage: "Slot duration",
		Value: 600 * time.Second,
	}
	testnetFlag = cli.BoolFlag{
		Name:  "testnet",
		Usage: "Use testnet sampling parameters (k=10, alpha=7, beta=5)",
	}
	keyFileFlag = cli.StringFlag{
		Name:  "keyfile",
		Usage: "Path to this validator's hex-encoded Ed25519 private key, generated on first run if absent",
		Value: "validator.key",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "slotnode"
	app.Usage = "slot-scheduled UTXO consensus node"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		dataDirFlag, dbBackendFlag, cacheFlag, listenAddrFlag, networkIDFlag,
		bootstrapFlag, metricsAddrFlag, kafkaBrokersFlag, sqlDSNFlag,
		genesisTimeFlag, slotDurationFlag, testnetFlag, keyFileFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	sk, err := loadOrCreateKey(ctx.String(keyFileFlag.Name))
	if err != nil {
		return fmt.Errorf("load validator key: %w", err)
	}
	pub := sk.Public().(crypto.PublicKey)
	self := crypto.Address(pub)
	logger.Info("validator identity", "address", self)

	raw := ctx.StringSlice(bootstrapFlag.Name)
	if len(raw) == 0 {
		if ctx.Bool(testnetFlag.Name) {
			raw = params.TestnetBootstrapPeers
		} else {
			raw = params.MainnetBootstrapPeers
		}
	}
	bootstrap, err := parseBootstrapPeers(raw)
	if err != nil {
		return err
	}

	cacheSize, err := units.ParseBase2Bytes(ctx.String(cacheFlag.Name))
	if err != nil {
		return fmt.Errorf("parse --cache: %w", err)
	}

	samplingParams := sampling.MainnetParams
	if ctx.Bool(testnetFlag.Name) {
		samplingParams = sampling.TestnetParams
	}

	cfg := node.Config{
		DataDir:        ctx.String(dataDirFlag.Name),
		DBBackend:      ctx.String(dbBackendFlag.Name),
		CacheSizeMB:    int(cacheSize / units.MiB),
		DBHandles:      256,
		NetworkID:      ctx.String(networkIDFlag.Name),
		ListenAddr:     ctx.String(listenAddrFlag.Name),
		Bootstrap:      bootstrap,
		MetricsAddr:    ctx.String(metricsAddrFlag.Name),
		GenesisTime:    time.Unix(ctx.Int64(genesisTimeFlag.Name), 0),
		SlotDuration:   ctx.Duration(slotDurationFlag.Name),
		SamplingParams: samplingParams,
	}
	if brokers := ctx.String(kafkaBrokersFlag.Name); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.SQLDSN = ctx.String(sqlDSNFlag.Name)

	genesis := devGenesis(self, cfg.GenesisTime)

	n, err := node.NewNode(cfg, sk, genesis)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}
	n.RegisterValidator(&types.Validator{Address: self, PublicKey: pub, Tier: types.TierGold, Active: true})

	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	n.Stop()
	return nil
}

// devGenesis constructs a single-validator genesis block crediting self
// with the fixed genesis reward, used when a fresh data directory has no
// persisted chain_meta yet. A production network instead ships a
// well-known genesis file; this node has no such distribution channel,
// so the single-node genesis is generated locally and deterministically
// from the configured genesis time.
func devGenesis(self common.Address, genesisTime time.Time) *types.Block {
	hdr := types.Header{
		Version:     1,
		Height:      0,
		Timestamp:   genesisTime.Unix(),
		BlockReward: chain.BlockRewardGenesis,
	}
	return &types.Block{Header: hdr, Rewards: map[common.Address]uint64{self: chain.BlockRewardGenesis}}
}

func loadOrCreateKey(path string) (crypto.PrivateKey, error) {
	raw, err := ioutil.ReadFile(path)
	if err == nil {
		decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode keyfile: %w", err)
		}
		return crypto.PrivateKey(decoded), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	_, sk, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if writeErr := ioutil.WriteFile(path, []byte(hex.EncodeToString(sk)), 0600); writeErr != nil {
		logger.Warn("failed to persist generated key", "path", path, "err", writeErr)
	}
	return sk, nil
}

func parseBootstrapPeers(raw []string) ([]node.BootstrapPeer, error) {
	peers := make([]node.BootstrapPeer, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "@", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bootstrap peer %q must be address@host:port", entry)
		}
		peers = append(peers, node.BootstrapPeer{Address: common.Address(parts[0]), NetAddr: parts[1]})
	}
	return peers, nil
}
