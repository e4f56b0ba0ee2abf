// Package node wires C1–C8 (crypto, UTXO manager, mempool, validator
// registry, sampling consensus, slot scheduler, chain manager, peer
// transport) plus the ambient storage/metrics/datasync layers into one
// running process, the way the teacher's node/service.go and
// node/defaults.go assemble its services and their shared Config.
package node

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/consensus/sampling"
	"github.com/slotchain/slotchain/core/chain"
)

// BootstrapPeer is one trusted peer a node dials at startup and treats
// as whitelisted (spec.md §4.8: "trusted peer addresses from bootstrap
// or operator configuration, never peer-announced").
type BootstrapPeer struct {
	Address common.Address
	NetAddr string
}

// Config is the plain struct of protocol constants and resource caps
// every component reads from, grounded on the teacher's node.Config /
// DefaultConfig split in node/defaults.go.
type Config struct {
	DataDir   string
	DBBackend string // "leveldb" or "badger" (storage.LevelDB / storage.Badger)
	CacheSizeMB int
	DBHandles   int

	NetworkID    string
	ListenAddr   string
	Bootstrap    []BootstrapPeer
	MetricsAddr  string
	KafkaBrokers []string
	SQLDSN       string // empty disables the relational indexer

	GenesisTime    time.Time
	SlotDuration   time.Duration
	SamplingParams sampling.Params // MainnetParams or TestnetParams
	Checkpoints    []chain.Checkpoint
}

// DefaultConfig mirrors the teacher's DefaultConfig var: reasonable
// settings for a standalone mainnet-profile node.
var DefaultConfig = Config{
	DataDir:        DefaultDataDir(),
	DBBackend:      "leveldb",
	CacheSizeMB:    256,
	DBHandles:      256,
	NetworkID:      "slotchain-mainnet",
	ListenAddr:     ":30900",
	MetricsAddr:    "127.0.0.1:9100",
	SlotDuration:   600 * time.Second,
	SamplingParams: sampling.MainnetParams,
}

// DefaultDataDir places the data folder in the user's home directory,
// following the teacher's node/defaults.go DefaultDataDir exactly
// (same OS-specific subpaths), renamed to this project.
func DefaultDataDir() string {
	dirname := filepath.Base(os.Args[0])
	if dirname == "" {
		dirname = "slotchain"
	}
	home := homeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", strings.ToUpper(dirname))
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", strings.ToUpper(dirname))
	default:
		return filepath.Join(home, "."+dirname)
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
