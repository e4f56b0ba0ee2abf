// Package indexer persists a queryable relational projection of the
// chain — block and transaction summaries — to an external SQL database
// for explorer-style lookups that the append-only KVStore isn't suited
// for (range scans by address, by height, by time).
//
// Grounded on the teacher's
// datasync/chaindatafetcher/kafka/repository.go: a narrow repository
// type wrapping one external sink, fed by chain.Manager.Commit the same
// way repository.HandleChainEvent is fed by a blockchain.ChainEvent.
// The SQL store itself (jinzhu/gorm over go-sql-driver/mysql) is
// declared in the teacher's go.mod but not exercised by any retrieved
// source file in the pack; it is wired here on the strength of gorm's
// well-known stable API (AutoMigrate/Create) rather than an observed
// call site — see DESIGN.md.
package indexer

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger("indexer")

// BlockRecord is the relational projection of a committed block.
type BlockRecord struct {
	Height        uint64 `gorm:"primary_key"`
	Hash          string `gorm:"unique_index;size:66"`
	PreviousHash  string `gorm:"size:66"`
	LeaderAddress string `gorm:"index;size:128"`
	Timestamp     int64
	TxCount       int
	BlockReward   uint64
	Canonical     bool `gorm:"index"`
}

func (BlockRecord) TableName() string { return "blocks" }

// TransactionRecord is the relational projection of one transaction,
// keyed by txid and the block that included it.
type TransactionRecord struct {
	TxID        string `gorm:"primary_key;size:66"`
	BlockHeight uint64 `gorm:"index"`
	Fee         uint64
	InputCount  int
	OutputCount int
	IndexedAt   time.Time
}

func (TransactionRecord) TableName() string { return "transactions" }

// Repository is the SQL-backed indexer.
type Repository struct {
	db *gorm.DB
}

// Open connects to a MySQL-compatible DSN and migrates the schema,
// mirroring the teacher's NewRepository(config) constructor shape.
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.AutoMigrate(&BlockRecord{}, &TransactionRecord{})
	return &Repository{db: db}, nil
}

// IndexBlock upserts a committed block and its transactions, the SQL
// analogue of the teacher's repository.HandleChainEvent.
func (r *Repository) IndexBlock(b *types.Block, canonical bool) error {
	rec := BlockRecord{
		Height:        b.Header.Height,
		Hash:          b.Hash().Hex(),
		PreviousHash:  b.Header.PreviousHash.Hex(),
		LeaderAddress: string(b.Header.LeaderAddress),
		Timestamp:     b.Header.Timestamp,
		TxCount:       len(b.Transactions),
		BlockReward:   b.Header.BlockReward,
		Canonical:     canonical,
	}
	if err := r.db.Save(&rec).Error; err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		txRec := TransactionRecord{
			TxID:        tx.TxID().Hex(),
			BlockHeight: b.Header.Height,
			Fee:         tx.Fee,
			InputCount:  len(tx.Inputs),
			OutputCount: len(tx.Outputs),
			IndexedAt:   time.Now(),
		}
		if err := r.db.Save(&txRec).Error; err != nil {
			logger.Error("failed to index transaction", "txid", txRec.TxID, "err", err)
			return err
		}
	}
	return nil
}

// MarkReorged flips Canonical to false for every block above the common
// ancestor height that was reverted, so explorer queries stop surfacing
// the abandoned branch (spec.md §4.7 reorg).
func (r *Repository) MarkReorged(hashes []common.Hash) error {
	for _, h := range hashes {
		if err := r.db.Model(&BlockRecord{}).Where("hash = ?", h.Hex()).Update("canonical", false).Error; err != nil {
			return err
		}
	}
	return nil
}

// BlockByHeight looks up the canonical block's projection, used by
// read-only explorer-style queries.
func (r *Repository) BlockByHeight(height uint64) (BlockRecord, bool) {
	var rec BlockRecord
	err := r.db.Where("height = ? AND canonical = ?", height, true).First(&rec).Error
	if err != nil {
		return BlockRecord{}, false
	}
	return rec, true
}

func (r *Repository) Close() error { return r.db.Close() }
