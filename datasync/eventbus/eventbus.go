// Package eventbus publishes node lifecycle events (block commits,
// transaction finalization, reorgs) to an external Kafka topic for
// downstream indexers and explorers, supplementing spec.md's persisted
// state with the kind of external fan-out the original system's
// chaindatafetcher provided.
//
// Grounded on the teacher's
// datasync/chaindatafetcher/event/kafka/kafka.go: an AsyncProducer
// configured once, topics are created lazily, and payloads are
// JSON-marshaled before being handed to producer.Input().
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger("eventbus")

// Topic names for the three event kinds a Publisher accepts.
const (
	TopicBlockCommitted       = "slotchain-block-committed"
	TopicTransactionFinalized = "slotchain-transaction-finalized"
	TopicReorg                = "slotchain-reorg"
)

// BlockCommittedEvent is published once per chain.Manager.Commit.
type BlockCommittedEvent struct {
	Height    uint64      `json:"height"`
	Hash      common.Hash `json:"hash"`
	TxCount   int         `json:"tx_count"`
	Timestamp int64       `json:"timestamp"`
}

// TransactionFinalizedEvent describes a transaction whose inputs are
// buried past FinalizationDepth (spec.md §4.7). Publishers accept it, but
// node.Node never publishes one; it emits only block-committed and reorg
// events.
type TransactionFinalizedEvent struct {
	TxID        common.Hash `json:"txid"`
	BlockHeight uint64      `json:"block_height"`
}

// ReorgEvent is published whenever the chain manager switches tips.
type ReorgEvent struct {
	OldTip       common.Hash `json:"old_tip"`
	NewTip       common.Hash `json:"new_tip"`
	RevertedToHeight uint64  `json:"reverted_to_height"`
	Depth        uint64      `json:"depth"`
}

// Publisher is the narrow interface the node depends on, so tests and
// ephemeral/testnet nodes can swap in a no-op implementation.
type Publisher interface {
	PublishBlockCommitted(e BlockCommittedEvent) error
	PublishTransactionFinalized(e TransactionFinalizedEvent) error
	PublishReorg(e ReorgEvent) error
	Close()
}

// KafkaPublisher is the production Publisher, backed by a
// sarama.AsyncProducer exactly as the teacher's KafkaBroker configures one.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
}

// NewKafkaPublisher dials brokers and configures the producer the way
// KafkaBroker.newProducer does: local acks, snappy compression, and a
// bounded flush interval so small events don't each trigger their own
// network round trip.
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	kp := &KafkaPublisher{producer: producer}
	go kp.drainErrors()
	return kp, nil
}

func (kp *KafkaPublisher) drainErrors() {
	for err := range kp.producer.Errors() {
		logger.Error("kafka publish failed", "topic", err.Msg.Topic, "err", err.Err)
	}
}

func (kp *KafkaPublisher) publish(topic string, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	kp.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

func (kp *KafkaPublisher) PublishBlockCommitted(e BlockCommittedEvent) error {
	return kp.publish(TopicBlockCommitted, e.Hash.Hex(), e)
}

func (kp *KafkaPublisher) PublishTransactionFinalized(e TransactionFinalizedEvent) error {
	return kp.publish(TopicTransactionFinalized, e.TxID.Hex(), e)
}

func (kp *KafkaPublisher) PublishReorg(e ReorgEvent) error {
	return kp.publish(TopicReorg, e.NewTip.Hex(), e)
}

func (kp *KafkaPublisher) Close() {
	kp.producer.AsyncClose()
}

// NoopPublisher discards every event; used by tests and nodes run
// without a configured Kafka broker.
type NoopPublisher struct{}

func (NoopPublisher) PublishBlockCommitted(BlockCommittedEvent) error             { return nil }
func (NoopPublisher) PublishTransactionFinalized(TransactionFinalizedEvent) error { return nil }
func (NoopPublisher) PublishReorg(ReorgEvent) error                              { return nil }
func (NoopPublisher) Close()                                                      {}
