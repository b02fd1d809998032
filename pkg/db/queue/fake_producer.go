package queue

import (
	"github.com/IBM/sarama"
)

// fakeSyncProducer records messages instead of producing them. sarama's
// SyncProducer interface drags the transactional API along; only SendMessage
// and SendMessages matter here, the rest are inert stubs.
type fakeSyncProducer struct {
	sent []*sarama.ProducerMessage
}

var _ sarama.SyncProducer = (*fakeSyncProducer)(nil)

func (f *fakeSyncProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	f.sent = append(f.sent, msg)
	return 0, 0, nil
}

func (f *fakeSyncProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	f.sent = append(f.sent, msgs...)
	return nil
}

func (f *fakeSyncProducer) Close() error { return nil }

func (f *fakeSyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnFlagReady
}

func (f *fakeSyncProducer) IsTransactional() bool { return false }

func (f *fakeSyncProducer) BeginTxn() error { return nil }

func (f *fakeSyncProducer) CommitTxn() error { return nil }

func (f *fakeSyncProducer) AbortTxn() error { return nil }

func (f *fakeSyncProducer) AddMessageToTxn(*sarama.ConsumerMessage, string, *string) error {
	return nil
}

func (f *fakeSyncProducer) AddOffsetsToTxn(map[string][]*sarama.PartitionOffsetMetadata, string) error {
	return nil
}
