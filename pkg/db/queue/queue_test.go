package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/bookfeed/pkg/messaging"
)

func TestSendGapAlert(t *testing.T) {
	producer := &fakeSyncProducer{}
	sender := &QueueAlertSender{producer: producer}

	alert := &GapAlert{
		ProductID: "BTC-USD",
		Time:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Skipped: messaging.SkippedMessageEvent{
			ExpectedSequence: 101,
			Sequence:         105,
		},
	}

	err := sender.SendGapAlert(alert)
	require.NoError(t, err)
	require.Len(t, producer.sent, 1)

	msg := producer.sent[0]
	assert.Equal(t, topic, msg.Topic)

	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", string(key))

	value, err := msg.Value.Encode()
	require.NoError(t, err)

	var decoded GapAlert
	require.NoError(t, json.Unmarshal(value, &decoded))
	assert.Equal(t, int64(101), decoded.Skipped.ExpectedSequence)
	assert.Equal(t, int64(105), decoded.Skipped.Sequence)
	assert.Equal(t, "BTC-USD", decoded.ProductID)
}

func TestSetBrokerListAndTopic(t *testing.T) {
	origBrokers := brokerList
	origTopic := topic
	defer func() {
		brokerList = origBrokers
		topic = origTopic
	}()

	SetBrokerList([]string{"kafka-1:9092", "kafka-2:9092"})
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, brokerList)

	SetTopic("alerts.test")
	assert.Equal(t, "alerts.test", topic)

	// Empty values leave the current settings alone
	SetBrokerList(nil)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, brokerList)
	SetTopic("")
	assert.Equal(t, "alerts.test", topic)
}
