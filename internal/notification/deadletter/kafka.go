package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka publishes dead-lettered deliveries to a Kafka topic keyed by message
// id, so replay tooling sees all attempts for one message in order.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka connects a producer to the given brokers.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

func (k *Kafka) Publish(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}
	record := &kgo.Record{Key: []byte(entry.MessageID), Value: raw}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce dead-letter entry: %w", err)
	}
	k.logger.Warn("delivery dead-lettered",
		"message_id", entry.MessageID,
		"channel", entry.Channel,
		"attempts", entry.Attempts,
		"last_error", entry.LastError,
	)
	return nil
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}
