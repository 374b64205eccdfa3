package queue

import (
	"context"

	kafka "github.com/segmentio/kafka-go"
)

// Source is the consumer-side surface the worker drains: fetch a message,
// and later commit it once its effect is durable. Satisfied by KafkaSource;
// tests substitute an in-memory queue.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// KafkaSource adapts a kafka.Reader to the Source interface.
type KafkaSource struct {
	r *kafka.Reader
}

// NewKafkaSource builds a consumer-group reader with automatic commits
// disabled; offsets move only through Commit.
func NewKafkaSource(brokers []string, topic, groupID string) *KafkaSource {
	return &KafkaSource{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})}
}

// Fetch blocks for the next uncommitted message.
func (s *KafkaSource) Fetch(ctx context.Context) (kafka.Message, error) {
	return s.r.FetchMessage(ctx)
}

// Commit marks the message consumed for this group.
func (s *KafkaSource) Commit(ctx context.Context, msg kafka.Message) error {
	return s.r.CommitMessages(ctx, msg)
}

// Close releases the underlying reader.
func (s *KafkaSource) Close() error {
	return s.r.Close()
}
