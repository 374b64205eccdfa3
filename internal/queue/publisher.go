// Package queue implements the asynchronous order pipeline between the
// admission gate and the database: a Kafka publisher for admitted order
// skeletons, a consumer source with manual offset commits, and the
// persistence worker that applies orders transactionally.
//
// Delivery is at-least-once end to end. The publisher confirms the broker
// write before Publish returns; the worker commits an offset only after the
// order's effect is durable (or provably already applied). Duplicates are
// therefore possible and the worker is idempotent against them.
package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/tbourn/go-deals-backend/internal/domain"
)

// MessageWriter is the broker-side surface the publisher needs. Satisfied
// by *kafka.Writer; tests substitute an in-memory capture.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter builds the kafka.Writer used in production. RequireAll acks:
// Publish must not report success for a write the broker could still lose.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
}

// Publisher hands admitted order skeletons to the intake topic. It is the
// production implementation of the gate's OrderPublisher.
type Publisher struct {
	w MessageWriter
}

// NewPublisher wraps a MessageWriter.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// Publish writes one order skeleton as JSON. The message key is the voucher
// ID, so all orders for one sale land on one partition and drain in order.
func (p *Publisher) Publish(ctx context.Context, order domain.VoucherOrder) error {
	value, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(order.VoucherID, 10)),
		Value: value,
	})
}
