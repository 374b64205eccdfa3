package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	kafka "github.com/segmentio/kafka-go"

	"github.com/tbourn/go-deals-backend/internal/domain"
)

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail error
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublish_EncodesOrderAndKeysByVoucher(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(w)

	order := domain.VoucherOrder{ID: 77, VoucherID: 12, UserID: "u1"}
	if err := p.Publish(context.Background(), order); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "12" {
		t.Fatalf("key = %q, want voucher id", m.Key)
	}
	var got domain.VoucherOrder
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.ID != 77 || got.VoucherID != 12 || got.UserID != "u1" {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestPublish_PropagatesBrokerError(t *testing.T) {
	w := &captureWriter{fail: errors.New("broker down")}
	p := NewPublisher(w)

	if err := p.Publish(context.Background(), domain.VoucherOrder{ID: 1}); err == nil {
		t.Fatal("expected broker error to surface")
	}
}
