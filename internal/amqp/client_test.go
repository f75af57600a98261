package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"financeflow/internal/core"
	"financeflow/internal/events"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, maxBackoff},
		{64, maxBackoff},
	}
	for _, tt := range tests {
		if got := exponentialBackoff(tt.attempt); got != tt.want {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("use of closed network connection"), true},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{core.Invalid("add entry", "amount must be greater than zero"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPublishingCarriesEventIdentity(t *testing.T) {
	at := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	ev := events.ForEntry(events.EntryPaid, core.Entry{ID: 7, OwnerID: 2, Title: "Rent", Category: "Housing", Amount: decimal.NewFromInt(300)}, at)

	msg, err := publishing(ev)
	if err != nil {
		t.Fatal(err)
	}
	if msg.MessageId != ev.ID.String() || msg.Type != string(events.EntryPaid) {
		t.Errorf("id/type = %q/%q", msg.MessageId, msg.Type)
	}
	if msg.DeliveryMode != amqp091.Persistent || msg.ContentType != "application/json" {
		t.Errorf("mode/content type = %d/%q", msg.DeliveryMode, msg.ContentType)
	}

	back, err := events.Unmarshal(msg.Body)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != ev.ID || back.EntryID != 7 || !back.Amount.Equal(ev.Amount) {
		t.Errorf("round trip = %+v", back)
	}
}

func TestHandleDelivery(t *testing.T) {
	ctx := context.Background()
	good, _ := events.ForBalance(1, decimal.NewFromInt(1000), time.Now()).Marshal()

	var seen atomic.Int32
	ok := func(context.Context, events.LedgerEvent) error { seen.Add(1); return nil }
	failing := func(context.Context, events.LedgerEvent) error { return errors.New("store down") }

	if got := handleDelivery(ctx, ok, good); got != outcomeAck {
		t.Errorf("handled event outcome = %d, want ack", got)
	}
	if seen.Load() != 1 {
		t.Errorf("handler ran %d times", seen.Load())
	}
	if got := handleDelivery(ctx, failing, good); got != outcomeRequeue {
		t.Errorf("handler failure outcome = %d, want requeue", got)
	}
	if got := handleDelivery(ctx, ok, []byte("{not json")); got != outcomeDrop {
		t.Errorf("malformed outcome = %d, want drop", got)
	}
	if seen.Load() != 1 {
		t.Error("handler ran for a malformed payload")
	}
}

func TestCircuitBreaker(t *testing.T) {
	c := &Client{exchangeName: "financeflow", queueName: "ledger_events"}

	if c.isCircuitOpen() {
		t.Fatal("breaker should start closed")
	}
	for i := 0; i < maxFailures; i++ {
		c.recordFailure()
	}
	if !c.isCircuitOpen() {
		t.Fatal("breaker should open after max failures")
	}

	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if c.isCircuitOpen() || atomic.LoadInt32(&c.state) != StateHalfOpen {
		t.Fatal("breaker should be half-open after the timeout")
	}

	c.recordSuccess()
	if atomic.LoadInt32(&c.state) != StateClosed || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("success should close the breaker")
	}
}

func TestPublishShortCircuits(t *testing.T) {
	c := &Client{exchangeName: "financeflow", queueName: "ledger_events"}
	ev := events.ForEntry(events.EntryCreated, core.Entry{ID: 123, OwnerID: 1}, time.Now())

	atomic.StoreInt32(&c.state, StateOpen)
	c.lastFailure = time.Now()
	if err := c.Publish(context.Background(), ev); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker: err = %v, want ErrCircuitOpen", err)
	}

	atomic.StoreInt32(&c.state, StateClosed)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Publish(ctx, ev); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: err = %v", err)
	}
}
