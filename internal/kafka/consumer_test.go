package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/logging"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func newTestConsumer() *Consumer {
	return &Consumer{workers: 1, backoff: time.Millisecond, maxBackoff: 2 * time.Millisecond, log: logging.Discard()}
}

func TestHandle_RetriesFailedMessageInPlace(t *testing.T) {
	c := newTestConsumer()
	var seen []int64
	h := func(_ context.Context, m kafka.Message) error {
		seen = append(seen, m.Offset)
		if len(seen) < 3 {
			return errors.New("ledger unavailable")
		}
		return nil
	}

	ok := c.handle(context.Background(), h, kafka.Message{Partition: 1, Offset: 7})
	assert.True(t, ok)
	assert.Equal(t, []int64{7, 7, 7}, seen)
}

func TestHandle_FailsOnceThenCommits(t *testing.T) {
	c := newTestConsumer()
	calls := 0
	h := func(context.Context, kafka.Message) error {
		calls++
		if calls == 1 {
			return errors.New("boom")
		}
		return nil
	}

	assert.True(t, c.handle(context.Background(), h, kafka.Message{Offset: 1}))
	assert.Equal(t, 2, calls)
}

func TestHandle_StopsWhenContextEnds(t *testing.T) {
	c := newTestConsumer()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	h := func(context.Context, kafka.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("still failing")
	}

	done := make(chan bool, 1)
	go func() { done <- c.handle(ctx, h, kafka.Message{Offset: 3}) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
		assert.Equal(t, 2, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not return after cancel")
	}
}
