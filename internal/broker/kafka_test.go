package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newRetryingConsumer() *Consumer {
	return &Consumer{logger: zap.NewNop(), retryBase: time.Millisecond, retryMax: 4 * time.Millisecond}
}

func TestHandleWithRetry_RetriesSameMessageUntilSuccess(t *testing.T) {
	c := newRetryingConsumer()
	var offsets []int64
	handler := func(ctx context.Context, msg kafka.Message) error {
		offsets = append(offsets, msg.Offset)
		if len(offsets) < 3 {
			return errors.New("journal unavailable")
		}
		return nil
	}

	err := c.handleWithRetry(context.Background(), handler, kafka.Message{Offset: 7})
	assert.NoError(t, err)
	assert.Equal(t, []int64{7, 7, 7}, offsets)
}

func TestHandleWithRetry_StopsWhenContextDone(t *testing.T) {
	c := newRetryingConsumer()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.handleWithRetry(ctx, func(ctx context.Context, msg kafka.Message) error {
		return errors.New("journal unavailable")
	}, kafka.Message{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
