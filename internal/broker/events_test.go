package broker

import (
	"context"
	"encoding/json"
	"testing"

	"dealer-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	keys   []string
	events []interface{}
}

func (r *recordingSink) PublishEvent(ctx context.Context, key string, event interface{}) error {
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
	return nil
}

func TestPublishTransitionKeysByEntity(t *testing.T) {
	sink := &recordingSink{}
	ep := NewEventPublisher(sink)

	ev := NewTransitionEvent(models.EntityQuotation, 12, 3, "approve", "Pending", "Accepted", 9)
	require.NoError(t, ep.PublishTransition(context.Background(), ev))

	assert.Equal(t, []string{"quotation-12"}, sink.keys)
	assert.Equal(t, models.EventTypeQuotationTransitioned, ev.EventType)
	assert.NotEmpty(t, ev.EventID)
}

func TestHandleMessageRoutesTransitions(t *testing.T) {
	var got *models.StatusTransitionedEvent
	eh := NewEventHandler()
	eh.OnTransition(func(ctx context.Context, e *models.StatusTransitionedEvent) error {
		got = e
		return nil
	})

	ev := NewTransitionEvent(models.EntityOrder, 5, 1, "cancel", "Pending", "Cancelled", 0)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: raw}))
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.EntityID)
	assert.Equal(t, "Cancelled", got.ToStatus)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	eh := NewEventHandler()
	raw := []byte(`{"event_id":"x","event_type":"SOMETHING_ELSE"}`)
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: raw}))
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	eh := NewEventHandler()
	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
}

func TestHeaderCarrier(t *testing.T) {
	var headers []kafka.Header
	c := headerCarrier{headers: &headers}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("baggage", "k=v")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, c.Keys())
	assert.Len(t, headers, 2)
}
