package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/events"
)

type stubStore struct {
	last events.Event
}

func (s *stubStore) InsertEvent(_ context.Context, ev events.Event) error {
	s.last = ev
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
		Now:       func() time.Time { return now },
	}

	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, "order-1", map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.last.Topic)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.last.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
	require.Equal(t, now, event.OccurredAt)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitWithoutStoreStillNotifies(t *testing.T) {
	notifier := &captureNotifier{err: errors.New("smtp down")}
	bus := events.Bus{Notifiers: []events.Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicOrderPaid, "order-2", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "smtp down")
	require.Equal(t, "order-2", ev.AggregateID)
	require.JSONEq(t, `{}`, string(ev.Payload))
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "order-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, "order-1", "{not json")
	require.Error(t, err)
}
