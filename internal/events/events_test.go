package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-matching/internal/matching"
)

var at = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func sampleEvents() []matching.Event {
	return []matching.Event{
		&matching.OrderAcceptedEvent{
			EventHeader: matching.NewEventHeader("BTC/USDT", matching.EventOrderAccepted, 1, at),
			OrderID:     "o1",
			AccountID:   "a1",
			Side:        matching.SideBuy,
			Type:        matching.OrderTypeLimit,
			Price:       decimal.RequireFromString("100"),
			Quantity:    decimal.RequireFromString("1"),
		},
		&matching.BookDeltaEvent{
			EventHeader: matching.NewEventHeader("BTC/USDT", matching.EventBookDelta, 2, at),
			Side:        matching.SideBuy,
			Price:       decimal.RequireFromString("100"),
			Quantity:    decimal.RequireFromString("1"),
			Orders:      1,
		},
	}
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []int64
	bus.Subscribe("recorder", func(ev matching.Event) error {
		got = append(got, ev.Sequence())
		return nil
	})
	failing := errors.New("boom")
	calls := 0
	bus.Subscribe("failing", func(ev matching.Event) error {
		calls++
		return failing
	})

	err := bus.Publish(context.Background(), sampleEvents())
	assert.ErrorIs(t, err, failing)
	assert.Equal(t, []int64{1, 2}, got)
	assert.Equal(t, 2, calls)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherBuildsKeyedMessages(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	require.NoError(t, p.Publish(context.Background(), sampleEvents()))
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	assert.Equal(t, "BTC/USDT", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "OrderAccepted", headers["event_type"])
	assert.Equal(t, "1", headers["sequence"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "o1", body["order_id"])
	assert.Equal(t, "100", body["price"])

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Len(t, w.msgs, 2)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	down := errors.New("broker down")
	p := &KafkaPublisher{writer: &fakeWriter{err: down}}
	assert.ErrorIs(t, p.Publish(context.Background(), sampleEvents()), down)
}

func TestMultiPublisherCallsAll(t *testing.T) {
	first := &KafkaPublisher{writer: &fakeWriter{err: errors.New("x")}}
	second := &fakeWriter{}
	m := MultiPublisher{first, nil, &KafkaPublisher{writer: second}}
	assert.Error(t, m.Publish(context.Background(), sampleEvents()))
	assert.Len(t, second.msgs, 2)
}
