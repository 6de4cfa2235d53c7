package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfirm resolves when a value is sent on result
type fakeConfirm struct {
	result chan bool
}

func newFakeConfirm() *fakeConfirm {
	return &fakeConfirm{result: make(chan bool, 1)}
}

func resolvedConfirm(ack bool) *fakeConfirm {
	c := newFakeConfirm()
	c.result <- ack
	return c
}

func (c *fakeConfirm) WaitContext(ctx context.Context) (bool, error) {
	select {
	case ack := <-c.result:
		return ack, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// fakeChannel hands out confirms in order, one per publish
type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	confirms  []*fakeConfirm
	err       error
	closed    bool
}

func (f *fakeChannel) PublishDeferred(_ context.Context, _, key string, msg amqp.Publishing) (confirmation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	conf := f.confirms[0]
	f.confirms = f.confirms[1:]
	return conf, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func sampleEvent() SplitCommittedEvent {
	return SplitCommittedEvent{
		OriginalOrderID: "order-1",
		TableID:         "T12",
		NewOrderIDs:     []string{"new-1"},
		Buckets: []BucketSummary{{
			OrderID: "new-1",
			Name:    "Split 1",
			Totals:  Totals{Subtotal: "30.00", Discount: "0", Tax: "2.07", Total: "32.07"},
		}},
		Remainder: Totals{Subtotal: "70.00", Discount: "0", Tax: "4.83", Total: "74.83"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "orders.split.T12", RoutingKey("T12"))
	assert.Equal(t, "orders.split.none", RoutingKey(" "))
	assert.Equal(t, "orders.split.patio_3", RoutingKey("patio.3"))
}

func TestEncode(t *testing.T) {
	body, err := Encode(sampleEvent())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, EventSplitCommitted, decoded["type"])
	assert.Equal(t, "order-1", decoded["original_order_id"])
	assert.NotEmpty(t, decoded["committed_at"])

	buckets := decoded["buckets"].([]any)
	require.Len(t, buckets, 1)
	bucket := buckets[0].(map[string]any)
	assert.Equal(t, "32.07", bucket["total"], "totals are flattened into the bucket")
}

func TestAMQPPublisher_Ack(t *testing.T) {
	ch := &fakeChannel{confirms: []*fakeConfirm{resolvedConfirm(true)}}
	p := newAMQPPublisher(ch, "orders_topic", quietLogger())

	require.NoError(t, p.PublishSplitCommitted(context.Background(), sampleEvent()))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "orders.split.T12", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, EventSplitCommitted, ch.published[0].Type)
}

func TestAMQPPublisher_Nack(t *testing.T) {
	ch := &fakeChannel{confirms: []*fakeConfirm{resolvedConfirm(false)}}
	p := newAMQPPublisher(ch, "orders_topic", quietLogger())

	err := p.PublishSplitCommitted(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrNack)
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	p := newAMQPPublisher(&fakeChannel{err: amqp.ErrClosed}, "orders_topic", quietLogger())

	err := p.PublishSplitCommitted(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestAMQPPublisher_ConfirmTimeout(t *testing.T) {
	ch := &fakeChannel{confirms: []*fakeConfirm{newFakeConfirm()}}
	p := newAMQPPublisher(ch, "orders_topic", quietLogger())
	p.timeout = 10 * time.Millisecond

	err := p.PublishSplitCommitted(context.Background(), sampleEvent())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAMQPPublisher_LateAckDoesNotAnswerNextPublish(t *testing.T) {
	first, second := newFakeConfirm(), newFakeConfirm()
	ch := &fakeChannel{confirms: []*fakeConfirm{first, second}}
	p := newAMQPPublisher(ch, "orders_topic", quietLogger())
	p.timeout = 10 * time.Millisecond

	err := p.PublishSplitCommitted(context.Background(), sampleEvent())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The first message is acked after its publish gave up; the second is refused
	first.result <- true
	second.result <- false

	err = p.PublishSplitCommitted(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrNack)
	assert.Len(t, ch.published, 2)
}

func TestAMQPPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(ch, "orders_topic", quietLogger())

	assert.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishSplitCommitted(context.Background(), sampleEvent()))
	assert.NoError(t, p.Close())
}
