package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestPublish_WrapsDataInEnvelope(t *testing.T) {
	// GIVEN: A publisher on the flexitime exchange
	// WHEN: Publishing a balance alert with a correlation id in the context
	// THEN: Routed by event type, persistent JSON envelope carrying the data

	ch := &fakeChannel{}
	p := newPublisher(ch, ExchangeFlexitime, "flexitime", zerolog.Nop())
	ctx := WithCorrelationID(context.Background(), "req-42")

	alert := flexitime.BalanceAlert{EmployeeID: "emp-1", Balance: "18", Limit: "20", Level: flexitime.AlertWarning}
	require.NoError(t, p.Publish(ctx, flexitime.EventBalanceAlert, alert))

	require.Len(t, ch.sent, 1)
	sent := ch.sent[0]
	assert.Equal(t, ExchangeFlexitime, sent.exchange)
	assert.Equal(t, flexitime.EventBalanceAlert, sent.key)
	assert.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
	assert.Equal(t, "req-42", sent.msg.CorrelationId)

	var event Event
	require.NoError(t, json.Unmarshal(sent.msg.Body, &event))
	assert.Equal(t, sent.msg.MessageId, event.ID)
	assert.Equal(t, "flexitime", event.Source)

	var got flexitime.BalanceAlert
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, alert, got)
}

func TestPublish_ChannelError(t *testing.T) {
	p := newPublisher(&fakeChannel{err: errors.New("channel closed")}, ExchangeFlexitime, "flexitime", zerolog.Nop())
	err := p.Publish(context.Background(), flexitime.EventWeekSubmitted, flexitime.WeekEvent{WeekID: "w1"})
	assert.ErrorContains(t, err, "channel closed")
}

func TestNewEvent_UnencodableData(t *testing.T) {
	_, err := NewEvent("x", "flexitime", "", make(chan int))
	assert.Error(t, err)
}
