package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chesapeake-backend/internal/domain"
)

func TestPublishOrderCreated(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "order_events" {
			return errors.New("wrong topic " + msg.Topic)
		}
		b, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var ev domain.OrderEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.DisplayOrderID != "26-001" || ev.ItemCount != 2 {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := &Publisher{Producer: producer, Topic: "order_events", Log: zaptest.NewLogger(t)}
	err := p.PublishOrderCreated(context.Background(), domain.OrderEvent{
		EventType:      "order_created",
		OrderID:        "o1",
		DisplayOrderID: "26-001",
		OrderType:      domain.OrderStandard,
		TotalCents:     4000,
		ItemCount:      2,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestPublishOrderCreatedSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := &Publisher{Producer: producer, Topic: "order_events"}
	err := p.PublishOrderCreated(context.Background(), domain.OrderEvent{OrderID: "o1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestHeaderCarrier(t *testing.T) {
	c := make(headerCarrier, 0)
	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
