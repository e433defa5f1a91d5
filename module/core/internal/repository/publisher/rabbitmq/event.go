package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/akinolu52/e-tap/module/core/domain"
	"github.com/akinolu52/e-tap/module/core/internal/repository/publisher"
)

var _ publisher.EventPublisher = (*EventPublisher)(nil)

const (
	ExchangeName = "tracking.events"
	QueueName    = "session_events"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type EventPublisher struct {
	ch channel
}

func NewEventPublisher(conn *amqp.Connection) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &EventPublisher{ch: ch}, nil
}

type eventMessage struct {
	SessionID  string           `json:"session_id"`
	Kind       domain.EventKind `json:"kind"`
	FenceID    string           `json:"fence_id,omitempty"`
	Accuracy   float64          `json:"accuracy,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt int64            `json:"occurred_at"`
}

func toEventMessage(event *domain.Event) eventMessage {
	return eventMessage{
		SessionID:  event.SessionID,
		Kind:       event.Kind,
		FenceID:    event.FenceID,
		Accuracy:   event.AccuracyMeters,
		Reason:     event.Reason,
		OccurredAt: event.OccurredAt.UnixMilli(),
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event *domain.Event) error {
	body, err := json.Marshal(toEventMessage(event))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, ExchangeName, string(event.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(event.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}
	return nil
}
