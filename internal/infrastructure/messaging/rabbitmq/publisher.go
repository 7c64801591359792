package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/registry"
)

// Publisher sends envelopes to the topic exchanges with publisher confirms.
// It performs no implicit retry: a refused publish surfaces as publish_failed
// and the caller decides what to do.
type Publisher struct {
	mgr *Manager

	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(mgr *Manager) *Publisher {
	return &Publisher{mgr: mgr}
}

// Publish marshals the envelope and hands it to the broker, persistent when
// the route is durable. Returns once the broker confirms or ctx ends.
func (p *Publisher) Publish(ctx context.Context, env event.Envelope, route registry.Route, priority uint8) error {
	body, err := json.Marshal(env)
	if err != nil {
		return domain.ErrPublishFailed("failed to marshal envelope: " + err.Error())
	}
	headers := amqp.Table{
		"x-correlation-id": env.CorrelationID,
	}
	return p.publish(ctx, body, route.Exchange, route.RoutingKey, headers, route.Durable, priority, env.EventID)
}

// Republish re-enqueues a raw message body verbatim onto its original
// exchange and routing key, keeping the original priority. Used by the
// subscription manager's retry path; the retry counter travels in headers.
func (p *Publisher) Republish(ctx context.Context, body []byte, exchange, routingKey string, headers amqp.Table, priority uint8, messageID string) error {
	return p.publish(ctx, body, exchange, routingKey, headers, true, priority, messageID)
}

func (p *Publisher) publish(ctx context.Context, body []byte, exchange, routingKey string, headers amqp.Table, persistent bool, priority uint8, messageID string) error {
	if !p.mgr.Connected() {
		return domain.ErrNotConnected()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: mode,
		Priority:     priority,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, publishing)
	if err != nil {
		p.ch = nil // channel may be broken, reopen on next publish
		return domain.ErrPublishFailed(err.Error())
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return domain.ErrPublishFailed(err.Error())
	}
	if !acked {
		return domain.ErrPublishFailed("broker did not confirm the publish")
	}
	return nil
}

// channel returns the confirm-mode publishing channel, opening one when
// missing or closed. Caller holds p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.mgr.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, domain.ErrPublishFailed("channel could not be put into confirm mode")
	}
	p.ch = ch
	return ch, nil
}
