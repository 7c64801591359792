package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/registry"
)

const consumerPrefetch = 10

// Deliverer pushes an envelope to a subscriber callback.
type Deliverer interface {
	Deliver(ctx context.Context, callbackURL string, env event.Envelope) error
}

// Republisher re-enqueues a failed message verbatim for another attempt.
type Republisher interface {
	Republish(ctx context.Context, body []byte, exchange, routingKey string, headers amqp.Table, priority uint8, messageID string) error
}

// QueueKey identifies a subscription's durable queue. Service name and
// subscription id form a composite key so similarly named services cannot
// collide on queue names.
type QueueKey struct {
	ServiceName    string
	SubscriptionID string
}

func (k QueueKey) QueueName() string {
	return k.ServiceName + "." + k.SubscriptionID
}

type Subscription struct {
	ID             string         `json:"subscription_id"`
	EventTypes     []string       `json:"event_types"`
	CallbackURL    string         `json:"callback_url"`
	ServiceName    string         `json:"service_name"`
	FilterCriteria map[string]any `json:"filter_criteria,omitempty"`
	QueueName      string         `json:"queue_name"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

type CreateSubscriptionInput struct {
	EventTypes     []string
	CallbackURL    string
	ServiceName    string
	FilterCriteria map[string]any
}

type activeSubscription struct {
	record Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// SubscriptionManager owns the full lifecycle of subscriber queues: declare,
// bind, consume, retry, dead-letter, delete. One consumer loop runs per
// subscription, independently of all others and of publishing.
//
// Failed deliveries are re-published to the tail of the original topic after
// an exponential backoff, so a retried event may arrive out of order relative
// to newer events of the same type. This is a documented property of the bus,
// not a bug.
type SubscriptionManager struct {
	mgr         *Manager
	reg         *registry.TopicRegistry
	deliverer   Deliverer
	republisher Republisher
	maxAttempts int
	backoff     func(re event.RetryEnvelope) time.Duration

	mu   sync.Mutex
	subs map[string]*activeSubscription
}

func NewSubscriptionManager(mgr *Manager, reg *registry.TopicRegistry, deliverer Deliverer, republisher Republisher, maxAttempts int) *SubscriptionManager {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &SubscriptionManager{
		mgr:         mgr,
		reg:         reg,
		deliverer:   deliverer,
		republisher: republisher,
		maxAttempts: maxAttempts,
		backoff:     event.RetryEnvelope.Backoff,
		subs:        map[string]*activeSubscription{},
	}
}

// Create declares the durable queue, binds it to every requested topic and
// starts the consumer loop. The queue's overflow target is the dead-letter
// exchange. Any unknown event type or broker failure yields binding_failed
// and no subscription is created.
func (s *SubscriptionManager) Create(ctx context.Context, in CreateSubscriptionInput) (Subscription, error) {
	serviceName := strings.TrimSpace(in.ServiceName)
	if serviceName == "" {
		return Subscription{}, domain.ErrValidation("service_name is required")
	}
	if err := validateCallbackURL(in.CallbackURL); err != nil {
		return Subscription{}, err
	}
	if len(in.EventTypes) == 0 {
		return Subscription{}, domain.ErrValidation("event_types must not be empty")
	}

	routes := make([]registry.Route, 0, len(in.EventTypes))
	for _, t := range in.EventTypes {
		route, err := s.reg.Lookup(t)
		if err != nil {
			return Subscription{}, domain.ErrBindingFailed("unknown event type", map[string]string{"event_type": t})
		}
		routes = append(routes, route)
	}

	key := QueueKey{ServiceName: serviceName, SubscriptionID: uuid.NewString()}
	queueName := key.QueueName()

	err := s.mgr.Topology(func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		}); err != nil {
			return err
		}
		for _, route := range routes {
			if err := ch.QueueBind(queueName, route.RoutingKey, route.Exchange, false, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// registry entry and queue live and die together: roll back the queue
		_ = s.mgr.Topology(func(ch *amqp.Channel) error {
			_, derr := ch.QueueDelete(queueName, false, false, false)
			return derr
		})
		var ae *domain.AppError
		if errors.As(err, &ae) && ae.Code == domain.CodeNotConnected {
			return Subscription{}, err
		}
		return Subscription{}, domain.ErrBindingFailed(err.Error(), nil)
	}

	sub := &activeSubscription{
		record: Subscription{
			ID:             key.SubscriptionID,
			EventTypes:     append([]string(nil), in.EventTypes...),
			CallbackURL:    strings.TrimSpace(in.CallbackURL),
			ServiceName:    serviceName,
			FilterCriteria: in.FilterCriteria,
			QueueName:      queueName,
			Status:         "active",
			CreatedAt:      time.Now().UTC(),
		},
		done: make(chan struct{}),
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub.cancel = cancel

	s.mu.Lock()
	s.subs[sub.record.ID] = sub
	s.mu.Unlock()
	metrics.SubscriptionStarted()

	go s.supervise(loopCtx, sub)

	return sub.record, nil
}

// Delete stops the consumer loop, destroys the durable queue and removes the
// record, in that order. The loop is fully stopped before the queue is torn
// down; a delivery already in flight completes or fails on its own. The record
// stays until the broker-side queue is actually gone, so a delete that fails
// while disconnected can be retried instead of leaking the queue.
func (s *SubscriptionManager) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		sub.record.Status = "deleting"
	}
	s.mu.Unlock()
	if !ok {
		return domain.ErrSubscriptionNotFound(id)
	}

	sub.cancel()
	<-sub.done

	err := s.mgr.Topology(func(ch *amqp.Channel) error {
		_, derr := ch.QueueDelete(sub.record.QueueName, false, false, false)
		return derr
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.subs[id]; ok {
		delete(s.subs, id)
		metrics.SubscriptionStopped()
	}
	s.mu.Unlock()
	return nil
}

// List returns a point-in-time snapshot, oldest first.
func (s *SubscriptionManager) List() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub.record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *SubscriptionManager) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Shutdown stops every consumer loop without destroying queues; durable
// queues keep buffering for the subscriber until the service comes back.
func (s *SubscriptionManager) Shutdown() {
	s.mu.Lock()
	subs := make([]*activeSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = map[string]*activeSubscription{}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
		metrics.SubscriptionStopped()
	}
}

// supervise keeps the consumer alive across broker reconnects. When the
// consume channel dies it waits out the manager's reconnect delay and starts
// over, until the subscription is deleted.
func (s *SubscriptionManager) supervise(ctx context.Context, sub *activeSubscription) {
	defer close(sub.done)
	log := logger.Logger.With().
		Str("component", "subscription_consumer").
		Str("subscription_id", sub.record.ID).
		Str("queue", sub.record.QueueName).
		Logger()

	log.Info().Strs("event_types", sub.record.EventTypes).Msg("consumer started")

	for {
		if err := s.consumeOnce(ctx, sub); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("consumer interrupted, restarting")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("consumer stopped")
			return
		case <-time.After(s.mgr.reconnectDelay):
		}
	}
}

func (s *SubscriptionManager) consumeOnce(ctx context.Context, sub *activeSubscription) error {
	ch, err := s.mgr.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(sub.record.QueueName, "event-bus."+sub.record.ID, false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			s.handle(ctx, sub, d)
		}
	}
}

func (s *SubscriptionManager) handle(ctx context.Context, sub *activeSubscription, d amqp.Delivery) {
	log := logger.Logger.With().
		Str("component", "subscription_consumer").
		Str("subscription_id", sub.record.ID).
		Str("routing_key", d.RoutingKey).
		Logger()

	var env event.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		// poison: reject without redelivery so the broker's dead-letter
		// routing captures the body verbatim
		log.Warn().Err(err).Str("message_id", d.MessageId).Msg("invalid envelope json, dead-lettering")
		_ = d.Nack(false, false)
		metrics.RecordDelivery(metrics.ResultDeadLettered)
		return
	}

	if !env.MatchesFilter(sub.record.FilterCriteria) {
		_ = d.Ack(false)
		metrics.RecordDelivery(metrics.ResultFiltered)
		return
	}

	// The in-flight unit is deliberately detached from the loop context so a
	// concurrent delete does not cancel it mid-delivery.
	err := s.deliverer.Deliver(context.Background(), sub.record.CallbackURL, env)
	if err == nil {
		_ = d.Ack(false)
		metrics.RecordDelivery(metrics.ResultDelivered)
		return
	}

	re := event.RetryEnvelope{Envelope: env, Attempts: retryCount(d.Headers) + 1}
	log.Warn().Err(err).
		Str("event_id", env.EventID).
		Int("attempts", re.Attempts).
		Msg("callback delivery failed")

	if re.Exhausted(s.maxAttempts) {
		log.Error().Str("event_id", env.EventID).Msg("delivery budget exhausted, dead-lettering")
		_ = d.Nack(false, false)
		metrics.RecordDelivery(metrics.ResultDeadLettered)
		return
	}

	select {
	case <-ctx.Done():
		// shutting down mid-backoff, hand the message back to the broker
		_ = d.Nack(false, true)
		return
	case <-time.After(s.backoff(re)):
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[event.HeaderRetryCount] = int32(re.Attempts)

	if err := s.republisher.Republish(context.Background(), d.Body, d.Exchange, d.RoutingKey, headers, d.Priority, d.MessageId); err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("failed to re-publish for retry, dead-lettering")
		_ = d.Nack(false, false)
		metrics.RecordDelivery(metrics.ResultDeadLettered)
		return
	}
	_ = d.Ack(false)
	metrics.RecordDelivery(metrics.ResultRetried)
}

func retryCount(h amqp.Table) int {
	switch v := h[event.HeaderRetryCount].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func validateCallbackURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ErrValidationMeta("invalid callback_url", map[string]string{
			"callback_url": "must be an absolute http(s) URL",
		})
	}
	return nil
}
