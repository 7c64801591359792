package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/registry"
)

const (
	// DeadLetterExchange receives poison messages and messages that exhausted
	// their delivery budget.
	DeadLetterExchange = "dlx"

	// DeadLetterQueue retains dead letters for manual inspection; messages age
	// out after the configured TTL instead of accumulating forever.
	DeadLetterQueue = "event-bus.dead-letters"
)

var errManagerClosed = errors.New("broker manager is closed")

// Manager owns the single connection to RabbitMQ. It declares the full
// topology (topic exchanges, dead-letter exchange and queue) idempotently on
// every connect, and redials on a fixed delay after a connection loss. While
// disconnected, Channel and Topology fail fast with not_connected; nothing is
// queued on behalf of callers.
type Manager struct {
	url            string
	reg            *registry.TopicRegistry
	deadLetterTTL  time.Duration
	reconnectDelay time.Duration

	mu        sync.Mutex
	conn      *amqp.Connection
	topo      *amqp.Channel
	connected bool
	closed    bool
}

func NewManager(url string, reg *registry.TopicRegistry, deadLetterTTL, reconnectDelay time.Duration) *Manager {
	if deadLetterTTL <= 0 {
		deadLetterTTL = 7 * 24 * time.Hour
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Manager{
		url:            url,
		reg:            reg,
		deadLetterTTL:  deadLetterTTL,
		reconnectDelay: reconnectDelay,
	}
}

// Start connects synchronously once, then keeps the connection alive in the
// background until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	notifyClose, err := m.connect()
	if err != nil {
		return err
	}

	go func() {
		log := logger.Logger.With().Str("component", "rabbitmq_manager").Logger()
		for {
			select {
			case amqpErr := <-notifyClose:
				m.markDisconnected()
				if amqpErr != nil {
					log.Warn().Str("reason", amqpErr.Error()).Msg("broker connection lost, reconnecting")
				}
			case <-ctx.Done():
				_ = m.Close()
				return
			}

			for {
				select {
				case <-ctx.Done():
					_ = m.Close()
					return
				case <-time.After(m.reconnectDelay):
				}

				var err error
				notifyClose, err = m.connect()
				if err == nil {
					log.Info().Msg("broker connection re-established")
					break
				}
				if errors.Is(err, errManagerClosed) {
					return
				}
				log.Warn().Err(err).Msg("broker reconnect failed")
			}
		}
	}()

	return nil
}

func (m *Manager) connect() (chan *amqp.Error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errManagerClosed
	}

	conn, err := amqp.Dial(m.url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := m.declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	m.conn = conn
	m.topo = ch
	m.connected = true
	metrics.SetBrokerConnected(true)

	return notifyClose, nil
}

func (m *Manager) declareTopology(ch *amqp.Channel) error {
	for _, exchange := range m.reg.Exchanges() {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}

	if err := ch.ExchangeDeclare(DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, amqp.Table{
		"x-message-ttl": m.deadLetterTTL.Milliseconds(),
	}); err != nil {
		return err
	}
	return ch.QueueBind(DeadLetterQueue, "", DeadLetterExchange, false, nil)
}

func (m *Manager) markDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	metrics.SetBrokerConnected(false)
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Channel opens a new channel on the shared connection.
func (m *Manager) Channel() (*amqp.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected || m.conn == nil {
		return nil, domain.ErrNotConnected()
	}
	return m.conn.Channel()
}

// Topology runs fn on the dedicated topology channel. Queue declare/bind/
// delete calls go through here so they are serialized relative to each other;
// publish and consume traffic uses separate channels.
func (m *Manager) Topology(fn func(ch *amqp.Channel) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected || m.conn == nil {
		return domain.ErrNotConnected()
	}
	if m.topo == nil || m.topo.IsClosed() {
		ch, err := m.conn.Channel()
		if err != nil {
			return err
		}
		m.topo = ch
	}
	return fn(m.topo)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	metrics.SetBrokerConnected(false)
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
