package bus

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/registry"
)

// ReplaySource is stamped on re-published events so consumers can tell a
// replay from the original publish.
const ReplaySource = "event-bus-replay"

type Clock interface{ Now() time.Time }

// Publisher is the outbound port to the broker.
type Publisher interface {
	Publish(ctx context.Context, env event.Envelope, route registry.Route, priority uint8) error
}

// Subscriptions is the port to the subscription manager.
type Subscriptions interface {
	Create(ctx context.Context, in rabbitmq.CreateSubscriptionInput) (rabbitmq.Subscription, error)
	Delete(ctx context.Context, id string) error
	List() []rabbitmq.Subscription
	Count() int
}

type PublishInput struct {
	EventType     string
	Data          map[string]any
	SourceService string
	CorrelationID string
	UserID        string
	Priority      uint8
}

type ReplayResult struct {
	EventID    string `json:"event_id"`
	Status     string `json:"status"` // replayed | failed | not_found
	NewEventID string `json:"new_event_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Service ties the registry, publisher, subscription manager and history
// together behind the control surface.
type Service struct {
	reg     *registry.TopicRegistry
	pub     Publisher
	subs    Subscriptions
	history *History
	clock   Clock
}

func New(reg *registry.TopicRegistry, pub Publisher, subs Subscriptions, history *History, clock Clock) *Service {
	return &Service{reg: reg, pub: pub, subs: subs, history: history, clock: clock}
}

// Publish assigns identity and correlation metadata, routes the envelope to
// the broker and records it in history. event_id and timestamp are set here,
// exactly once; producers never supply them.
func (s *Service) Publish(ctx context.Context, in PublishInput) (string, error) {
	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		return "", domain.ErrValidation("event_type is required")
	}
	source := strings.TrimSpace(in.SourceService)
	if source == "" {
		return "", domain.ErrValidation("source_service is required")
	}

	route, err := s.reg.Lookup(eventType)
	if err != nil {
		return "", err
	}

	correlationID := strings.TrimSpace(in.CorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	env := event.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Data:          in.Data,
		SourceService: source,
		CorrelationID: correlationID,
		UserID:        in.UserID,
		Timestamp:     s.clock.Now().UTC(),
		Version:       event.Version,
	}

	if err := s.pub.Publish(ctx, env, route, in.Priority); err != nil {
		return "", err
	}

	s.history.Append(env, s.clock.Now().UTC())
	metrics.RecordPublished(eventType)

	logger.Logger.Debug().
		Str("component", "bus").
		Str("event_id", env.EventID).
		Str("event_type", eventType).
		Str("source_service", source).
		Msg("event published")

	return env.EventID, nil
}

func (s *Service) CreateSubscription(ctx context.Context, in rabbitmq.CreateSubscriptionInput) (rabbitmq.Subscription, error) {
	return s.subs.Create(ctx, in)
}

func (s *Service) DeleteSubscription(ctx context.Context, id string) error {
	return s.subs.Delete(ctx, id)
}

func (s *Service) ListSubscriptions() []rabbitmq.Subscription {
	return s.subs.List()
}

func (s *Service) QueryHistory(q HistoryQuery) []HistoryEntry {
	return s.history.Query(q)
}

func (s *Service) Stats(days int) Stats {
	if days < 1 {
		days = 7
	}
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -days)
	st := s.history.StatsSince(cutoff)
	st.ActiveSubscriptions = s.subs.Count()
	return st
}

// Replay re-publishes retained events as new ones: fresh event_id, original
// data and correlation_id, source stamped event-bus-replay. Originals are
// never touched. targetService is recorded for auditing; routing is
// unchanged, subscribers filter as usual.
func (s *Service) Replay(ctx context.Context, eventIDs []string, targetService string) []ReplayResult {
	log := logger.Logger.With().
		Str("component", "bus").
		Str("target_service", targetService).
		Logger()

	results := make([]ReplayResult, 0, len(eventIDs))
	for _, id := range eventIDs {
		entry, ok := s.history.Find(id)
		if !ok {
			results = append(results, ReplayResult{EventID: id, Status: "not_found"})
			continue
		}

		newID, err := s.Publish(ctx, PublishInput{
			EventType:     entry.EventType,
			Data:          entry.Data,
			SourceService: ReplaySource,
			CorrelationID: entry.CorrelationID,
			UserID:        entry.UserID,
		})
		if err != nil {
			log.Warn().Err(err).Str("event_id", id).Msg("replay failed")
			results = append(results, ReplayResult{EventID: id, Status: "failed", Error: err.Error()})
			continue
		}
		results = append(results, ReplayResult{EventID: id, Status: "replayed", NewEventID: newID})
	}

	log.Info().Int("requested", len(eventIDs)).Msg("replay finished")
	return results
}
