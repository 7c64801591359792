package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/application/bus"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/registry"
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type stubPublisher struct {
	err error
}

func (p *stubPublisher) Publish(context.Context, event.Envelope, registry.Route, uint8) error {
	return p.err
}

type stubSubscriptions struct {
	subs map[string]rabbitmq.Subscription
}

func newStubSubscriptions() *stubSubscriptions {
	return &stubSubscriptions{subs: map[string]rabbitmq.Subscription{}}
}

func (s *stubSubscriptions) Create(_ context.Context, in rabbitmq.CreateSubscriptionInput) (rabbitmq.Subscription, error) {
	if len(in.EventTypes) == 0 {
		return rabbitmq.Subscription{}, domain.ErrValidation("event_types must not be empty")
	}
	sub := rabbitmq.Subscription{
		ID:          uuid.NewString(),
		EventTypes:  in.EventTypes,
		CallbackURL: in.CallbackURL,
		ServiceName: in.ServiceName,
		Status:      "active",
		CreatedAt:   time.Now().UTC(),
	}
	sub.QueueName = in.ServiceName + "." + sub.ID
	s.subs[sub.ID] = sub
	return sub, nil
}

func (s *stubSubscriptions) Delete(_ context.Context, id string) error {
	if _, ok := s.subs[id]; !ok {
		return domain.ErrSubscriptionNotFound(id)
	}
	delete(s.subs, id)
	return nil
}

func (s *stubSubscriptions) List() []rabbitmq.Subscription {
	out := make([]rabbitmq.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *stubSubscriptions) Count() int { return len(s.subs) }

func newTestRouter(pub *stubPublisher, subs *stubSubscriptions) (*chi.Mux, *bus.Service) {
	if pub == nil {
		pub = &stubPublisher{}
	}
	if subs == nil {
		subs = newStubSubscriptions()
	}
	svc := bus.New(
		registry.Default(),
		pub,
		subs,
		bus.NewHistory(100),
		stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	)
	h := NewBusHandler(svc)

	r := chi.NewRouter()
	r.Post("/bus/v1/events", h.Publish)
	r.Get("/bus/v1/events", h.QueryHistory)
	r.Get("/bus/v1/stats", h.Stats)
	r.Post("/bus/v1/replay", h.Replay)
	r.Post("/bus/v1/subscriptions", h.CreateSubscription)
	r.Get("/bus/v1/subscriptions", h.ListSubscriptions)
	r.Delete("/bus/v1/subscriptions/{subscription_id}", h.DeleteSubscription)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestPublishEndpoint(t *testing.T) {
	r, _ := newTestRouter(nil, nil)

	rec := doJSON(t, r, http.MethodPost, "/bus/v1/events", map[string]any{
		"event_type":     "order.created",
		"data":           map[string]any{"order_id": "o-1"},
		"source_service": "order-service",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data struct {
			EventID string `json:"event_id"`
			Status  string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.EventID)
	assert.Equal(t, "published", body.Data.Status)
}

func TestPublishEndpointRejectsBadInput(t *testing.T) {
	r, _ := newTestRouter(nil, nil)

	rec := doJSON(t, r, http.MethodPost, "/bus/v1/events", map[string]any{
		"source_service": "order-service",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errCode(t, rec))

	rec = doJSON(t, r, http.MethodPost, "/bus/v1/events", map[string]any{
		"event_type":     "order.invented",
		"source_service": "order-service",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_event_type", errCode(t, rec))

	// unknown top-level fields are rejected
	rec = doJSON(t, r, http.MethodPost, "/bus/v1/events", map[string]any{
		"event_type": "order.created",
		"surprise":   true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishEndpointBrokerDown(t *testing.T) {
	r, _ := newTestRouter(&stubPublisher{err: domain.ErrNotConnected()}, nil)

	rec := doJSON(t, r, http.MethodPost, "/bus/v1/events", map[string]any{
		"event_type":     "order.created",
		"source_service": "order-service",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_connected", errCode(t, rec))
}

func TestSubscriptionEndpoints(t *testing.T) {
	subs := newStubSubscriptions()
	r, _ := newTestRouter(nil, subs)

	rec := doJSON(t, r, http.MethodPost, "/bus/v1/subscriptions", map[string]any{
		"event_types":  []string{"order.created"},
		"callback_url": "http://orders.local/hook",
		"service_name": "order-service",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data rabbitmq.Subscription `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "active", created.Data.Status)
	assert.Equal(t, "order-service."+created.Data.ID, created.Data.QueueName)

	rec = doJSON(t, r, http.MethodGet, "/bus/v1/subscriptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data struct {
			Items []rabbitmq.Subscription `json:"items"`
			Total int                     `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Data.Total)

	rec = doJSON(t, r, http.MethodDelete, "/bus/v1/subscriptions/"+created.Data.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, subs.Count())
}

func TestDeleteSubscriptionErrors(t *testing.T) {
	r, _ := newTestRouter(nil, nil)

	rec := doJSON(t, r, http.MethodDelete, "/bus/v1/subscriptions/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errCode(t, rec))

	rec = doJSON(t, r, http.MethodDelete, "/bus/v1/subscriptions/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "subscription_not_found", errCode(t, rec))
}

func TestHistoryEndpoint(t *testing.T) {
	r, svc := newTestRouter(nil, nil)

	for i := 0; i < 5; i++ {
		_, err := svc.Publish(context.Background(), bus.PublishInput{
			EventType:     "order.created",
			SourceService: "order-service",
		})
		require.NoError(t, err)
	}
	_, err := svc.Publish(context.Background(), bus.PublishInput{
		EventType:     "payment.confirmed",
		SourceService: "payment-service",
	})
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/bus/v1/events?event_type=order.created&limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Items []bus.HistoryEntry `json:"items"`
			Total int                `json:"total"`
			Limit int                `json:"limit"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.Total)
	assert.Equal(t, 3, body.Data.Limit)
	for _, e := range body.Data.Items {
		assert.Equal(t, "order.created", e.EventType)
	}

	rec = doJSON(t, r, http.MethodGet, "/bus/v1/events?from=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errCode(t, rec))
}

func TestStatsEndpoint(t *testing.T) {
	r, svc := newTestRouter(nil, nil)

	_, err := svc.Publish(context.Background(), bus.PublishInput{
		EventType:     "order.created",
		SourceService: "order-service",
	})
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/bus/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data bus.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.TotalEvents)
	assert.Equal(t, 1, body.Data.EventTypes["order.created"])
}

func TestReplayEndpoint(t *testing.T) {
	r, svc := newTestRouter(nil, nil)

	id, err := svc.Publish(context.Background(), bus.PublishInput{
		EventType:     "order.created",
		SourceService: "order-service",
	})
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodPost, "/bus/v1/replay", map[string]any{
		"event_ids": []string{id, "missing"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Results  []bus.ReplayResult `json:"results"`
			Replayed int                `json:"replayed"`
			NotFound int                `json:"not_found"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Replayed)
	assert.Equal(t, 1, body.Data.NotFound)
	require.Len(t, body.Data.Results, 2)

	rec = doJSON(t, r, http.MethodPost, "/bus/v1/replay", map[string]any{"event_ids": []string{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubBroker struct{ connected bool }

func (b stubBroker) Connected() bool { return b.connected }

func TestReadyz(t *testing.T) {
	h := NewHealthHandler(stubBroker{connected: true})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewHealthHandler(stubBroker{connected: false})
	rec = httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
