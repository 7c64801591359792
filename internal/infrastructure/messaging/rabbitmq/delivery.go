package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/contracts/event"
)

// Outbound headers identifying the event on callback deliveries.
const (
	HeaderEventID       = "X-Event-ID"
	HeaderEventType     = "X-Event-Type"
	HeaderSourceService = "X-Source-Service"
	HeaderCorrelationID = "X-Correlation-ID"
)

// CallbackClient pushes envelopes to subscriber callback URLs. A subscriber
// acknowledges by returning any 2xx status within the timeout.
type CallbackClient struct {
	client  *http.Client
	timeout time.Duration
}

func NewCallbackClient(timeout time.Duration) *CallbackClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CallbackClient{
		// Timeout enforced per request via context.
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (c *CallbackClient) Deliver(ctx context.Context, callbackURL string, env event.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, env.EventID)
	req.Header.Set(HeaderEventType, env.EventType)
	req.Header.Set(HeaderSourceService, env.SourceService)
	req.Header.Set(HeaderCorrelationID, env.CorrelationID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
