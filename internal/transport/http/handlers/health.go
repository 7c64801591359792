package handlers

import (
	"net/http"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/response"
)

type BrokerStatus interface{ Connected() bool }

type HealthHandler struct {
	broker BrokerStatus
}

func NewHealthHandler(broker BrokerStatus) *HealthHandler {
	return &HealthHandler{broker: broker}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.Data(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports broker connectivity; load balancers use it to take the bus
// out of rotation while disconnected.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.broker != nil && !h.broker.Connected() {
		response.Fail(w, http.StatusServiceUnavailable, "not_connected", "broker connection is not available", nil, response.RequestIDFromRequest(r))
		return
	}
	response.Data(w, http.StatusOK, map[string]string{"status": "ready"})
}
