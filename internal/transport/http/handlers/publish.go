package handlers

import (
	"net/http"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/application/bus"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/dto"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/response"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/validate"
)

type BusHandler struct {
	svc *bus.Service
}

func NewBusHandler(svc *bus.Service) *BusHandler {
	return &BusHandler{svc: svc}
}

func (h *BusHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req dto.PublishReq
	if err := validate.DecodeJSON(r, &req); err != nil {
		response.Err(w, r, domain.ErrValidation("invalid request body"))
		return
	}

	eventID, err := h.svc.Publish(r.Context(), bus.PublishInput{
		EventType:     req.EventType,
		Data:          req.Data,
		SourceService: req.SourceService,
		CorrelationID: req.CorrelationID,
		UserID:        req.UserID,
		Priority:      req.Priority,
	})
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.Data(w, http.StatusCreated, dto.PublishResp{
		EventID: eventID,
		Status:  "published",
	})
}
