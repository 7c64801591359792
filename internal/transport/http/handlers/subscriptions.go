package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/dto"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/response"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/validate"
)

func (h *BusHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSubscriptionReq
	if err := validate.DecodeJSON(r, &req); err != nil {
		response.Err(w, r, domain.ErrValidation("invalid request body"))
		return
	}

	sub, err := h.svc.CreateSubscription(r.Context(), rabbitmq.CreateSubscriptionInput{
		EventTypes:     req.EventTypes,
		CallbackURL:    req.CallbackURL,
		ServiceName:    req.ServiceName,
		FilterCriteria: req.FilterCriteria,
	})
	if err != nil {
		response.Err(w, r, err)
		return
	}

	response.Data(w, http.StatusCreated, sub)
}

func (h *BusHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	items := h.svc.ListSubscriptions()
	response.Data(w, http.StatusOK, dto.SubscriptionListResp{
		Items: items,
		Total: len(items),
	})
}

func (h *BusHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscription_id")
	if !validate.IsUUID(id) {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"subscription_id": "must be uuid",
		}))
		return
	}

	if err := h.svc.DeleteSubscription(r.Context(), id); err != nil {
		response.Err(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]string{
		"subscription_id": id,
		"status":          "deleted",
	})
}
