package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/application/bus"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/dto"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/response"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/validate"
)

func (h *BusHandler) QueryHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	var fromPtr, toPtr *time.Time
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Err(w, r, domain.ErrValidationMeta("invalid query param", map[string]string{
				"from": "must be RFC3339 timestamp",
			}))
			return
		}
		tt := t.UTC()
		fromPtr = &tt
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Err(w, r, domain.ErrValidationMeta("invalid query param", map[string]string{
				"to": "must be RFC3339 timestamp",
			}))
			return
		}
		tt := t.UTC()
		toPtr = &tt
	}

	items := h.svc.QueryHistory(bus.HistoryQuery{
		EventType:     q.Get("event_type"),
		SourceService: q.Get("source_service"),
		From:          fromPtr,
		To:            toPtr,
		Limit:         limit,
		Offset:        offset,
	})

	response.Data(w, http.StatusOK, dto.HistoryResp{
		Items:  items,
		Total:  len(items),
		Limit:  limit,
		Offset: offset,
	})
}

func (h *BusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 7
	}
	response.Data(w, http.StatusOK, h.svc.Stats(days))
}

func (h *BusHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var req dto.ReplayReq
	if err := validate.DecodeJSON(r, &req); err != nil {
		response.Err(w, r, domain.ErrValidation("invalid request body"))
		return
	}
	if len(req.EventIDs) == 0 {
		response.Err(w, r, domain.ErrValidation("event_ids must not be empty"))
		return
	}

	results := h.svc.Replay(r.Context(), req.EventIDs, req.TargetService)
	response.Data(w, http.StatusOK, dto.ToReplayResp(results))
}
