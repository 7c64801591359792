package dto

import (
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/application/bus"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/infrastructure/messaging/rabbitmq"
)

type PublishReq struct {
	EventType     string         `json:"event_type"`
	Data          map[string]any `json:"data"`
	SourceService string         `json:"source_service"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Priority      uint8          `json:"priority,omitempty"`
}

type PublishResp struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

type CreateSubscriptionReq struct {
	EventTypes     []string       `json:"event_types"`
	CallbackURL    string         `json:"callback_url"`
	ServiceName    string         `json:"service_name"`
	FilterCriteria map[string]any `json:"filter_criteria,omitempty"`
}

type SubscriptionListResp struct {
	Items []rabbitmq.Subscription `json:"items"`
	Total int                     `json:"total"`
}

type HistoryResp struct {
	Items  []bus.HistoryEntry `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type ReplayReq struct {
	EventIDs      []string `json:"event_ids"`
	TargetService string   `json:"target_service,omitempty"`
}

type ReplayResp struct {
	Results  []bus.ReplayResult `json:"results"`
	Replayed int                `json:"replayed"`
	Failed   int                `json:"failed"`
	NotFound int                `json:"not_found"`
}

func ToReplayResp(results []bus.ReplayResult) ReplayResp {
	resp := ReplayResp{Results: results}
	for _, r := range results {
		switch r.Status {
		case "replayed":
			resp.Replayed++
		case "failed":
			resp.Failed++
		case "not_found":
			resp.NotFound++
		}
	}
	return resp
}
