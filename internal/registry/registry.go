package registry

import (
	"sort"
	"strings"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
)

// Route is the broker destination for one event type.
type Route struct {
	Exchange   string
	RoutingKey string
	Durable    bool
}

// TopicRegistry is the immutable table from event type to broker route. It is
// built once at startup and injected into every component that needs it;
// publishing or subscribing to a type absent from the table is a
// configuration error, never retried.
type TopicRegistry struct {
	routes map[string]Route
}

func New(routes map[string]Route) *TopicRegistry {
	cp := make(map[string]Route, len(routes))
	for k, v := range routes {
		cp[k] = v
	}
	return &TopicRegistry{routes: cp}
}

// Default returns the registry for the service collection: one topic exchange
// per business domain, routing keys of the form <domain>.<action>.
func Default() *TopicRegistry {
	types := []string{
		"order.created", "order.updated", "order.cancelled", "order.completed",
		"payment.initiated", "payment.confirmed", "payment.failed", "payment.refunded",
		"inventory.low", "inventory.updated", "inventory.restocked",
		"user.registered", "user.updated", "user.deleted",
		"shipment.created", "shipment.dispatched", "shipment.delivered",
		"system.error", "system.maintenance",
		"notification.requested", "notification.sent",
		"report.requested", "report.generated",
	}
	exchanges := map[string]string{
		"order":        "orders",
		"payment":      "payments",
		"inventory":    "inventory",
		"user":         "users",
		"shipment":     "shipments",
		"system":       "system",
		"notification": "notifications",
		"report":       "reports",
	}
	routes := make(map[string]Route, len(types))
	for _, t := range types {
		prefix, _, _ := strings.Cut(t, ".")
		routes[t] = Route{
			Exchange:   exchanges[prefix],
			RoutingKey: t,
			Durable:    true,
		}
	}
	return New(routes)
}

// Lookup resolves an event type to its route.
func (r *TopicRegistry) Lookup(eventType string) (Route, error) {
	route, ok := r.routes[eventType]
	if !ok {
		return Route{}, domain.ErrUnknownEventType(eventType)
	}
	return route, nil
}

func (r *TopicRegistry) Has(eventType string) bool {
	_, ok := r.routes[eventType]
	return ok
}

// Exchanges returns the distinct exchanges in the table, sorted, for topology
// declaration.
func (r *TopicRegistry) Exchanges() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 8)
	for _, route := range r.routes {
		if _, ok := seen[route.Exchange]; ok {
			continue
		}
		seen[route.Exchange] = struct{}{}
		out = append(out, route.Exchange)
	}
	sort.Strings(out)
	return out
}
