package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery results recorded by the subscription manager.
const (
	ResultDelivered    = "delivered"
	ResultFiltered     = "filtered"
	ResultRetried      = "retried"
	ResultDeadLettered = "dead_lettered"
)

var (
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "event_bus",
			Name:      "events_published_total",
			Help:      "Total number of events published to the broker",
		},
		[]string{"event_type"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "event_bus",
			Name:      "deliveries_total",
			Help:      "Callback delivery outcomes per subscription message",
		},
		[]string{"result"},
	)

	activeSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "event_bus",
			Name:      "active_subscriptions",
			Help:      "Number of subscriptions currently consuming",
		},
	)

	brokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "event_bus",
			Name:      "broker_connected",
			Help:      "Broker connection status (1 = connected, 0 = disconnected)",
		},
	)
)

func RecordPublished(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func RecordDelivery(result string) {
	deliveriesTotal.WithLabelValues(result).Inc()
}

func SubscriptionStarted() { activeSubscriptions.Inc() }
func SubscriptionStopped() { activeSubscriptions.Dec() }

func SetBrokerConnected(connected bool) {
	if connected {
		brokerConnected.Set(1)
		return
	}
	brokerConnected.Set(0)
}

// MetricsHandler returns the Prometheus metrics handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
