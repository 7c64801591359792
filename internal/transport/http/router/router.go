package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/handlers"
	busmw "github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/middleware"
)

func New(
	h *handlers.BusHandler,
	z *handlers.HealthHandler,
	auth *busmw.AuthMiddleware,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	r.Use(busmw.RequestID)
	r.Use(busmw.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(busmw.Metrics)
	r.Use(busmw.AccessLog)

	if cfg.RLEnabled {
		r.Use(httprate.LimitByIP(cfg.RLLimit, cfg.RLWindow))
	}

	r.Get("/healthz", z.Healthz)
	r.Get("/readyz", z.Readyz)
	r.Handle("/metrics", metrics.MetricsHandler())

	r.Route("/bus/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Require)
		}

		r.Post("/events", h.Publish)
		r.Get("/events", h.QueryHistory)
		r.Get("/stats", h.Stats)
		r.Post("/replay", h.Replay)

		r.Post("/subscriptions", h.CreateSubscription)
		r.Get("/subscriptions", h.ListSubscriptions)
		r.Delete("/subscriptions/{subscription_id}", h.DeleteSubscription)
	})

	return r
}
