package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/application/bus"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/registry"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/handlers"
	authmw "github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/transport/http/router"
)

// sysClock implements bus.Clock using system time
type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now().UTC() }

// App holds all dependencies for the service
type App struct {
	Config *config.Config
	Server *http.Server

	Broker        *rabbitmq.Manager
	Subscriptions *rabbitmq.SubscriptionManager
}

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := NewApp(ctx, cfg)

	go func() {
		zlog.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("server crashed")
		}
	}()

	<-ctx.Done()
	zlog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("http shutdown failed")
	}

	app.Subscriptions.Shutdown()
	_ = app.Broker.Close()
}

func NewApp(ctx context.Context, cfg *config.Config) *App {
	// 1) Infrastructure
	reg := registry.Default()

	mgr := rabbitmq.NewManager(cfg.RabbitURL, reg, cfg.DeadLetterTTL, cfg.ReconnectDelay)
	if err := mgr.Start(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("rabbit connect failed")
	}
	zlog.Info().Msg("rabbit connected")

	pub := rabbitmq.NewPublisher(mgr)
	callbacks := rabbitmq.NewCallbackClient(cfg.CallbackTimeout)
	subs := rabbitmq.NewSubscriptionManager(mgr, reg, callbacks, pub, cfg.MaxDeliveryAttempts)

	// 2) Application
	history := bus.NewHistory(cfg.HistoryCapacity)
	svc := bus.New(reg, pub, subs, history, sysClock{})

	// 3) Transport
	h := handlers.NewBusHandler(svc)
	z := handlers.NewHealthHandler(mgr)

	var auth *authmw.AuthMiddleware
	if cfg.JWTSecret != "" {
		auth = authmw.NewAuth(cfg.JWTSecret, cfg.JWTIssuer)
	} else {
		zlog.Warn().Msg("JWT_SECRET empty: control surface is unauthenticated")
	}

	// 4) Router
	httpHandler := router.New(h, z, auth, cfg)

	// 5) Server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpHandler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &App{
		Config:        cfg,
		Server:        srv,
		Broker:        mgr,
		Subscriptions: subs,
	}
}
