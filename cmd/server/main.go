package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/idudko/go-metric-stream/internal/audit"
	"github.com/idudko/go-metric-stream/internal/collector"
	"github.com/idudko/go-metric-stream/internal/handler"
	"github.com/idudko/go-metric-stream/internal/logger"
	"github.com/idudko/go-metric-stream/internal/middleware"
	"github.com/idudko/go-metric-stream/internal/model"
	"github.com/idudko/go-metric-stream/internal/rpc"
	"github.com/idudko/go-metric-stream/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := LoadConfig(os.Args[0], os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := logger.Init(cfg.LogLevel, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	dict := model.NewDictionary()
	coll := collector.New(dict, 0)
	coll.Collect()
	if err := coll.CollectSystem(); err != nil {
		log.Warn().Err(err).Msg("Failed to collect initial system metrics")
	}
	go coll.Run(ctx, cfg.PollInterval)

	subject := audit.NewSubject()
	if cfg.AuditFile != "" {
		subject.Attach(audit.NewFileObserver(cfg.AuditFile))
	}
	if cfg.AuditURL != "" {
		subject.Attach(audit.NewHTTPObserver(cfg.AuditURL))
	}

	svc := service.NewMetricService(coll)

	if cfg.GRPCAddress != "" {
		grpcServer := rpc.NewServer(svc, subject)
		if err := grpcServer.Start(ctx, cfg.GRPCAddress); err != nil {
			log.Fatal().Err(err).Str("address", cfg.GRPCAddress).Msg("Failed to start gRPC server")
		}
	}

	h := handler.NewHandler(svc, dict, cfg.Key, subject)

	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Get("/ping", h.PingHandler)
	r.Group(func(r chi.Router) {
		r.Use(middleware.TrustedSubnetMiddleware(cfg.TrustedSubnet))
		r.Get("/metrics", h.StreamMetricsHandler)
		r.Get("/tokens", h.TokensHandler)
	})

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down HTTP server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}()

	log.Info().
		Str("address", cfg.Address).
		Str("grpc_address", cfg.GRPCAddress).
		Dur("poll_interval", cfg.PollInterval).
		Int("buffer_size", svc.BufferSize()).
		Msg("Server is running")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
	log.Info().Msg("Server stopped")
}
