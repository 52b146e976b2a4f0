package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/idudko/go-metric-stream/internal/client"
	"github.com/idudko/go-metric-stream/internal/codec"
	"github.com/idudko/go-metric-stream/internal/logger"
	"github.com/idudko/go-metric-stream/internal/model"
	"github.com/idudko/go-metric-stream/internal/netutil"
	"github.com/idudko/go-metric-stream/internal/rpc"
)

type fetcher interface {
	Fetch(ctx context.Context, fn func(codec.Entry) error) (int, error)
}

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

	realIP, err := netutil.GetLocalIP()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to detect local IP, X-Real-IP will not be sent")
	}
	httpClient := client.NewHTTPClient(cfg.Address, cfg.Key, realIP)

	var src fetcher = httpClient
	if cfg.Transport == transportGRPC {
		grpcClient, err := rpc.Dial(cfg.GRPCAddress)
		if err != nil {
			log.Fatal().Err(err).Str("address", cfg.GRPCAddress).Msg("Failed to create gRPC client")
		}
		defer grpcClient.Close()
		src = grpcClient
	}

	names, err := httpClient.Tokens(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch token names, paths will be printed as tokens")
	}

	if cfg.FetchInterval == 0 {
		if err := fetchOnce(ctx, src, cfg.Transport, names); err != nil {
			stop()
			log.Fatal().Err(err).Msg("Fetch failed")
		}
		return
	}

	ticker := time.NewTicker(cfg.FetchInterval)
	defer ticker.Stop()
	for {
		if err := fetchOnce(ctx, src, cfg.Transport, names); err != nil {
			log.Error().Err(err).Msg("Fetch failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info().Msg("Client stopped")
			return
		}
	}
}

func fetchOnce(ctx context.Context, src fetcher, transport string, names map[model.Token]string) error {
	entries := 0
	batches, err := src.Fetch(ctx, func(e codec.Entry) error {
		entries++
		ev := log.Info().Str("path", client.FormatPath(e.Path, names)).Str("kind", e.Value.Kind().String())
		if e.Value.IsFloat() {
			ev = ev.Float64("value", e.Value.AsFloat())
		} else {
			ev = ev.Int64("value", e.Value.AsInt())
		}
		ev.Msg("metric")
		return nil
	})

	log.Info().
		Str("transport", transport).
		Int("batches", batches).
		Int("entries", entries).
		Msg("Metric stream received")
	return err
}
