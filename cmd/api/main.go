package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tw-action-bot/internal/infra/config"
	httpserver "tw-action-bot/internal/infra/http"
	applog "tw-action-bot/internal/infra/log"
	"tw-action-bot/internal/infra/metrics"
	"tw-action-bot/internal/infra/wiring"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, closeCache, err := wiring.OpenCache(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: хранилище недоступно")
	}
	defer closeCache()

	server := httpserver.NewServer(logger.With().Str("component", "http").Logger(), cache, cfg.Accounts)
	if err := server.Start(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("api: сервер завершился с ошибкой")
	}
	logger.Info().Msg("api: остановлен")
}
