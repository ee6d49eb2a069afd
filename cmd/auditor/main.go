package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"tw-action-bot/internal/infra/config"
	applog "tw-action-bot/internal/infra/log"
	"tw-action-bot/internal/infra/wiring"
)

// auditor читает события взаимодействия из очереди и пишет их в лог.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, closeQueue, err := wiring.OpenEventQueue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("auditor: очередь недоступна")
	}
	if events == nil {
		logger.Fatal().Msg("auditor: бэкенд очереди не задан (EVENT_QUEUE_BACKEND)")
	}
	defer closeQueue()

	for {
		event, err := events.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("auditor: остановлен")
				return
			}
			logger.Error().Err(err).Msg("auditor: чтение события не удалось")
			continue
		}
		logger.Info().
			Str("id", event.ID).
			Str("account", event.Account).
			Str("tweet", event.TweetID).
			Str("author", event.Author).
			Strs("actions", event.Actions).
			Str("outcome", event.Outcome).
			Time("occurred_at", event.OccurredAt).
			Msg("взаимодействие")
	}
}
