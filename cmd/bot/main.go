package main

import (
	"context"
	"errors"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"tw-action-bot/internal/adapters/notify"
	"tw-action-bot/internal/adapters/twitterapi"
	"tw-action-bot/internal/domain"
	"tw-action-bot/internal/infra/config"
	applog "tw-action-bot/internal/infra/log"
	"tw-action-bot/internal/infra/metrics"
	"tw-action-bot/internal/infra/ratelimit"
	"tw-action-bot/internal/infra/wiring"
	"tw-action-bot/internal/usecase/account"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	cache, closeCache, err := wiring.OpenCache(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: хранилище недоступно")
	}
	defer closeCache()

	templates, err := config.LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось загрузить шаблоны комментариев")
	}

	events, closeEvents, err := wiring.OpenEventQueue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: очередь событий недоступна")
	}
	defer closeEvents()

	var notifier domain.Notifier = notify.Noop{}
	if cfg.Operator.BotToken != "" && cfg.Operator.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Operator.BotToken, cfg.Operator.ChatID,
			logger.With().Str("component", "notify").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: не удалось создать бота оператора")
		}
		notifier = tg
	}

	client := twitterapi.NewClient(twitterapi.Config{
		BaseURL:     cfg.Twitter.BaseURL,
		BearerToken: cfg.Twitter.BearerToken,
		SearchCount: cfg.Twitter.SearchCount,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	for i, screenName := range cfg.Accounts {
		accountLog := logger.With().Str("account", screenName).Logger()

		limited, err := ratelimit.NewLimitedAPI(client, ratelimit.Quotas{
			Search:   cfg.Quotas.Search,
			Retweet:  cfg.Quotas.Retweet,
			Favorite: cfg.Quotas.Favorite,
			Follow:   cfg.Quotas.Follow,
			Comment:  cfg.Quotas.Comment,
		}, ratelimit.SystemClock{}, accountLog)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: некорректные квоты")
		}

		svc := account.NewService(accountLog, screenName, limited, cache, account.Options{
			Events:      events,
			Notifier:    notifier,
			Templates:   templates,
			SearchTerms: cfg.Search.Terms,
			FilterTerms: cfg.Search.Filters,
			Rand:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
		})
		group.Go(func() error {
			return svc.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("bot: аккаунт завершился с ошибкой")
	}
	logger.Info().Msg("bot: остановлен")
}
