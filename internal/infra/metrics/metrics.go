package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_actions_total",
		Help: "Количество выполненных действий по видам",
	}, []string{"account", "action", "status"})

	TweetsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_tweets_processed_total",
		Help: "Обработанные твиты по итогу",
	}, []string{"account", "outcome"})

	TweetsStagedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_tweets_staged_total",
		Help: "Твиты, добавленные в очередь кандидатов",
	}, []string{"account"})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_search_requests_total",
		Help: "Поисковые запросы к API",
	}, []string{"account", "status"})

	LimiterWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_limiter_wait_seconds",
		Help:    "Паузы лимитера перед вызовом конечной точки",
		Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"limiter"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ActionsTotal,
		TweetsProcessedTotal,
		TweetsStagedTotal,
		SearchRequestsTotal,
		LimiterWaitSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLimiterWait записывает паузу лимитера.
func ObserveLimiterWait(limiter string, wait time.Duration) {
	LimiterWaitSeconds.WithLabelValues(limiter).Observe(wait.Seconds())
}

// ObserveAction записывает исход одного действия.
func ObserveAction(account, action string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ActionsTotal.WithLabelValues(account, action, status).Inc()
}
