// Package wiring собирает адаптеры по конфигурации для бинарей cmd/.
package wiring

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tw-action-bot/internal/adapters/repo"
	"tw-action-bot/internal/domain"
	"tw-action-bot/internal/infra/config"
	"tw-action-bot/internal/infra/db"
	"tw-action-bot/internal/infra/queue"
)

// OpenCache выбирает бэкенд хранилища. Возвращённая функция закрывает
// соединения.
func OpenCache(ctx context.Context, cfg config.AppConfig) (domain.TweetCache, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		cache := repo.NewPostgres(pool)
		if err := cache.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return cache, pool.Close, nil
	case "redis":
		client, err := redisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewRedis(client), func() { _ = client.Close() }, nil
	case "sqlite":
		store, err := repo.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.Store.Backend)
	}
}

// OpenEventQueue выбирает бэкенд очереди событий. Пустой бэкенд выключает
// аудит: возвращается nil-очередь.
func OpenEventQueue(cfg config.AppConfig) (domain.EventQueue, func(), error) {
	switch cfg.Queue.Backend {
	case "":
		return nil, func() {}, nil
	case "redis":
		client, err := redisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewRedisEventQueue(client, cfg.Queue.Key), func() { _ = client.Close() }, nil
	case "amqp":
		q, err := queue.NewAMQPEventQueue(cfg.Queue.AMQPURL, cfg.Queue.Key)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("неизвестный бэкенд очереди %q", cfg.Queue.Backend)
	}
}

func redisClient(cfg config.AppConfig) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR не задан")
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), nil
}
