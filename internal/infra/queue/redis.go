package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tw-action-bot/internal/domain"
)

// RedisEventQueue реализует очередь событий взаимодействия на базе Redis lists.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

var _ domain.EventQueue = (*RedisEventQueue)(nil)

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key}
}

// Publish публикует событие в очередь.
func (q *RedisEventQueue) Publish(ctx context.Context, event domain.InteractionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди.
func (q *RedisEventQueue) Pop(ctx context.Context) (domain.InteractionEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.InteractionEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.InteractionEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.InteractionEvent{}, err
		}
		if len(res) != 2 {
			return domain.InteractionEvent{}, errors.New("redis queue: unexpected response")
		}
		var event domain.InteractionEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			return domain.InteractionEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return event, nil
	}
}
