package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tw-action-bot/internal/domain"
)

// Redis реализует domain.TweetCache поверх Redis: список под очередь
// кандидатов, множества под отметки seen/replied, hash под пул фолловеров.
type Redis struct {
	client *redis.Client
}

var _ domain.TweetCache = (*Redis)(nil)

// NewRedis создаёт адаптер.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) pendingKey(account string) string   { return "tw:" + account + ":pending" }
func (r *Redis) seenKey(account string) string      { return "tw:" + account + ":seen" }
func (r *Redis) repliedKey(account string) string   { return "tw:" + account + ":replied" }
func (r *Redis) followersKey(account string) string { return "tw:" + account + ":followers" }
func (r *Redis) tweetKey(account, id string) string { return "tw:" + account + ":tweet:" + id }

// GetPendingTweet читает хвост очереди, не снимая элемент: твит уходит из
// очереди только в MarkSeen, чтобы сбой цикла его не терял.
func (r *Redis) GetPendingTweet(ctx context.Context, account string) (*domain.Tweet, error) {
	for {
		id, err := r.client.LIndex(ctx, r.pendingKey(account), -1).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("чтение очереди: %w", err)
		}

		payload, err := r.client.Get(ctx, r.tweetKey(account, id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Осиротевший идентификатор без тела — выбрасываем и идём дальше.
			if err := r.client.LRem(ctx, r.pendingKey(account), 1, id).Err(); err != nil {
				return nil, fmt.Errorf("чистка очереди: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("чтение твита: %w", err)
		}

		var tweet domain.Tweet
		if err := json.Unmarshal(payload, &tweet); err != nil {
			return nil, fmt.Errorf("разбор твита: %w", err)
		}
		return &tweet, nil
	}
}

// Stage идемпотентно добавляет твиты: просмотренные и уже стоящие в очереди
// идентификаторы отфильтровываются. Тело твита и элемент очереди пишутся
// одной MULTI/EXEC транзакцией: после сбоя на середине списка не остаётся
// следа, из-за которого твит нельзя было бы поставить повторно.
func (r *Redis) Stage(ctx context.Context, account string, tweets []domain.Tweet) error {
	for _, tweet := range tweets {
		seen, err := r.client.SIsMember(ctx, r.seenKey(account), tweet.ID).Result()
		if err != nil {
			return fmt.Errorf("проверка seen: %w", err)
		}
		if seen {
			continue
		}
		staged, err := r.client.Exists(ctx, r.tweetKey(account, tweet.ID)).Result()
		if err != nil {
			return fmt.Errorf("проверка очереди: %w", err)
		}
		if staged > 0 {
			continue
		}
		payload, err := json.Marshal(tweet)
		if err != nil {
			return fmt.Errorf("сериализация твита: %w", err)
		}
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.tweetKey(account, tweet.ID), payload, 0)
			pipe.LPush(ctx, r.pendingKey(account), tweet.ID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("постановка в очередь: %w", err)
		}
	}
	return nil
}

// MarkSeen снимает твит с очереди и фиксирует терминальную отметку. Отметка
// seen, снятие с очереди и удаление тела — одна транзакция.
func (r *Redis) MarkSeen(ctx context.Context, account string, tweet domain.Tweet) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.seenKey(account), tweet.ID)
		pipe.LRem(ctx, r.pendingKey(account), 0, tweet.ID)
		pipe.Del(ctx, r.tweetKey(account, tweet.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("отметка seen: %w", err)
	}
	return nil
}

// IsSeen сообщает, просмотрен ли твит.
func (r *Redis) IsSeen(ctx context.Context, account string, tweet domain.Tweet) (bool, error) {
	seen, err := r.client.SIsMember(ctx, r.seenKey(account), tweet.ID).Result()
	if err != nil {
		return false, fmt.Errorf("проверка seen: %w", err)
	}
	return seen, nil
}

// IsReplied сообщает, был ли оставлен комментарий.
func (r *Redis) IsReplied(ctx context.Context, account string, tweet domain.Tweet) (bool, error) {
	replied, err := r.client.SIsMember(ctx, r.repliedKey(account), tweet.ID).Result()
	if err != nil {
		return false, fmt.Errorf("проверка replied: %w", err)
	}
	return replied, nil
}

// MarkReplied отмечает твит как прокомментированный.
func (r *Redis) MarkReplied(ctx context.Context, account string, tweet domain.Tweet) error {
	if err := r.client.SAdd(ctx, r.repliedKey(account), tweet.ID).Err(); err != nil {
		return fmt.Errorf("отметка replied: %w", err)
	}
	return nil
}

// SampleFollowers возвращает до n случайных фолловеров через HRANDFIELD.
func (r *Redis) SampleFollowers(ctx context.Context, account string, n int) ([]domain.User, error) {
	if n <= 0 {
		return nil, nil
	}
	fields, err := r.client.HRandFieldWithValues(ctx, r.followersKey(account), n).Result()
	if err != nil {
		return nil, fmt.Errorf("выборка фолловеров: %w", err)
	}
	users := make([]domain.User, 0, len(fields))
	for _, field := range fields {
		users = append(users, domain.User{ID: field.Key, ScreenName: field.Value})
	}
	return users, nil
}

// RecordFollow добавляет пользователя в пул фолловеров.
func (r *Redis) RecordFollow(ctx context.Context, account string, user domain.User) error {
	if err := r.client.HSet(ctx, r.followersKey(account), user.ID, user.ScreenName).Err(); err != nil {
		return fmt.Errorf("запись фолловера: %w", err)
	}
	return nil
}

// Stats возвращает счётчики хранилища.
func (r *Redis) Stats(ctx context.Context, account string) (domain.CacheStats, error) {
	var stats domain.CacheStats
	pending, err := r.client.LLen(ctx, r.pendingKey(account)).Result()
	if err != nil {
		return stats, fmt.Errorf("размер очереди: %w", err)
	}
	seen, err := r.client.SCard(ctx, r.seenKey(account)).Result()
	if err != nil {
		return stats, fmt.Errorf("размер seen: %w", err)
	}
	replied, err := r.client.SCard(ctx, r.repliedKey(account)).Result()
	if err != nil {
		return stats, fmt.Errorf("размер replied: %w", err)
	}
	followers, err := r.client.HLen(ctx, r.followersKey(account)).Result()
	if err != nil {
		return stats, fmt.Errorf("размер пула фолловеров: %w", err)
	}
	stats.Pending = pending
	stats.Seen = seen
	stats.Replied = replied
	stats.Followers = followers
	return stats, nil
}
