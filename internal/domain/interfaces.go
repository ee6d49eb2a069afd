package domain

import (
	"context"
	"errors"
)

// ErrQuotaExceeded возвращается клиентом API, когда удалённый сервис
// исчерпал квоту запросов (HTTP 429 или код ошибки 88).
var ErrQuotaExceeded = errors.New("квота запросов к API исчерпана")

// TweetAPI описывает операции удалённого сервиса. Пустой результат поиска —
// не ошибка: транспортные сбои и квоты возвращаются отдельной ошибкой.
type TweetAPI interface {
	Search(ctx context.Context, query string) ([]Tweet, error)
	Retweet(ctx context.Context, tweetID string) error
	Favorite(ctx context.Context, tweetID string) error
	Follow(ctx context.Context, userID string) error
	Comment(ctx context.Context, tweetID, text string) error
}

// TweetCache хранит очередь кандидатов, терминальные отметки seen/replied и
// пул фолловеров. Все операции идемпотентны по ключу (account, tweet id);
// повторный Stage уже просмотренного твита — no-op.
type TweetCache interface {
	// GetPendingTweet возвращает один невиданный твит из очереди или nil,
	// если очередь пуста.
	GetPendingTweet(ctx context.Context, account string) (*Tweet, error)
	Stage(ctx context.Context, account string, tweets []Tweet) error
	MarkSeen(ctx context.Context, account string, tweet Tweet) error
	IsSeen(ctx context.Context, account string, tweet Tweet) (bool, error)
	IsReplied(ctx context.Context, account string, tweet Tweet) (bool, error)
	MarkReplied(ctx context.Context, account string, tweet Tweet) error
	// SampleFollowers возвращает не более n пользователей из пула.
	SampleFollowers(ctx context.Context, account string, n int) ([]User, error)
	RecordFollow(ctx context.Context, account string, user User) error
	Stats(ctx context.Context, account string) (CacheStats, error)
}

// EventQueue — очередь событий взаимодействия для аудита.
type EventQueue interface {
	Publish(ctx context.Context, event InteractionEvent) error
	Pop(ctx context.Context) (InteractionEvent, error)
}

// Notifier доставляет оператору сообщения о сбоях.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
