package ratelimit

import (
	"context"

	"github.com/rs/zerolog"

	"tw-action-bot/internal/domain"
)

// Quotas задаёт дневные квоты по операциям API.
type Quotas struct {
	Search   int
	Retweet  int
	Favorite int
	Follow   int
	Comment  int
}

// LimitedAPI оборачивает domain.TweetAPI отдельным лимитером на каждую
// конечную точку, так что всплеск на одной операции не тормозит другие.
type LimitedAPI struct {
	api domain.TweetAPI

	search   *Limiter
	retweet  *Limiter
	favorite *Limiter
	follow   *Limiter
	comment  *Limiter
}

var _ domain.TweetAPI = (*LimitedAPI)(nil)

// NewLimitedAPI создаёт обёртку. Любая неположительная квота — ошибка.
func NewLimitedAPI(api domain.TweetAPI, quotas Quotas, clock Clock, log zerolog.Logger) (*LimitedAPI, error) {
	l := &LimitedAPI{api: api}
	var err error
	if l.search, err = NewLimiter("search", quotas.Search, clock, log); err != nil {
		return nil, err
	}
	if l.retweet, err = NewLimiter("retweet", quotas.Retweet, clock, log); err != nil {
		return nil, err
	}
	if l.favorite, err = NewLimiter("favorite", quotas.Favorite, clock, log); err != nil {
		return nil, err
	}
	if l.follow, err = NewLimiter("follow", quotas.Follow, clock, log); err != nil {
		return nil, err
	}
	if l.comment, err = NewLimiter("comment", quotas.Comment, clock, log); err != nil {
		return nil, err
	}
	return l, nil
}

// Search выполняет поиск через лимитер поиска.
func (l *LimitedAPI) Search(ctx context.Context, query string) ([]domain.Tweet, error) {
	var tweets []domain.Tweet
	err := l.search.Do(ctx, func(ctx context.Context) error {
		var err error
		tweets, err = l.api.Search(ctx, query)
		return err
	})
	return tweets, err
}

func (l *LimitedAPI) Retweet(ctx context.Context, tweetID string) error {
	return l.retweet.Do(ctx, func(ctx context.Context) error {
		return l.api.Retweet(ctx, tweetID)
	})
}

func (l *LimitedAPI) Favorite(ctx context.Context, tweetID string) error {
	return l.favorite.Do(ctx, func(ctx context.Context) error {
		return l.api.Favorite(ctx, tweetID)
	})
}

func (l *LimitedAPI) Follow(ctx context.Context, userID string) error {
	return l.follow.Do(ctx, func(ctx context.Context) error {
		return l.api.Follow(ctx, userID)
	})
}

func (l *LimitedAPI) Comment(ctx context.Context, tweetID, text string) error {
	return l.comment.Do(ctx, func(ctx context.Context) error {
		return l.api.Comment(ctx, tweetID, text)
	})
}
