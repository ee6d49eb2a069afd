package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tw-action-bot/internal/domain"
	"tw-action-bot/internal/infra/metrics"
)

// Postgres реализует domain.TweetCache на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.TweetCache = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tweets (
    account     TEXT        NOT NULL,
    id          TEXT        NOT NULL,
    author_id   TEXT        NOT NULL,
    author_name TEXT        NOT NULL,
    text        TEXT        NOT NULL,
    mentions    JSONB       NOT NULL DEFAULT '[]',
    status      TEXT        NOT NULL DEFAULT 'pending',
    replied     BOOLEAN     NOT NULL DEFAULT FALSE,
    staged_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    seen_at     TIMESTAMPTZ,
    PRIMARY KEY (account, id)
);
CREATE INDEX IF NOT EXISTS tweets_pending_idx ON tweets (account, staged_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS followers (
    account     TEXT        NOT NULL,
    user_id     TEXT        NOT NULL,
    screen_name TEXT        NOT NULL,
    followed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (account, user_id)
);
`

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetPendingTweet возвращает самый старый невиданный твит аккаунта.
func (p *Postgres) GetPendingTweet(ctx context.Context, account string) (*domain.Tweet, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, author_id, author_name, text, mentions, staged_at
FROM tweets
WHERE account = $1 AND status = 'pending'
ORDER BY staged_at
LIMIT 1
`, account)

	var (
		tweet        domain.Tweet
		mentionsJSON []byte
	)
	err := row.Scan(&tweet.ID, &tweet.Author.ID, &tweet.Author.ScreenName, &tweet.Text, &mentionsJSON, &tweet.FetchedAt)
	metrics.ObserveNetworkRequest("postgres", "get_pending", "tweets", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("выбор твита из очереди: %w", err)
	}
	if err := json.Unmarshal(mentionsJSON, &tweet.Mentions); err != nil {
		return nil, fmt.Errorf("разбор упоминаний: %w", err)
	}
	return &tweet, nil
}

// Stage идемпотентно добавляет твиты в очередь. Уже известные идентификаторы
// (в том числе просмотренные) не перезаписываются.
func (p *Postgres) Stage(ctx context.Context, account string, tweets []domain.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, tweet := range tweets {
		mentionsJSON, err := json.Marshal(tweet.Mentions)
		if err != nil {
			return fmt.Errorf("сериализация упоминаний: %w", err)
		}
		batch.Queue(`
INSERT INTO tweets (account, id, author_id, author_name, text, mentions)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (account, id) DO NOTHING
`, account, tweet.ID, tweet.Author.ID, tweet.Author.ScreenName, tweet.Text, mentionsJSON)
	}

	start := time.Now()
	err := p.pool.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "stage", "tweets", start, err)
	if err != nil {
		return fmt.Errorf("вставка твитов: %w", err)
	}
	return nil
}

// MarkSeen переводит твит в терминальный статус seen. Идемпотентна.
func (p *Postgres) MarkSeen(ctx context.Context, account string, tweet domain.Tweet) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE tweets SET status = 'seen', seen_at = now()
WHERE account = $1 AND id = $2 AND status <> 'seen'
`, account, tweet.ID)
	metrics.ObserveNetworkRequest("postgres", "mark_seen", "tweets", start, err)
	if err != nil {
		return fmt.Errorf("отметка seen: %w", err)
	}
	return nil
}

// IsSeen сообщает, просмотрен ли твит.
func (p *Postgres) IsSeen(ctx context.Context, account string, tweet domain.Tweet) (bool, error) {
	return p.checkFlag(ctx, account, tweet.ID, `status = 'seen'`, "is_seen")
}

// IsReplied сообщает, был ли оставлен комментарий.
func (p *Postgres) IsReplied(ctx context.Context, account string, tweet domain.Tweet) (bool, error) {
	return p.checkFlag(ctx, account, tweet.ID, `replied`, "is_replied")
}

func (p *Postgres) checkFlag(ctx context.Context, account, tweetID, predicate, op string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var flagged bool
	err := p.pool.QueryRow(ctx,
		`SELECT `+predicate+` FROM tweets WHERE account = $1 AND id = $2`,
		account, tweetID).Scan(&flagged)
	metrics.ObserveNetworkRequest("postgres", op, "tweets", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("проверка статуса твита: %w", err)
	}
	return flagged, nil
}

// MarkReplied отмечает твит как прокомментированный.
func (p *Postgres) MarkReplied(ctx context.Context, account string, tweet domain.Tweet) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE tweets SET replied = TRUE WHERE account = $1 AND id = $2
`, account, tweet.ID)
	metrics.ObserveNetworkRequest("postgres", "mark_replied", "tweets", start, err)
	if err != nil {
		return fmt.Errorf("отметка replied: %w", err)
	}
	return nil
}

// SampleFollowers возвращает до n случайных фолловеров аккаунта.
func (p *Postgres) SampleFollowers(ctx context.Context, account string, n int) ([]domain.User, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, screen_name FROM followers
WHERE account = $1
ORDER BY random()
LIMIT $2
`, account, n)
	metrics.ObserveNetworkRequest("postgres", "sample_followers", "followers", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка фолловеров: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.ScreenName); err != nil {
			return nil, fmt.Errorf("чтение фолловера: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход фолловеров: %w", err)
	}
	return users, nil
}

// RecordFollow добавляет пользователя в пул фолловеров.
func (p *Postgres) RecordFollow(ctx context.Context, account string, user domain.User) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO followers (account, user_id, screen_name)
VALUES ($1, $2, $3)
ON CONFLICT (account, user_id) DO NOTHING
`, account, user.ID, user.ScreenName)
	metrics.ObserveNetworkRequest("postgres", "record_follow", "followers", start, err)
	if err != nil {
		return fmt.Errorf("запись фолловера: %w", err)
	}
	return nil
}

// Stats возвращает счётчики хранилища.
func (p *Postgres) Stats(ctx context.Context, account string) (domain.CacheStats, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var stats domain.CacheStats
	err := p.pool.QueryRow(ctx, `
SELECT
    count(*) FILTER (WHERE status = 'pending'),
    count(*) FILTER (WHERE status = 'seen'),
    count(*) FILTER (WHERE replied),
    (SELECT count(*) FROM followers WHERE account = $1)
FROM tweets WHERE account = $1
`, account).Scan(&stats.Pending, &stats.Seen, &stats.Replied, &stats.Followers)
	metrics.ObserveNetworkRequest("postgres", "stats", "tweets", start, err)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("чтение статистики: %w", err)
	}
	return stats, nil
}
