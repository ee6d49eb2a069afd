package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tw-action-bot/internal/domain"
)

// SQLite реализует domain.TweetCache в локальном файле. Бэкенд для запуска
// одного аккаунта без внешней инфраструктуры.
type SQLite struct {
	db *sql.DB
}

var _ domain.TweetCache = (*SQLite)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tweets (
    account     TEXT    NOT NULL,
    id          TEXT    NOT NULL,
    author_id   TEXT    NOT NULL,
    author_name TEXT    NOT NULL,
    text        TEXT    NOT NULL,
    mentions    TEXT    NOT NULL DEFAULT '[]',
    status      TEXT    NOT NULL DEFAULT 'pending',
    replied     INTEGER NOT NULL DEFAULT 0,
    staged_at   TEXT    NOT NULL,
    seen_at     TEXT,
    PRIMARY KEY (account, id)
);
CREATE INDEX IF NOT EXISTS tweets_pending_idx ON tweets (account, staged_at);

CREATE TABLE IF NOT EXISTS followers (
    account     TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    screen_name TEXT NOT NULL,
    followed_at TEXT NOT NULL,
    PRIMARY KEY (account, user_id)
);
`

// OpenSQLite открывает (или создаёт) файл базы и применяет схему.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}
	// Последовательный воркер: одного соединения достаточно, и оно снимает
	// вопрос блокировок файла.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("создание схемы: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close закрывает базу.
func (s *SQLite) Close() error { return s.db.Close() }

// GetPendingTweet возвращает самый старый невиданный твит аккаунта.
func (s *SQLite) GetPendingTweet(ctx context.Context, account string) (*domain.Tweet, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, author_id, author_name, text, mentions, staged_at
FROM tweets
WHERE account = ? AND status = 'pending'
ORDER BY staged_at, id
LIMIT 1
`, account)

	var (
		tweet        domain.Tweet
		mentionsJSON string
		stagedAt     string
	)
	err := row.Scan(&tweet.ID, &tweet.Author.ID, &tweet.Author.ScreenName, &tweet.Text, &mentionsJSON, &stagedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("выбор твита из очереди: %w", err)
	}
	if err := json.Unmarshal([]byte(mentionsJSON), &tweet.Mentions); err != nil {
		return nil, fmt.Errorf("разбор упоминаний: %w", err)
	}
	if tweet.FetchedAt, err = time.Parse(time.RFC3339, stagedAt); err != nil {
		return nil, fmt.Errorf("разбор времени постановки: %w", err)
	}
	return &tweet, nil
}

// Stage идемпотентно добавляет твиты в очередь.
func (s *SQLite) Stage(ctx context.Context, account string, tweets []domain.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, tweet := range tweets {
		mentionsJSON, err := json.Marshal(tweet.Mentions)
		if err != nil {
			return fmt.Errorf("сериализация упоминаний: %w", err)
		}
		stagedAt := now
		if !tweet.FetchedAt.IsZero() {
			stagedAt = tweet.FetchedAt.UTC().Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO tweets (account, id, author_id, author_name, text, mentions, staged_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (account, id) DO NOTHING
`, account, tweet.ID, tweet.Author.ID, tweet.Author.ScreenName, tweet.Text, string(mentionsJSON), stagedAt); err != nil {
			return fmt.Errorf("вставка твита: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}
	return nil
}

// MarkSeen переводит твит в терминальный статус seen.
func (s *SQLite) MarkSeen(ctx context.Context, account string, tweet domain.Tweet) error {
	if _, err := s.db.ExecContext(ctx, `
UPDATE tweets SET status = 'seen', seen_at = ?
WHERE account = ? AND id = ? AND status <> 'seen'
`, time.Now().UTC().Format(time.RFC3339), account, tweet.ID); err != nil {
		return fmt.Errorf("отметка seen: %w", err)
	}
	return nil
}

// IsSeen сообщает, просмотрен ли твит.
func (s *SQLite) IsSeen(ctx context.Context, account string, tweet domain.Tweet) (bool, error) {
	return s.checkFlag(ctx, account, tweet.ID, `status = 'seen'`)
}

// IsReplied сообщает, был ли оставлен комментарий.
func (s *SQLite) IsReplied(ctx context.Context, account string, tweet domain.Tweet) (bool, error) {
	return s.checkFlag(ctx, account, tweet.ID, `replied = 1`)
}

func (s *SQLite) checkFlag(ctx context.Context, account, tweetID, predicate string) (bool, error) {
	var flagged bool
	err := s.db.QueryRowContext(ctx,
		`SELECT `+predicate+` FROM tweets WHERE account = ? AND id = ?`,
		account, tweetID).Scan(&flagged)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("проверка статуса твита: %w", err)
	}
	return flagged, nil
}

// MarkReplied отмечает твит как прокомментированный.
func (s *SQLite) MarkReplied(ctx context.Context, account string, tweet domain.Tweet) error {
	if _, err := s.db.ExecContext(ctx, `
UPDATE tweets SET replied = 1 WHERE account = ? AND id = ?
`, account, tweet.ID); err != nil {
		return fmt.Errorf("отметка replied: %w", err)
	}
	return nil
}

// SampleFollowers возвращает до n случайных фолловеров.
func (s *SQLite) SampleFollowers(ctx context.Context, account string, n int) ([]domain.User, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, screen_name FROM followers
WHERE account = ?
ORDER BY RANDOM()
LIMIT ?
`, account, n)
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
func (s *SQLite) RecordFollow(ctx context.Context, account string, user domain.User) error {
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO followers (account, user_id, screen_name, followed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (account, user_id) DO NOTHING
`, account, user.ID, user.ScreenName, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("запись фолловера: %w", err)
	}
	return nil
}

// Stats возвращает счётчики хранилища.
func (s *SQLite) Stats(ctx context.Context, account string) (domain.CacheStats, error) {
	var stats domain.CacheStats
	err := s.db.QueryRowContext(ctx, `
SELECT
    (SELECT count(*) FROM tweets WHERE account = ?1 AND status = 'pending'),
    (SELECT count(*) FROM tweets WHERE account = ?1 AND status = 'seen'),
    (SELECT count(*) FROM tweets WHERE account = ?1 AND replied = 1),
    (SELECT count(*) FROM followers WHERE account = ?1)
`, account).Scan(&stats.Pending, &stats.Seen, &stats.Replied, &stats.Followers)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("чтение статистики: %w", err)
	}
	return stats, nil
}
