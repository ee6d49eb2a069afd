package twitterapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tw-action-bot/internal/domain"
	"tw-action-bot/internal/infra/metrics"
)

const errCodeRateLimited = 88

// Config — настройки клиента API.
type Config struct {
	BaseURL     string
	BearerToken string
	SearchCount int
	Timeout     time.Duration
}

// Client реализует domain.TweetAPI поверх HTTP API v1.1.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.TweetAPI = (*Client)(nil)

// NewClient создаёт клиента.
func NewClient(cfg Config) *Client {
	client := &Client{cfg: cfg}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.httpClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.twitter.com/1.1"
	}
	if cfg.SearchCount <= 0 {
		client.cfg.SearchCount = 50
	}
	return client
}

// SetHTTPClient подменяет транспорт (для тестов).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

type userPayload struct {
	IDStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
}

type tweetPayload struct {
	IDStr    string      `json:"id_str"`
	FullText string      `json:"full_text"`
	Text     string      `json:"text"`
	User     userPayload `json:"user"`
	Entities struct {
		UserMentions []userPayload `json:"user_mentions"`
	} `json:"entities"`
}

type searchResponse struct {
	Statuses []tweetPayload `json:"statuses"`
}

type apiErrorResponse struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Search выполняет поиск. Пустой список статусов — не ошибка.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Tweet, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(c.cfg.SearchCount))
	params.Set("result_type", "recent")
	params.Set("tweet_mode", "extended")

	body, err := c.do(ctx, http.MethodGet, "/search/tweets.json", params, "search")
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("разбор ответа поиска: %w", err)
	}

	now := time.Now().UTC()
	tweets := make([]domain.Tweet, 0, len(parsed.Statuses))
	for _, status := range parsed.Statuses {
		text := status.FullText
		if text == "" {
			text = status.Text
		}
		mentions := make([]domain.User, 0, len(status.Entities.UserMentions))
		for _, mention := range status.Entities.UserMentions {
			mentions = append(mentions, domain.User{ID: mention.IDStr, ScreenName: mention.ScreenName})
		}
		tweets = append(tweets, domain.Tweet{
			ID:        status.IDStr,
			Author:    domain.User{ID: status.User.IDStr, ScreenName: status.User.ScreenName},
			Text:      text,
			Mentions:  mentions,
			FetchedAt: now,
		})
	}
	return tweets, nil
}

// Retweet делает ретвит.
func (c *Client) Retweet(ctx context.Context, tweetID string) error {
	_, err := c.do(ctx, http.MethodPost, "/statuses/retweet/"+url.PathEscape(tweetID)+".json", nil, "retweet")
	return err
}

// Favorite отмечает твит как понравившийся.
func (c *Client) Favorite(ctx context.Context, tweetID string) error {
	params := url.Values{}
	params.Set("id", tweetID)
	_, err := c.do(ctx, http.MethodPost, "/favorites/create.json", params, "favorite")
	return err
}

// Follow подписывается на пользователя.
func (c *Client) Follow(ctx context.Context, userID string) error {
	params := url.Values{}
	params.Set("user_id", userID)
	_, err := c.do(ctx, http.MethodPost, "/friendships/create.json", params, "follow")
	return err
}

// Comment отвечает на твит.
func (c *Client) Comment(ctx context.Context, tweetID, text string) error {
	params := url.Values{}
	params.Set("status", text)
	params.Set("in_reply_to_status_id", tweetID)
	_, err := c.do(ctx, http.MethodPost, "/statuses/update.json", params, "comment")
	return err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, operation string) ([]byte, error) {
	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("twitter", operation, path, start, err)
	if err != nil {
		return nil, fmt.Errorf("запрос %s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа %s: %w", operation, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", operation, domain.ErrQuotaExceeded)
	}
	if resp.StatusCode >= 300 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil {
			for _, e := range apiErr.Errors {
				if e.Code == errCodeRateLimited {
					return nil, fmt.Errorf("%s: %w", operation, domain.ErrQuotaExceeded)
				}
			}
			if len(apiErr.Errors) > 0 {
				return nil, fmt.Errorf("%s: статус %d: код %d: %s",
					operation, resp.StatusCode, apiErr.Errors[0].Code, apiErr.Errors[0].Message)
			}
		}
		return nil, fmt.Errorf("%s: статус %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
