package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Accounts — имена аккаунтов, каждый работает независимым циклом.
	Accounts []string `envconfig:"ACCOUNTS" default:"main"`

	Twitter struct {
		BaseURL     string `envconfig:"TW_BASE_URL" default:"https://api.twitter.com/1.1"`
		BearerToken string `envconfig:"TW_BEARER_TOKEN"`
		SearchCount int    `envconfig:"TW_SEARCH_COUNT" default:"50"`
	} `envconfig:""`

	Search struct {
		Terms   []string `envconfig:"SEARCH_TERMS" default:"#win OR #giveaway,#csgogiveaway"`
		Filters []string `envconfig:"SEARCH_FILTERS" default:"-filter:retweets,-filter:replies"`
	} `envconfig:""`

	// Quotas — дневные квоты запросов по конечным точкам.
	Quotas struct {
		Search   int `envconfig:"QUOTA_SEARCH_PER_DAY" default:"180"`
		Retweet  int `envconfig:"QUOTA_RETWEET_PER_DAY" default:"400"`
		Favorite int `envconfig:"QUOTA_FAVORITE_PER_DAY" default:"400"`
		Follow   int `envconfig:"QUOTA_FOLLOW_PER_DAY" default:"200"`
		Comment  int `envconfig:"QUOTA_COMMENT_PER_DAY" default:"100"`
	} `envconfig:""`

	Store struct {
		// Backend: postgres, redis или sqlite.
		Backend    string `envconfig:"STORE_BACKEND" default:"postgres"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"tw-action-bot.db"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queue struct {
		// Backend: redis, amqp или пусто (аудит отключён).
		Backend string `envconfig:"EVENT_QUEUE_BACKEND"`
		AMQPURL string `envconfig:"AMQP_URL"`
		Key     string `envconfig:"EVENT_QUEUE_KEY" default:"interaction_events"`
	} `envconfig:""`

	Operator struct {
		BotToken string `envconfig:"OPERATOR_BOT_TOKEN"`
		ChatID   int64  `envconfig:"OPERATOR_CHAT_ID"`
	} `envconfig:""`

	// TemplatesFile — YAML с наборами шаблонов комментариев.
	TemplatesFile string `envconfig:"COMMENT_TEMPLATES_FILE"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
