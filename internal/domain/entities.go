package domain

import "time"

// User описывает пользователя удалённого сервиса.
type User struct {
	ID         string
	ScreenName string
}

// Tweet представляет найденный твит. После загрузки не изменяется.
type Tweet struct {
	ID        string
	Author    User
	Text      string
	Mentions  []User
	FetchedAt time.Time
}

// Directive содержит разобранное намерение из текста твита.
type Directive struct {
	Retweet  bool
	Favorite bool
	Follow   bool
	Tag      bool
	Comment  bool
}

// Empty сообщает, что ни один флаг не взведён.
func (d Directive) Empty() bool {
	return !d.Retweet && !d.Favorite && !d.Follow && !d.Tag && !d.Comment
}

// RetweetOnly сообщает, что ретвит — единственный взведённый флаг.
func (d Directive) RetweetOnly() bool {
	return d.Retweet && !d.Favorite && !d.Follow && !d.Tag && !d.Comment
}

// ActionKind перечисляет виды действий над твитом.
type ActionKind string

const (
	ActionRetweet  ActionKind = "retweet"
	ActionFavorite ActionKind = "favorite"
	ActionFollow   ActionKind = "follow"
	ActionComment  ActionKind = "comment"
)

// Action описывает одно отложенное действие. Потребляется ровно один раз,
// внутри цикла не повторяется.
type Action struct {
	Kind    ActionKind
	TweetID string
	// User заполняется только для ActionFollow.
	User User
	// Tag заполняется только для ActionComment.
	Tag bool
}

// InteractionEvent — запись об итоге обработки одного твита для аудита.
type InteractionEvent struct {
	ID         string    `json:"id"`
	Account    string    `json:"account"`
	TweetID    string    `json:"tweet_id"`
	Author     string    `json:"author"`
	Directive  Directive `json:"directive"`
	Actions    []string  `json:"actions"`
	Outcome    string    `json:"outcome"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Итоги обработки твита в InteractionEvent.Outcome.
const (
	OutcomeInteracted = "interacted"
	OutcomeGated      = "gated"
	OutcomeNothing    = "nothing"
	OutcomeSeen       = "already_seen"
)

// CacheStats — счётчики хранилища для статусного API.
type CacheStats struct {
	Pending   int64 `json:"pending"`
	Seen      int64 `json:"seen"`
	Replied   int64 `json:"replied"`
	Followers int64 `json:"followers"`
}
