package account

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tw-action-bot/internal/domain"
	"tw-action-bot/internal/infra/config"
)

// instantClock не спит: паузы в тестах проходят мгновенно.
type instantClock struct{ now time.Time }

func (c instantClock) Now() time.Time { return c.now }

func (c instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// recordingClock запоминает запрошенные длительности пауз.
type recordingClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *recordingClock) Now() time.Time { return c.now }

func (c *recordingClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

type stubCache struct {
	pending   []domain.Tweet
	seen      map[string]bool
	replied   map[string]bool
	followers []domain.User

	staged  []domain.Tweet
	follows []domain.User
	marked  []string

	stageErr    error
	markSeenErr error
}

func newStubCache() *stubCache {
	return &stubCache{seen: map[string]bool{}, replied: map[string]bool{}}
}

func (c *stubCache) GetPendingTweet(_ context.Context, _ string) (*domain.Tweet, error) {
	if len(c.pending) == 0 {
		return nil, nil
	}
	t := c.pending[0]
	return &t, nil
}

func (c *stubCache) Stage(_ context.Context, _ string, tweets []domain.Tweet) error {
	if c.stageErr != nil {
		return c.stageErr
	}
	for _, tweet := range tweets {
		if c.seen[tweet.ID] {
			continue
		}
		c.pending = append(c.pending, tweet)
		c.staged = append(c.staged, tweet)
	}
	return nil
}

func (c *stubCache) MarkSeen(_ context.Context, _ string, tweet domain.Tweet) error {
	if c.markSeenErr != nil {
		return c.markSeenErr
	}
	c.seen[tweet.ID] = true
	c.marked = append(c.marked, tweet.ID)
	remaining := c.pending[:0]
	for _, pending := range c.pending {
		if pending.ID != tweet.ID {
			remaining = append(remaining, pending)
		}
	}
	c.pending = remaining
	return nil
}

func (c *stubCache) IsSeen(_ context.Context, _ string, tweet domain.Tweet) (bool, error) {
	return c.seen[tweet.ID], nil
}

func (c *stubCache) IsReplied(_ context.Context, _ string, tweet domain.Tweet) (bool, error) {
	return c.replied[tweet.ID], nil
}

func (c *stubCache) MarkReplied(_ context.Context, _ string, tweet domain.Tweet) error {
	c.replied[tweet.ID] = true
	return nil
}

func (c *stubCache) SampleFollowers(_ context.Context, _ string, n int) ([]domain.User, error) {
	if n > len(c.followers) {
		n = len(c.followers)
	}
	return c.followers[:n], nil
}

func (c *stubCache) RecordFollow(_ context.Context, _ string, user domain.User) error {
	c.follows = append(c.follows, user)
	return nil
}

func (c *stubCache) Stats(context.Context, string) (domain.CacheStats, error) {
	return domain.CacheStats{}, nil
}

type stubAPI struct {
	searchResults []domain.Tweet
	searchErr     error
	retweetErr    error
	favoriteErr   error
	followErr     error
	commentErr    error

	searches  []string
	retweets  []string
	favorites []string
	follows   []string
	comments  []string

	// Сквозной журнал вызовов в порядке выполнения.
	calls []string
}

func (a *stubAPI) Search(_ context.Context, query string) ([]domain.Tweet, error) {
	a.searches = append(a.searches, query)
	if a.searchErr != nil {
		return nil, a.searchErr
	}
	return a.searchResults, nil
}

func (a *stubAPI) Retweet(_ context.Context, tweetID string) error {
	a.retweets = append(a.retweets, tweetID)
	a.calls = append(a.calls, "retweet:"+tweetID)
	return a.retweetErr
}

func (a *stubAPI) Favorite(_ context.Context, tweetID string) error {
	a.favorites = append(a.favorites, tweetID)
	a.calls = append(a.calls, "favorite:"+tweetID)
	return a.favoriteErr
}

func (a *stubAPI) Follow(_ context.Context, userID string) error {
	a.follows = append(a.follows, userID)
	a.calls = append(a.calls, "follow:"+userID)
	return a.followErr
}

func (a *stubAPI) Comment(_ context.Context, _ string, text string) error {
	a.comments = append(a.comments, text)
	a.calls = append(a.calls, "comment")
	return a.commentErr
}

type stubEvents struct {
	published []domain.InteractionEvent
}

func (e *stubEvents) Publish(_ context.Context, event domain.InteractionEvent) error {
	e.published = append(e.published, event)
	return nil
}

func (e *stubEvents) Pop(context.Context) (domain.InteractionEvent, error) {
	return domain.InteractionEvent{}, errors.New("не используется")
}

func newTestService(api *stubAPI, cache *stubCache, events domain.EventQueue) *Service {
	return NewService(zerolog.Nop(), "tester", api, cache, Options{
		Events:      events,
		Templates:   config.CommentTemplates{Normal: []string{"good luck!"}, Tagged: []string{"gl %s!"}},
		SearchTerms: []string{"#win OR #giveaway"},
		FilterTerms: []string{"-filter:retweets"},
		Rand:        rand.New(rand.NewSource(1)),
		Clock:       instantClock{now: time.Unix(1_700_000_001, 0)},
	})
}

func tweet(id, text string, mentions ...domain.User) domain.Tweet {
	return domain.Tweet{
		ID:       id,
		Author:   domain.User{ID: "a1", ScreenName: "host"},
		Text:     text,
		Mentions: mentions,
	}
}

func TestCycleRetweetOnlyGated(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	events := &stubEvents{}
	cache.pending = []domain.Tweet{tweet("100", "please RT this")}

	if err := newTestService(api, cache, events).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(api.retweets)+len(api.favorites)+len(api.follows) != 0 {
		t.Fatalf("действий быть не должно: %+v", api)
	}
	if !cache.seen["100"] {
		t.Fatal("твит должен быть отмечен seen даже без действий")
	}
	if len(events.published) != 1 || events.published[0].Outcome != domain.OutcomeGated {
		t.Fatalf("ожидали событие gated, получили %+v", events.published)
	}
}

func TestCycleNoKeywords(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	events := &stubEvents{}
	cache.pending = []domain.Tweet{tweet("101", "hello world")}

	if err := newTestService(api, cache, events).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(api.retweets)+len(api.favorites)+len(api.follows) != 0 {
		t.Fatalf("действий быть не должно: %+v", api)
	}
	if !cache.seen["101"] {
		t.Fatal("твит должен быть отмечен seen")
	}
	if events.published[0].Outcome != domain.OutcomeNothing {
		t.Fatalf("ожидали исход nothing, получили %q", events.published[0].Outcome)
	}
}

func TestCycleRetweetAndFollowWithMentions(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	cache.pending = []domain.Tweet{tweet("102", "RT and follow me",
		domain.User{ID: "m1", ScreenName: "first"},
		domain.User{ID: "m2", ScreenName: "second"},
	)}

	if err := newTestService(api, cache, nil).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(api.retweets) != 1 {
		t.Fatalf("ожидали 1 ретвит, получили %d", len(api.retweets))
	}
	// Подписка на автора и на каждого упомянутого.
	if len(api.follows) != 3 {
		t.Fatalf("ожидали 3 подписки, получили %d: %v", len(api.follows), api.follows)
	}
	if len(cache.follows) != 3 {
		t.Fatalf("каждая подписка должна пополнять пул, получили %d", len(cache.follows))
	}
	if !cache.seen["102"] {
		t.Fatal("твит должен быть отмечен seen")
	}
}

func TestCycleFavAndFollow(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	cache.pending = []domain.Tweet{tweet("103", "fav and follow")}

	if err := newTestService(api, cache, nil).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(api.favorites) != 1 || len(api.follows) != 1 {
		t.Fatalf("ожидали фаворит и подписку на автора: %+v", api)
	}
}

func TestActionFailureDoesNotStopOthers(t *testing.T) {
	api := &stubAPI{retweetErr: errors.New("сетевой сбой")}
	cache := newStubCache()
	cache.pending = []domain.Tweet{tweet("104", "rt fav follow")}

	if err := newTestService(api, cache, nil).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(api.retweets) != 1 {
		t.Fatalf("ретвит должен быть попробован: %v", api.retweets)
	}
	if len(api.favorites) != 1 || len(api.follows) != 1 {
		t.Fatalf("остальные действия должны выполниться: %+v", api)
	}
	if !cache.seen["104"] {
		t.Fatal("твит должен быть отмечен seen несмотря на сбой действия")
	}
}

func TestForwardProgressWhenAllActionsFail(t *testing.T) {
	boom := errors.New("всё лежит")
	api := &stubAPI{retweetErr: boom, favoriteErr: boom, followErr: boom}
	cache := newStubCache()
	cache.pending = []domain.Tweet{tweet("105", "rt fav follow")}

	if err := newTestService(api, cache, nil).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !cache.seen["105"] {
		t.Fatal("loop должен дойти до FINALIZE при любых сбоях действий")
	}
}

func TestSeenTweetSkipped(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	tw := tweet("106", "rt and follow")
	cache.pending = []domain.Tweet{tw}
	cache.seen["106"] = true

	if err := newTestService(api, cache, nil).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(api.retweets)+len(api.follows) != 0 {
		t.Fatalf("по просмотренному твиту не должно быть действий: %+v", api)
	}
	if len(cache.pending) != 0 {
		t.Fatal("просмотренный твит должен уйти из очереди после FINALIZE")
	}
}

func TestFetchRefillsFromSearch(t *testing.T) {
	api := &stubAPI{searchResults: []domain.Tweet{tweet("107", "fav and follow")}}
	cache := newStubCache()

	svc := newTestService(api, cache, nil)
	got, err := svc.fetchTweet(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got == nil || got.ID != "107" {
		t.Fatalf("ожидали твит из поиска, получили %+v", got)
	}
	if len(api.searches) != 1 {
		t.Fatalf("ожидали 1 поиск, получили %d", len(api.searches))
	}
	if !strings.Contains(api.searches[0], "-filter:retweets") {
		t.Fatalf("фильтры должны добавляться к терму: %q", api.searches[0])
	}
	if len(cache.staged) != 1 {
		t.Fatalf("результаты должны попасть в очередь: %+v", cache.staged)
	}
}

func TestSearchErrorIsNotFatal(t *testing.T) {
	api := &stubAPI{searchErr: errors.New("transport down")}
	cache := newStubCache()

	if err := newTestService(api, cache, nil).cycle(context.Background()); err != nil {
		t.Fatalf("сбой поиска не должен прерывать цикл: %v", err)
	}
}

func TestQuotaErrorIsNotFatal(t *testing.T) {
	api := &stubAPI{searchErr: domain.ErrQuotaExceeded}
	cache := newStubCache()

	if err := newTestService(api, cache, nil).cycle(context.Background()); err != nil {
		t.Fatalf("исчерпанная квота не должна прерывать цикл: %v", err)
	}
}

func TestStageErrorAbortsCycle(t *testing.T) {
	api := &stubAPI{searchResults: []domain.Tweet{tweet("108", "fav follow")}}
	cache := newStubCache()
	cache.stageErr = errors.New("база недоступна")

	if err := newTestService(api, cache, nil).cycle(context.Background()); err == nil {
		t.Fatal("ошибка хранилища должна прервать цикл")
	}
	if len(cache.marked) != 0 {
		t.Fatalf("при сбое хранилища ничего не должно отмечаться seen: %v", cache.marked)
	}
}

func TestMarkSeenErrorAbortsCycle(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	cache.pending = []domain.Tweet{tweet("109", "hello world")}
	cache.markSeenErr = errors.New("база недоступна")

	if err := newTestService(api, cache, nil).cycle(context.Background()); err == nil {
		t.Fatal("ошибка отметки seen должна прервать цикл")
	}
}

func TestStagingFiltersSeen(t *testing.T) {
	// Идемпотентность: после MarkSeen повторный Stage не возвращает твит
	// в очередь.
	cache := newStubCache()
	tw := tweet("110", "fav follow")
	ctx := context.Background()

	if err := cache.Stage(ctx, "tester", []domain.Tweet{tw}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := cache.MarkSeen(ctx, "tester", tw); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := cache.Stage(ctx, "tester", []domain.Tweet{tw}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, err := cache.GetPendingTweet(ctx, "tester")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != nil {
		t.Fatalf("просмотренный твит не должен возвращаться: %+v", got)
	}
}

func TestCommentNormal(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	tw := tweet("111", "whatever")

	svc := newTestService(api, cache, nil)
	if err := svc.Comment(context.Background(), tw, false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(api.comments) != 1 {
		t.Fatalf("ожидали 1 комментарий, получили %d", len(api.comments))
	}
	if !strings.HasPrefix(api.comments[0], "@host ") {
		t.Fatalf("комментарий должен начинаться с упоминания автора: %q", api.comments[0])
	}
	if !cache.replied["111"] {
		t.Fatal("твит должен быть отмечен replied")
	}
}

func TestCommentTagged(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	cache.followers = []domain.User{
		{ID: "f1", ScreenName: "one"},
		{ID: "f2", ScreenName: "two"},
		{ID: "f3", ScreenName: "three"},
		{ID: "f4", ScreenName: "four"},
	}
	tw := tweet("112", "whatever")

	svc := newTestService(api, cache, nil)
	if err := svc.Comment(context.Background(), tw, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(api.comments) != 1 {
		t.Fatalf("ожидали 1 комментарий, получили %d", len(api.comments))
	}
	text := api.comments[0]
	if !strings.HasPrefix(text, "@host ") {
		t.Fatalf("комментарий должен начинаться с упоминания автора: %q", text)
	}
	tagged := strings.Count(text, "@") - 1
	if tagged < 2 || tagged > 3 {
		t.Fatalf("ожидали 2–3 упомянутых фолловера, получили %d: %q", tagged, text)
	}
}

func TestCommentTaggedSmallPool(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	cache.followers = []domain.User{{ID: "f1", ScreenName: "lonely"}}
	tw := tweet("113", "whatever")

	svc := newTestService(api, cache, nil)
	if err := svc.Comment(context.Background(), tw, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tagged := strings.Count(api.comments[0], "@") - 1; tagged != 1 {
		t.Fatalf("пул меньше запрошенного: ожидали 1 упоминание, получили %d", tagged)
	}
}

func TestCommentTaggedEmptyPoolFallsBack(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	tw := tweet("116", "whatever")

	svc := newTestService(api, cache, nil)
	if err := svc.Comment(context.Background(), tw, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(api.comments) != 1 {
		t.Fatalf("ожидали 1 комментарий, получили %d", len(api.comments))
	}
	if got, want := api.comments[0], "@host good luck!"; got != want {
		t.Fatalf("при пустом пуле должен идти обычный шаблон: %q", got)
	}
}

func TestActionsDispatchOrderShuffled(t *testing.T) {
	tw := tweet("117", "rt fav follow",
		domain.User{ID: "m1", ScreenName: "first"},
		domain.User{ID: "m2", ScreenName: "second"},
	)

	orders := map[string]bool{}
	for seed := int64(0); seed < 20; seed++ {
		api := &stubAPI{}
		svc := NewService(zerolog.Nop(), "tester", api, newStubCache(), Options{
			Rand:  rand.New(rand.NewSource(seed)),
			Clock: instantClock{now: time.Unix(1_700_000_001, 0)},
		})
		if err := svc.interact(context.Background(), tw); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if len(api.calls) != 5 {
			t.Fatalf("ожидали 5 действий, получили %v", api.calls)
		}
		orders[strings.Join(api.calls, ",")] = true
	}
	if len(orders) < 2 {
		t.Fatalf("порядок действий должен перемешиваться, а наблюдается один: %v", orders)
	}
}

// assertSleepJitter проверяет, что каждая пауза равна базе из набора плюс
// (при negative — минус) джиттер из диапазона (1, 2) секунды.
func assertSleepJitter(t *testing.T, slept []time.Duration, negative bool) {
	t.Helper()
	for _, d := range slept {
		secs := d.Seconds()
		matched := false
		for _, base := range sleepAmounts {
			diff := secs - float64(base)
			if negative {
				diff = float64(base) - secs
			}
			if diff > 0.999 && diff < 2.001 {
				matched = true
				break
			}
		}
		if !matched {
			t.Fatalf("пауза %.3fс не раскладывается на базу и джиттер", secs)
		}
	}
}

func TestRandomSleepEvenSecondSubtractsJitter(t *testing.T) {
	clock := &recordingClock{now: time.Unix(1_700_000_000, 0)}
	svc := NewService(zerolog.Nop(), "tester", &stubAPI{}, newStubCache(), Options{
		Rand:  rand.New(rand.NewSource(1)),
		Clock: clock,
	})

	for i := 0; i < 50; i++ {
		if err := svc.randomSleep(context.Background()); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if len(clock.slept) != 50 {
		t.Fatalf("ожидали 50 пауз, получили %d", len(clock.slept))
	}
	assertSleepJitter(t, clock.slept, true)
}

func TestRandomSleepOddSecondAddsJitter(t *testing.T) {
	clock := &recordingClock{now: time.Unix(1_700_000_001, 0)}
	svc := NewService(zerolog.Nop(), "tester", &stubAPI{}, newStubCache(), Options{
		Rand:  rand.New(rand.NewSource(2)),
		Clock: clock,
	})

	for i := 0; i < 50; i++ {
		if err := svc.randomSleep(context.Background()); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	assertSleepJitter(t, clock.slept, false)
}

func TestCommentAlreadyReplied(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	cache.replied["114"] = true
	tw := tweet("114", "whatever")

	svc := newTestService(api, cache, nil)
	if err := svc.Comment(context.Background(), tw, false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(api.comments) != 0 {
		t.Fatalf("повторный комментарий запрещён: %v", api.comments)
	}
}

func TestInteractPublishesEvent(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	events := &stubEvents{}
	cache.pending = []domain.Tweet{tweet("115", "fav and follow")}

	if err := newTestService(api, cache, events).cycle(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(events.published) != 1 {
		t.Fatalf("ожидали 1 событие, получили %d", len(events.published))
	}
	event := events.published[0]
	if event.Outcome != domain.OutcomeInteracted {
		t.Fatalf("ожидали исход interacted, получили %q", event.Outcome)
	}
	if event.ID == "" || event.Account != "tester" || event.TweetID != "115" {
		t.Fatalf("неполное событие: %+v", event)
	}
	if len(event.Actions) != 2 {
		t.Fatalf("ожидали 2 выполненных действия, получили %v", event.Actions)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	api := &stubAPI{}
	cache := newStubCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := newTestService(api, cache, nil).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}
}
