package account

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tw-action-bot/internal/domain"
	"tw-action-bot/internal/infra/config"
	"tw-action-bot/internal/infra/metrics"
	"tw-action-bot/internal/infra/ratelimit"
	"tw-action-bot/internal/usecase/directive"
)

// Базовые длительности паузы между шагами, в секундах.
var sleepAmounts = []int{15, 17, 19, 21, 23, 25, 27, 29}

// persistFailure помечает ошибку хранилища: такой сбой прерывает цикл,
// твит не отмечается как seen.
type persistFailure struct{ error }

func (p persistFailure) Unwrap() error { return p.error }

// Options — необязательные зависимости сервиса.
type Options struct {
	Events      domain.EventQueue
	Notifier    domain.Notifier
	Templates   config.CommentTemplates
	SearchTerms []string
	FilterTerms []string
	Rand        *rand.Rand
	Clock       ratelimit.Clock
}

// Service гоняет цикл одного аккаунта: выбор кандидата, разбор директивы,
// действия через лимитированный API и фиксация состояния в хранилище.
type Service struct {
	log        zerolog.Logger
	screenName string
	api        domain.TweetAPI
	cache      domain.TweetCache
	events     domain.EventQueue
	notifier   domain.Notifier
	templates  config.CommentTemplates

	searchTerms []string
	filterTerms []string

	rng   *rand.Rand
	clock ratelimit.Clock
}

// NewService создаёт сервис аккаунта. API передаётся уже обёрнутым в
// лимитеры (ratelimit.LimitedAPI).
func NewService(log zerolog.Logger, screenName string, api domain.TweetAPI, cache domain.TweetCache, opts Options) *Service {
	s := &Service{
		log:         log,
		screenName:  screenName,
		api:         api,
		cache:       cache,
		events:      opts.Events,
		notifier:    opts.Notifier,
		templates:   opts.Templates,
		searchTerms: opts.SearchTerms,
		filterTerms: opts.FilterTerms,
		rng:         opts.Rand,
		clock:       opts.Clock,
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.clock == nil {
		s.clock = ratelimit.SystemClock{}
	}
	return s
}

// Run крутит цикл до отмены контекста. Восстановимые сбои логируются и
// цикл продолжается после паузы; процесс не завершается.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info().Msg("аккаунт запущен")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.log.Error().Err(err).Msg("цикл прерван")
			s.notify(ctx, fmt.Sprintf("[%s] цикл прерван: %v", s.screenName, err))
			if err := s.randomSleep(ctx); err != nil {
				return err
			}
		}
	}
}

// cycle обрабатывает ровно один твит: FETCH, проверка seen, INTERACT,
// FINALIZE, SLEEP. Ошибка хранилища прерывает цикл до отметки seen.
func (s *Service) cycle(ctx context.Context) error {
	tweet, err := s.fetchTweet(ctx)
	if err != nil {
		return err
	}
	if tweet == nil {
		s.log.Info().Msg("кандидатов нет")
		return s.randomSleep(ctx)
	}

	seen, err := s.cache.IsSeen(ctx, s.screenName, *tweet)
	if err != nil {
		return fmt.Errorf("проверка seen: %w", err)
	}

	if seen {
		s.log.Info().Str("tweet", tweet.ID).Msg("твит уже просмотрен")
		metrics.TweetsProcessedTotal.WithLabelValues(s.screenName, domain.OutcomeSeen).Inc()
	} else if err := s.interact(ctx, *tweet); err != nil {
		return err
	}

	if err := s.cache.MarkSeen(ctx, s.screenName, *tweet); err != nil {
		return fmt.Errorf("отметка seen: %w", err)
	}
	return s.randomSleep(ctx)
}

// fetchTweet берёт кандидата из очереди; при пустой очереди пополняет её
// поиском по настроенным термам. Пустой или неудачный поиск — не фатален.
func (s *Service) fetchTweet(ctx context.Context) (*domain.Tweet, error) {
	tweet, err := s.cache.GetPendingTweet(ctx, s.screenName)
	if err != nil {
		return nil, fmt.Errorf("чтение очереди: %w", err)
	}
	if tweet != nil {
		return tweet, nil
	}

	for _, term := range s.searchTerms {
		query := term
		if len(s.filterTerms) > 0 {
			query += " " + strings.Join(s.filterTerms, " ")
		}
		found, err := s.api.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.SearchRequestsTotal.WithLabelValues(s.screenName, "error").Inc()
			if errors.Is(err, domain.ErrQuotaExceeded) {
				s.log.Warn().Str("term", term).Msg("квота поиска исчерпана")
			} else {
				s.log.Error().Err(err).Str("term", term).Msg("поиск не удался")
			}
			continue
		}
		metrics.SearchRequestsTotal.WithLabelValues(s.screenName, "success").Inc()
		if len(found) == 0 {
			s.log.Debug().Str("term", term).Msg("поиск без результатов")
			continue
		}
		if err := s.cache.Stage(ctx, s.screenName, found); err != nil {
			return nil, fmt.Errorf("постановка твитов в очередь: %w", err)
		}
		metrics.TweetsStagedTotal.WithLabelValues(s.screenName).Add(float64(len(found)))
		if err := s.randomSleep(ctx); err != nil {
			return nil, err
		}
	}

	tweet, err = s.cache.GetPendingTweet(ctx, s.screenName)
	if err != nil {
		return nil, fmt.Errorf("чтение очереди: %w", err)
	}
	return tweet, nil
}

// interact разбирает директиву и выполняет действия. Сбой одного действия
// не мешает остальным; ошибки хранилища прерывают обработку.
func (s *Service) interact(ctx context.Context, tweet domain.Tweet) error {
	d := directive.Parse(tweet.Text)
	s.logBanner(tweet, d)

	actions := buildActions(tweet, d)

	if len(actions) == 0 {
		s.log.Info().Str("tweet", tweet.ID).Msg("нечего выполнять")
		metrics.TweetsProcessedTotal.WithLabelValues(s.screenName, domain.OutcomeNothing).Inc()
		s.publish(ctx, tweet, d, nil, domain.OutcomeNothing)
		return nil
	}
	if d.RetweetOnly() {
		s.log.Info().Str("tweet", tweet.ID).Msg("директив недостаточно")
		metrics.TweetsProcessedTotal.WithLabelValues(s.screenName, domain.OutcomeGated).Inc()
		s.publish(ctx, tweet, d, nil, domain.OutcomeGated)
		return nil
	}

	// Перемешивание ломает детектируемый порядок действий у удалённого
	// сервиса; требование поведения, не оптимизация.
	s.rng.Shuffle(len(actions), func(i, j int) {
		actions[i], actions[j] = actions[j], actions[i]
	})

	executed := make([]string, 0, len(actions))
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.dispatch(ctx, tweet, action)
		metrics.ObserveAction(s.screenName, string(action.Kind), err)
		if err != nil {
			var pf persistFailure
			if errors.As(err, &pf) || ctx.Err() != nil {
				return err
			}
			s.log.Error().Err(err).Str("action", string(action.Kind)).Msg("действие не удалось")
		} else {
			s.log.Info().Str("action", string(action.Kind)).Str("tweet", tweet.ID).Msg("действие выполнено")
			executed = append(executed, string(action.Kind))
		}
		if err := s.randomSleep(ctx); err != nil {
			return err
		}
	}

	s.log.Info().Str("tweet", tweet.ID).Int("executed", len(executed)).Msg("твит обработан")
	metrics.TweetsProcessedTotal.WithLabelValues(s.screenName, domain.OutcomeInteracted).Inc()
	s.publish(ctx, tweet, d, executed, domain.OutcomeInteracted)
	return nil
}

// dispatch выполняет одно действие через лимитированный API.
func (s *Service) dispatch(ctx context.Context, tweet domain.Tweet, action domain.Action) error {
	switch action.Kind {
	case domain.ActionRetweet:
		return s.api.Retweet(ctx, action.TweetID)
	case domain.ActionFavorite:
		return s.api.Favorite(ctx, action.TweetID)
	case domain.ActionFollow:
		if err := s.api.Follow(ctx, action.User.ID); err != nil {
			return err
		}
		if err := s.cache.RecordFollow(ctx, s.screenName, action.User); err != nil {
			return persistFailure{fmt.Errorf("запись фолловера: %w", err)}
		}
		return nil
	case domain.ActionComment:
		return s.Comment(ctx, tweet, action.Tag)
	default:
		return fmt.Errorf("неизвестное действие %q", action.Kind)
	}
}

// buildActions переводит директиву в список действий: ретвит, фаворит,
// подписка на автора и каждого упомянутого, опциональный комментарий.
func buildActions(tweet domain.Tweet, d domain.Directive) []domain.Action {
	var actions []domain.Action
	if d.Retweet {
		actions = append(actions, domain.Action{Kind: domain.ActionRetweet, TweetID: tweet.ID})
	}
	if d.Favorite {
		actions = append(actions, domain.Action{Kind: domain.ActionFavorite, TweetID: tweet.ID})
	}
	if d.Follow {
		actions = append(actions, domain.Action{Kind: domain.ActionFollow, TweetID: tweet.ID, User: tweet.Author})
		for _, mention := range tweet.Mentions {
			actions = append(actions, domain.Action{Kind: domain.ActionFollow, TweetID: tweet.ID, User: mention})
		}
	}
	if d.Comment {
		actions = append(actions, domain.Action{Kind: domain.ActionComment, TweetID: tweet.ID, Tag: d.Tag})
	}
	return actions
}

func (s *Service) logBanner(tweet domain.Tweet, d domain.Directive) {
	s.log.Info().Msgf("взаимодействие с твитом [https://twitter.com/%s/status/%s]", tweet.Author.ScreenName, tweet.ID)
	for _, line := range strings.Split(tweet.Text, "\n") {
		s.log.Info().Msgf(" │ %s", line)
	}
	s.log.Info().Msgf(" └─────── %+v", d)
}

// randomSleep выдерживает паузу из базового набора с джиттером меньше 2с;
// знак джиттера зависит от чётности текущей секунды.
func (s *Service) randomSleep(ctx context.Context) error {
	jitter := 1 + s.rng.Float64()
	if s.clock.Now().Unix()%2 == 0 {
		jitter = -jitter
	}
	amount := float64(sleepAmounts[s.rng.Intn(len(sleepAmounts))]) + jitter
	s.log.Info().Msgf("zZz пауза на [%.2f] секунд zZz", amount)
	return s.clock.Sleep(ctx, time.Duration(amount*float64(time.Second)))
}

func (s *Service) publish(ctx context.Context, tweet domain.Tweet, d domain.Directive, executed []string, outcome string) {
	if s.events == nil {
		return
	}
	event := domain.InteractionEvent{
		ID:         uuid.NewString(),
		Account:    s.screenName,
		TweetID:    tweet.ID,
		Author:     tweet.Author.ScreenName,
		Directive:  d,
		Actions:    executed,
		Outcome:    outcome,
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Msg("событие аудита не опубликовано")
	}
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("оператор не уведомлён")
	}
}
