package account

import (
	"context"
	"fmt"
	"strings"

	"tw-action-bot/internal/domain"
)

// Comment отвечает на твит. Повторный вызов для уже прокомментированного
// твита — no-op. Ответ всегда начинается с упоминания автора; tagged-вариант
// дополняет его 2–3 случайными фолловерами из пула.
func (s *Service) Comment(ctx context.Context, tweet domain.Tweet, tag bool) error {
	replied, err := s.cache.IsReplied(ctx, s.screenName, tweet)
	if err != nil {
		return persistFailure{fmt.Errorf("проверка replied: %w", err)}
	}
	if replied {
		s.log.Info().Str("tweet", tweet.ID).Msg("твит уже прокомментирован")
		return nil
	}

	text := "@" + tweet.Author.ScreenName + " "

	tagged := false
	if tag && len(s.templates.Tagged) > 0 {
		amount := 2 + s.rng.Intn(2)
		followers, err := s.cache.SampleFollowers(ctx, s.screenName, amount)
		if err != nil {
			return persistFailure{fmt.Errorf("выборка фолловеров: %w", err)}
		}
		// Пустой пул — тегать некого, отвечаем обычным шаблоном.
		if len(followers) > 0 {
			handles := make([]string, 0, len(followers))
			for _, follower := range followers {
				handles = append(handles, "@"+follower.ScreenName)
			}
			template := s.templates.Tagged[s.rng.Intn(len(s.templates.Tagged))]
			text += fmt.Sprintf(template, strings.Join(handles, " "))
			tagged = true
		}
	}
	if !tagged && len(s.templates.Normal) > 0 {
		text += s.templates.Normal[s.rng.Intn(len(s.templates.Normal))]
	}

	if err := s.api.Comment(ctx, tweet.ID, strings.TrimSpace(text)); err != nil {
		return err
	}
	if err := s.cache.MarkReplied(ctx, s.screenName, tweet); err != nil {
		return persistFailure{fmt.Errorf("отметка replied: %w", err)}
	}
	return nil
}
