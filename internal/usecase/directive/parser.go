package directive

import (
	"strings"

	"tw-action-bot/internal/domain"
)

// Группы ключевых слов по флагам. Совпадение ищется по подстроке,
// первая сработавшая останавливает группу.
var (
	retweetKeywords  = []string{"rt", "retweet", "re-tweet"}
	favoriteKeywords = []string{"favorite", "favourite", "fav", "like"}
	followKeywords   = []string{"flw", "follow"}
)

// Parse разбирает текст твита в Directive. Функция чистая и
// детерминированная: регистр не учитывается, группы флагов независимы,
// отсутствие ключевых слов даёт пустую директиву.
func Parse(text string) domain.Directive {
	var d domain.Directive
	text = strings.ToLower(text)

	for _, keyword := range retweetKeywords {
		if strings.Contains(text, keyword) {
			d.Retweet = true
			break
		}
	}

	for _, keyword := range favoriteKeywords {
		if strings.Contains(text, keyword) {
			d.Favorite = true
			break
		}
	}

	for _, keyword := range followKeywords {
		if strings.Contains(text, keyword) {
			d.Follow = true
			break
		}
	}

	return d
}
