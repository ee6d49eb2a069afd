package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommentTemplates — наборы шаблонов для комментариев. Tagged-шаблоны
// содержат один placeholder %s под список упомянутых фолловеров.
type CommentTemplates struct {
	Normal []string `yaml:"normal"`
	Tagged []string `yaml:"tagged"`
}

var defaultTemplates = CommentTemplates{
	Normal: []string{
		"Good luck everyone!",
		"Count me in!",
		"Fingers crossed!",
	},
	Tagged: []string{
		"Good luck %s!",
		"%s check this out!",
	},
}

// LoadTemplates читает шаблоны из YAML файла. Пустой путь даёт встроенный
// набор по умолчанию.
func LoadTemplates(path string) (CommentTemplates, error) {
	if path == "" {
		return defaultTemplates, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return CommentTemplates{}, fmt.Errorf("чтение файла шаблонов: %w", err)
	}
	var templates CommentTemplates
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return CommentTemplates{}, fmt.Errorf("разбор файла шаблонов: %w", err)
	}
	if len(templates.Normal) == 0 {
		templates.Normal = defaultTemplates.Normal
	}
	if len(templates.Tagged) == 0 {
		templates.Tagged = defaultTemplates.Tagged
	}
	for _, tpl := range templates.Tagged {
		if !strings.Contains(tpl, "%s") {
			return CommentTemplates{}, fmt.Errorf("tagged-шаблон %q без placeholder %%s", tpl)
		}
	}
	return templates, nil
}
