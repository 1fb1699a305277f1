package content

import (
	"regexp"
	"strings"

	"vibedoc-server/internal/model"
)

var (
	// Заголовок секции промптов: допускаем любую глубину и небольшие
	// вариации названия.
	promptsHeadingRe = regexp.MustCompile(`(?i)^(#{1,6})\s*(?:AI\s+Programming\s+Assistant\s+Prompts|AI\s+Coding\s+Prompts|Coding\s+Prompts)\s*$`)
	numberedItemRe   = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.*)$`)
	boldTitleRe      = regexp.MustCompile(`^\*\*(.+?)\*\*[::]?\s*(.*)$`)
	anyHeadingRe     = regexp.MustCompile(`^(#{1,6})\s`)
)

// ExtractPrompts находит секцию промптов для AI-ассистента и разбирает ее
// на нумерованные элементы. Возвращает false, если секция не найдена.
func ExtractPrompts(markdown string) ([]model.CodingPrompt, bool) {
	lines := strings.Split(markdown, "\n")

	sectionStart := -1
	sectionLevel := 0
	for i, line := range lines {
		if m := promptsHeadingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			sectionStart = i
			sectionLevel = len(m[1])
			break
		}
	}
	if sectionStart == -1 {
		return nil, false
	}

	// Секция тянется до следующего заголовка того же или более высокого уровня
	sectionEnd := len(lines)
	inFence := false
	for i := sectionStart + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := anyHeadingRe.FindStringSubmatch(trimmed); m != nil && len(m[1]) <= sectionLevel {
			sectionEnd = i
			break
		}
	}

	var prompts []model.CodingPrompt
	var current *model.CodingPrompt
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		prompts = append(prompts, *current)
		current = nil
		body = nil
	}

	inFence = false
	for i := sectionStart + 1; i < sectionEnd; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		if !inFence {
			if m := numberedItemRe.FindStringSubmatch(line); m != nil {
				flush()
				index := parseIndex(m[1])
				title, rest := splitTitle(m[2])
				current = &model.CodingPrompt{Index: index, Title: title}
				if rest != "" {
					body = append(body, rest)
				}
				continue
			}
		}

		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	if len(prompts) == 0 {
		return nil, false
	}
	return prompts, true
}

// splitTitle отделяет жирный заголовок элемента от остального текста.
// Если заголовка нет, вся строка становится заголовком.
func splitTitle(s string) (title, rest string) {
	s = strings.TrimSpace(s)
	if m := boldTitleRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return s, ""
}

func parseIndex(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
