package content

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"vibedoc-server/internal/model"
)

// Пороговая длина контента, после которой компонент длины набирает максимум.
const lengthTarget = 3000

var (
	flowchartRe = regexp.MustCompile(`(?s)` + "```mermaid" + `\s*\n\s*flowchart\s`)
	ganttRe     = regexp.MustCompile(`(?s)` + "```mermaid" + `\s*\n\s*gantt`)
)

// Ключевые секции, которые должен содержать полный план.
// Каждая найденная приносит равную долю компонента structure.
var requiredSections = []struct {
	name     string
	keywords []string
}{
	{"overview", []string{"overview", "goal"}},
	{"tech stack", []string{"tech stack", "technology", "stack"}},
	{"architecture", []string{"architecture"}},
	{"milestones", []string{"milestone", "schedule", "timeline"}},
	{"risks", []string{"risk"}},
	{"coding prompts", []string{strings.ToLower("AI Programming Assistant Prompts"), "coding prompts"}},
}

// MissingSections возвращает имена ключевых секций, которых нет в плане.
func MissingSections(markdown string) []string {
	lower := strings.ToLower(markdown)
	var missing []string
	for _, section := range requiredSections {
		found := false
		for _, kw := range section.keywords {
			if strings.Contains(lower, kw) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, section.name)
		}
	}
	return missing
}

// Score оценивает качество плана по пяти компонентам: длина, структура,
// диаграммы, даты и ссылки. Итог нормируется в 0..100.
func Score(markdown string, now time.Time) model.QualityScore {
	var s model.QualityScore

	// Длина: до 20 баллов линейно к цели
	length := len(markdown)
	s.Length = length * 20 / lengthTarget
	if s.Length > 20 {
		s.Length = 20
	}

	// Структура: до 30 баллов, по 5 за каждую ключевую секцию
	lower := strings.ToLower(markdown)
	for _, section := range requiredSections {
		for _, kw := range section.keywords {
			if strings.Contains(lower, kw) {
				s.Structure += 5
				break
			}
		}
	}

	// Mermaid: 10 за flowchart, 10 за gantt
	if flowchartRe.MatchString(markdown) {
		s.Mermaid += 10
	}
	if ganttRe.MatchString(markdown) {
		s.Mermaid += 10
	}

	// Даты: 15 баллов, если все даты в текущем году (отсутствие дат не штрафуем)
	s.Dates = 15
	currentYear := fmt.Sprintf("%04d", now.Year())
	for _, m := range isoDateRe.FindAllStringSubmatch(markdown, -1) {
		if m[1] != currentYear {
			s.Dates = 0
			break
		}
	}

	// Ссылки: 15 баллов минус 5 за каждую недоверенную, не ниже нуля
	s.Links = 15
	for _, m := range markdownLinkRe.FindAllStringSubmatch(markdown, -1) {
		if !isTrustedURL(m[2]) {
			s.Links -= 5
		}
	}
	if s.Links < 0 {
		s.Links = 0
	}

	s.Total = s.Length + s.Structure + s.Mermaid + s.Dates + s.Links
	return s
}
