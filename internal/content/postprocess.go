// Package content отвечает за постобработку и оценку качества
// сгенерированных планов.
package content

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"vibedoc-server/internal/prompt"
)

// Report - сводка изменений, внесенных постобработкой.
// Используется в трейсе обработки как evidence.
type Report struct {
	MermaidFixes    int `json:"mermaid_fixes"`
	LinksRemoved    int `json:"links_removed"`
	DatesRewritten  int `json:"dates_rewritten"`
	FormattingFixes int `json:"formatting_fixes"`
}

var (
	mermaidFenceRe = regexp.MustCompile("(?i)^```\\s*mermaid\\s*$")
	fenceRe        = regexp.MustCompile("^```")
	nodeLabelRe    = regexp.MustCompile(`\[([^\[\]]*)\]`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	headingRe      = regexp.MustCompile(`^#{1,6}\s`)
	trailingWSRe   = regexp.MustCompile(`[ \t]+$`)
)

// Postprocess применяет цепочку исправлений к сгенерированному Markdown:
// синтаксис Mermaid, вычистка выдуманных ссылок, согласование дат
// с текущим годом и нормализация форматирования.
func Postprocess(markdown string, now time.Time) (string, Report) {
	var report Report

	out := fixMermaid(markdown, &report)
	out = scrubLinks(out, &report)
	out = normalizeDates(out, now, &report)
	out = fixFormatting(out, &report)

	return out, report
}

// fixMermaid нормализует регистр открывающих fence, убирает скобки и кавычки
// из подписей узлов, добавляет dateFormat в gantt-блоки и закрывает
// незакрытые fence.
func fixMermaid(markdown string, report *Report) string {
	lines := strings.Split(markdown, "\n")
	var out []string

	inMermaid := false
	inOtherFence := false
	isGantt := false
	ganttHasDateFormat := false
	ganttHeaderIdx := -1 // индекс строки "gantt" в out

	flushGantt := func() {
		if isGantt && !ganttHasDateFormat && ganttHeaderIdx >= 0 {
			// Вставляем dateFormat сразу после строки gantt
			out = append(out[:ganttHeaderIdx+1], append([]string{"    dateFormat YYYY-MM-DD"}, out[ganttHeaderIdx+1:]...)...)
			report.MermaidFixes++
		}
		isGantt = false
		ganttHasDateFormat = false
		ganttHeaderIdx = -1
	}

	for _, line := range lines {
		switch {
		case !inMermaid && !inOtherFence && mermaidFenceRe.MatchString(strings.TrimSpace(line)):
			if strings.TrimSpace(line) != "```mermaid" {
				report.MermaidFixes++
			}
			out = append(out, "```mermaid")
			inMermaid = true
			continue
		case inMermaid && fenceRe.MatchString(strings.TrimSpace(line)):
			flushGantt()
			out = append(out, "```")
			inMermaid = false
			continue
		case !inMermaid && fenceRe.MatchString(strings.TrimSpace(line)):
			inOtherFence = !inOtherFence
			out = append(out, line)
			continue
		}

		if inMermaid {
			trimmed := strings.TrimSpace(line)
			if trimmed == "gantt" {
				isGantt = true
				ganttHasDateFormat = false
				out = append(out, line)
				ganttHeaderIdx = len(out) - 1
				continue
			}
			if isGantt && strings.HasPrefix(trimmed, "dateFormat") {
				ganttHasDateFormat = true
			}

			// Скобки и кавычки внутри подписей узлов ломают парсер Mermaid
			fixed := nodeLabelRe.ReplaceAllStringFunc(line, func(m string) string {
				inner := m[1 : len(m)-1]
				cleaned := strings.NewReplacer("(", "", ")", "", `"`, "").Replace(inner)
				if cleaned != inner {
					report.MermaidFixes++
				}
				return "[" + cleaned + "]"
			})
			out = append(out, fixed)
			continue
		}

		out = append(out, line)
	}

	if inMermaid {
		// Незакрытый mermaid-блок в конце документа
		flushGantt()
		out = append(out, "```")
		report.MermaidFixes++
	}

	return strings.Join(out, "\n")
}

// scrubLinks разворачивает в простой текст все markdown-ссылки,
// хост которых не входит в белый список доменов.
func scrubLinks(markdown string, report *Report) string {
	return markdownLinkRe.ReplaceAllStringFunc(markdown, func(m string) string {
		groups := markdownLinkRe.FindStringSubmatch(m)
		label, rawURL := groups[1], groups[2]
		if isTrustedURL(rawURL) {
			return m
		}
		report.LinksRemoved++
		return label
	})
}

// isTrustedURL проверяет хост ссылки против белого списка.
// Поддомены доверенных доменов тоже считаются доверенными.
func isTrustedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range prompt.TrustedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// normalizeDates переписывает год всех дат формата YYYY-MM-DD на текущий.
func normalizeDates(markdown string, now time.Time, report *Report) string {
	currentYear := fmt.Sprintf("%04d", now.Year())
	return isoDateRe.ReplaceAllStringFunc(markdown, func(m string) string {
		groups := isoDateRe.FindStringSubmatch(m)
		if groups[1] == currentYear {
			return m
		}
		report.DatesRewritten++
		return currentYear + "-" + groups[2] + "-" + groups[3]
	})
}

// fixFormatting убирает хвостовые пробелы, схлопывает длинные серии пустых
// строк и гарантирует пустую строку перед заголовками.
func fixFormatting(markdown string, report *Report) string {
	lines := strings.Split(markdown, "\n")
	var out []string

	blankRun := 0
	inFence := false
	for _, line := range lines {
		if fenceRe.MatchString(strings.TrimSpace(line)) {
			inFence = !inFence
		}
		if inFence && !fenceRe.MatchString(strings.TrimSpace(line)) {
			out = append(out, line)
			blankRun = 0
			continue
		}

		cleaned := trailingWSRe.ReplaceAllString(line, "")
		if cleaned != line {
			report.FormattingFixes++
		}

		if strings.TrimSpace(cleaned) == "" {
			blankRun++
			if blankRun > 2 {
				report.FormattingFixes++
				continue
			}
			out = append(out, cleaned)
			continue
		}

		if headingRe.MatchString(cleaned) && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
			report.FormattingFixes++
		}

		blankRun = 0
		out = append(out, cleaned)
	}

	return strings.Join(out, "\n")
}
