// Package editor разбирает Markdown-план на редактируемые секции
// и собирает его обратно после правок пользователя.
package editor

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SectionType - тип секции документа.
type SectionType string

const (
	SectionHeading   SectionType = "heading"
	SectionParagraph SectionType = "paragraph"
	SectionList      SectionType = "list"
	SectionCode      SectionType = "code"
	SectionTable     SectionType = "table"
)

// Revision - одна запись истории правок секции.
type Revision struct {
	Previous  string    `json:"previous"`
	Timestamp time.Time `json:"timestamp"`
}

// Section - непрерывный фрагмент документа.
type Section struct {
	ID        int         `json:"id"`
	Type      SectionType `json:"type"`
	Content   string      `json:"content"`
	Original  string      `json:"original"`
	StartLine int         `json:"startLine"`
	EndLine   int         `json:"endLine"`
	Editable  bool        `json:"editable"`
	History   []Revision  `json:"history,omitempty"`
}

// Document - разобранный план.
type Document struct {
	Sections  []Section `json:"sections"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	headingLineRe = regexp.MustCompile(`^#{1,6}\s`)
	listLineRe    = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s`)
	tableLineRe   = regexp.MustCompile(`^\s*\|`)
	// Заголовок секции промптов запрещено редактировать: по нему
	// извлекаются промпты для ассистента.
	promptsHeadingRe = regexp.MustCompile(`(?i)^#{1,6}\s*AI\s+Programming\s+Assistant\s+Prompts\s*$`)
)

// ErrSectionNotFound возвращается при обращении к несуществующей секции.
type ErrSectionNotFound struct {
	ID int
}

func (e ErrSectionNotFound) Error() string {
	return fmt.Sprintf("section %d not found", e.ID)
}

// ErrSectionNotEditable возвращается при попытке изменить защищенную секцию.
type ErrSectionNotEditable struct {
	ID int
}

func (e ErrSectionNotEditable) Error() string {
	return fmt.Sprintf("section %d is not editable", e.ID)
}

// Parse разбирает Markdown на секции по типам: заголовки, абзацы,
// списки, код и таблицы. Номера строк считаются с единицы.
func Parse(markdown string) *Document {
	lines := strings.Split(markdown, "\n")
	now := time.Now()
	doc := &Document{CreatedAt: now, UpdatedAt: now}

	addSection := func(sectionType SectionType, content string, start, end int) {
		editable := true
		if sectionType == SectionHeading && promptsHeadingRe.MatchString(content) {
			editable = false
		}
		doc.Sections = append(doc.Sections, Section{
			ID:        len(doc.Sections) + 1,
			Type:      sectionType,
			Content:   content,
			Original:  content,
			StartLine: start,
			EndLine:   end,
			Editable:  editable,
		})
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			i++

		case strings.HasPrefix(trimmed, "```"):
			start := i
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				i++
			}
			if i < len(lines) {
				i++ // включаем закрывающий fence
			}
			addSection(SectionCode, strings.Join(lines[start:i], "\n"), start+1, i)

		case headingLineRe.MatchString(line):
			addSection(SectionHeading, line, i+1, i+1)
			i++

		case tableLineRe.MatchString(line):
			start := i
			for i < len(lines) && tableLineRe.MatchString(lines[i]) {
				i++
			}
			addSection(SectionTable, strings.Join(lines[start:i], "\n"), start+1, i)

		case listLineRe.MatchString(line):
			start := i
			for i < len(lines) && (listLineRe.MatchString(lines[i]) || isContinuation(lines[i])) {
				i++
			}
			addSection(SectionList, strings.Join(lines[start:i], "\n"), start+1, i)

		default:
			start := i
			for i < len(lines) {
				t := strings.TrimSpace(lines[i])
				if t == "" || headingLineRe.MatchString(lines[i]) || strings.HasPrefix(t, "```") ||
					tableLineRe.MatchString(lines[i]) || listLineRe.MatchString(lines[i]) {
					break
				}
				i++
			}
			addSection(SectionParagraph, strings.Join(lines[start:i], "\n"), start+1, i)
		}
	}

	return doc
}

// isContinuation - строка с отступом, продолжающая элемент списка.
func isContinuation(line string) bool {
	return strings.TrimSpace(line) != "" && (strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t"))
}

// UpdateSection заменяет содержимое секции и дописывает историю правок.
func UpdateSection(doc *Document, id int, text string) error {
	for i := range doc.Sections {
		if doc.Sections[i].ID != id {
			continue
		}
		if !doc.Sections[i].Editable {
			return ErrSectionNotEditable{ID: id}
		}
		doc.Sections[i].History = append(doc.Sections[i].History, Revision{
			Previous:  doc.Sections[i].Content,
			Timestamp: time.Now(),
		})
		doc.Sections[i].Content = text
		doc.UpdatedAt = time.Now()
		return nil
	}
	return ErrSectionNotFound{ID: id}
}

// Rebuild собирает документ обратно в Markdown. Секции разделяются
// пустой строкой.
func Rebuild(doc *Document) string {
	parts := make([]string, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		parts = append(parts, s.Content)
	}
	return strings.Join(parts, "\n\n")
}

// ResetSection откатывает одну секцию к исходному содержимому,
// сохраняя текущее состояние в истории.
func ResetSection(doc *Document, id int) error {
	for i := range doc.Sections {
		if doc.Sections[i].ID != id {
			continue
		}
		if doc.Sections[i].Content != doc.Sections[i].Original {
			doc.Sections[i].History = append(doc.Sections[i].History, Revision{
				Previous:  doc.Sections[i].Content,
				Timestamp: time.Now(),
			})
			doc.Sections[i].Content = doc.Sections[i].Original
		}
		doc.UpdatedAt = time.Now()
		return nil
	}
	return ErrSectionNotFound{ID: id}
}

// Reset откатывает все секции к исходному содержимому и очищает историю.
func Reset(doc *Document) {
	for i := range doc.Sections {
		doc.Sections[i].Content = doc.Sections[i].Original
		doc.Sections[i].History = nil
	}
	doc.UpdatedAt = time.Now()
}
