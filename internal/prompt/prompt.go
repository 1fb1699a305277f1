// Package prompt собирает системные промпты для генерации планов разработки.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// PromptsSectionTitle - обязательный заголовок финальной секции плана.
const PromptsSectionTitle = "AI Programming Assistant Prompts"

// TrustedDomains - домены, на которые плану разрешено ссылаться.
// Ссылки на другие домены вычищаются постобработкой.
var TrustedDomains = []string{
	"github.com",
	"golang.org",
	"developer.mozilla.org",
	"docs.python.org",
	"reactjs.org",
	"vuejs.org",
	"nodejs.org",
	"kubernetes.io",
	"docker.com",
	"postgresql.org",
	"redis.io",
	"deepwiki.org",
}

// NextMonday возвращает ближайший будущий понедельник относительно now.
// Если сегодня понедельник, берется понедельник следующей недели.
func NextMonday(now time.Time) time.Time {
	daysAhead := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	return now.AddDate(0, 0, daysAhead)
}

// DateContext возвращает блок с датами для системного промпта.
// Старт проекта назначается на ближайший понедельник, все даты
// расписания должны использовать текущий год.
func DateContext(now time.Time) string {
	start := NextMonday(now)
	return fmt.Sprintf(`## Date Context
- Today is %s.
- The project starts on %s (the next Monday).
- Every schedule date must use the year %d and the format YYYY-MM-DD.`,
		now.Format("2006-01-02"), start.Format("2006-01-02"), now.Year())
}

// BuildPlanSystemPrompt собирает системный промпт генерации плана.
// knowledge - опциональный справочный материал, полученный через MCP.
func BuildPlanSystemPrompt(now time.Time, knowledge string) string {
	var b strings.Builder

	b.WriteString(`You are a senior technical planning assistant. Given a product idea, produce a complete, actionable development plan in Markdown.

`)
	b.WriteString(DateContext(now))
	b.WriteString(`

## Required Structure
1. Project overview and goals.
2. Recommended tech stack with short justifications.
3. System architecture with at least one Mermaid diagram using "flowchart TD".
4. Development milestones with a Mermaid "gantt" chart.
5. Risks and mitigations.
6. A final section titled exactly "# ` + PromptsSectionTitle + `" containing numbered, copy-pastable prompts a developer can feed to an AI coding assistant, one prompt per implementation step.

## Mermaid Rules
- Declare "dateFormat YYYY-MM-DD" inside every gantt block.
- Node labels must not contain parentheses or double quotes.
- Every fenced mermaid block must be closed.

## Link Rules
- Never invent URLs. If you are not certain a page exists, do not link it.
- Links are allowed only to these domains: ` + strings.Join(TrustedDomains, ", ") + `.
`)

	if knowledge != "" {
		b.WriteString("\n## Reference Material\nUse the following externally retrieved material where relevant:\n\n")
		b.WriteString(knowledge)
		b.WriteString("\n")
	}

	return b.String()
}

// BuildOptimizerSystemPrompt собирает системный промпт оптимизатора идеи.
// Ответ ожидается строго в JSON.
func BuildOptimizerSystemPrompt() string {
	return `You are a product idea refinement assistant. The user gives you a one-line product idea. Rewrite it into a clear, specific and buildable product description.

Respond with JSON only, no surrounding prose:
{
  "optimized_idea": "the refined idea, 2-4 sentences",
  "key_improvements": ["what you clarified or added"],
  "suggestions": ["optional directions the user may consider"]
}`
}
