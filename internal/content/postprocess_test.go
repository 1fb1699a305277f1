package content

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func TestPostprocess_MermaidFenceCasing(t *testing.T) {
	in := "```Mermaid\nflowchart TD\n    A[Start] --> B[End]\n```"
	out, report := Postprocess(in, testNow)
	assert.Contains(t, out, "```mermaid")
	assert.NotContains(t, out, "```Mermaid")
	assert.GreaterOrEqual(t, report.MermaidFixes, 1)
}

func TestPostprocess_MermaidNodeLabels(t *testing.T) {
	in := "```mermaid\nflowchart TD\n    A[API (REST)] --> B[\"Database\"]\n```"
	out, report := Postprocess(in, testNow)
	assert.Contains(t, out, "A[API REST]")
	assert.Contains(t, out, "B[Database]")
	assert.NotContains(t, out, `"Database"`)
	assert.GreaterOrEqual(t, report.MermaidFixes, 2)
}

func TestPostprocess_GanttDateFormat(t *testing.T) {
	in := "```mermaid\ngantt\n    title Schedule\n    Task A :2026-08-31, 5d\n```"
	out, _ := Postprocess(in, testNow)
	assert.Contains(t, out, "dateFormat YYYY-MM-DD")
	// dateFormat должен оказаться внутри блока, сразу после gantt
	ganttIdx := strings.Index(out, "gantt")
	dfIdx := strings.Index(out, "dateFormat")
	closeIdx := strings.LastIndex(out, "```")
	require.True(t, ganttIdx < dfIdx && dfIdx < closeIdx)
}

func TestPostprocess_GanttKeepsExistingDateFormat(t *testing.T) {
	in := "```mermaid\ngantt\n    dateFormat YYYY-MM-DD\n    Task A :2026-08-31, 5d\n```"
	out, _ := Postprocess(in, testNow)
	assert.Equal(t, 1, strings.Count(out, "dateFormat"))
}

func TestPostprocess_ClosesUnbalancedFence(t *testing.T) {
	in := "# Plan\n\n```mermaid\nflowchart TD\n    A[Start] --> B[End]"
	out, report := Postprocess(in, testNow)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "```"))
	assert.GreaterOrEqual(t, report.MermaidFixes, 1)
}

func TestPostprocess_ScrubsUntrustedLinks(t *testing.T) {
	in := "See [the docs](https://definitely-fake-site.example/docs) and [pgx](https://github.com/jackc/pgx)."
	out, report := Postprocess(in, testNow)
	assert.Contains(t, out, "See the docs and")
	assert.Contains(t, out, "[pgx](https://github.com/jackc/pgx)")
	assert.Equal(t, 1, report.LinksRemoved)
}

func TestPostprocess_TrustsSubdomains(t *testing.T) {
	in := "[pkg](https://pkg.golang.org/something)"
	out, report := Postprocess(in, testNow)
	assert.Equal(t, in, out)
	assert.Zero(t, report.LinksRemoved)
}

func TestPostprocess_RewritesStaleYears(t *testing.T) {
	in := "Kickoff on 2024-09-01, release on 2026-12-15."
	out, report := Postprocess(in, testNow)
	assert.Contains(t, out, "2026-09-01")
	assert.Contains(t, out, "2026-12-15")
	assert.NotContains(t, out, "2024")
	assert.Equal(t, 1, report.DatesRewritten)
}

func TestPostprocess_Formatting(t *testing.T) {
	in := "# Title\nparagraph   \n\n\n\n\ntext\n## Next"
	out, _ := Postprocess(in, testNow)
	assert.NotContains(t, out, "paragraph   ")
	assert.NotContains(t, out, "\n\n\n\n")
	assert.Contains(t, out, "text\n\n## Next")
}
