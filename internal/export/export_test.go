package export

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() PlanExport {
	return PlanExport{
		Idea:         "Habit tracker with social features",
		Content:      "# Overview\n\nA habit tracker.\n\n```mermaid\nflowchart TD\n    A --> B\n```\n",
		Model:        "deepseek-ai/DeepSeek-V3",
		QualityScore: 87,
		GeneratedAt:  time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC),
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "habit-tracker-with-social-features", Slug("Habit tracker, with social features!"))
	assert.Equal(t, "plan", Slug("平台"))
	assert.LessOrEqual(t, len(Slug(strings.Repeat("very long idea ", 20))), 40)
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"markdown", "md", "HTML", "docx", "pdf", "ZIP"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("rtf")
	assert.Error(t, err)
}

func TestExport_Markdown(t *testing.T) {
	res, err := Export(testPlan(), FormatMarkdown)
	require.NoError(t, err)

	out := string(res.Data)
	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, `title: "Habit tracker with social features"`)
	assert.Contains(t, out, "quality_score: 87")
	assert.Contains(t, out, "# Overview")
	assert.Equal(t, "habit-tracker-with-social-features-20260826-103000.md", res.Filename)
	assert.Contains(t, res.ContentType, "text/markdown")
}

func TestExport_HTML(t *testing.T) {
	res, err := Export(testPlan(), FormatHTML)
	require.NoError(t, err)

	out := string(res.Data)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "mermaid")
	assert.Contains(t, out, "cdn.jsdelivr.net")
	assert.Contains(t, out, "quality 87/100")
}

func TestExport_Zip(t *testing.T) {
	res, err := Export(testPlan(), FormatZip)
	require.NoError(t, err)
	assert.Contains(t, res.Filename, ".zip")

	zr, err := zip.NewReader(bytes.NewReader(res.Data), int64(len(res.Data)))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["README.txt"])
	for _, ext := range []string{".md", ".html", ".docx", ".pdf"} {
		found := false
		for name := range names {
			if strings.HasSuffix(name, ext) {
				found = true
			}
		}
		assert.True(t, found, "archive must contain a %s file", ext)
	}
}

func TestExport_DocxAndPDFNotEmpty(t *testing.T) {
	for _, format := range []Format{FormatDocx, FormatPDF} {
		res, err := Export(testPlan(), format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, res.Data, format)
	}
}

func TestStripInlineMarkdown(t *testing.T) {
	assert.Equal(t, "bold and code", stripInlineMarkdown("**bold** and `code`"))
}
