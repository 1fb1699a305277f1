// Package export превращает сохраненный план в файлы для скачивания:
// markdown, html, docx, pdf и zip-архив со всем сразу.
package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fumiama/go-docx"
	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
)

// Format - поддерживаемый формат экспорта.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDocx     Format = "docx"
	FormatPDF      Format = "pdf"
	FormatZip      Format = "zip"
)

// ParseFormat валидирует строку формата из запроса.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	case FormatDocx:
		return FormatDocx, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatZip:
		return FormatZip, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// PlanExport - данные плана, необходимые для экспорта.
type PlanExport struct {
	Idea         string
	Content      string
	Model        string
	QualityScore int
	GeneratedAt  time.Time
}

// Result - готовый файл экспорта.
type Result struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Export выполняет экспорт плана в указанный формат.
func Export(plan PlanExport, format Format) (*Result, error) {
	base := fmt.Sprintf("%s-%s", Slug(plan.Idea), plan.GeneratedAt.Format("20060102-150405"))

	switch format {
	case FormatMarkdown:
		return &Result{
			Data:        renderMarkdown(plan),
			Filename:    base + ".md",
			ContentType: "text/markdown; charset=utf-8",
		}, nil
	case FormatHTML:
		data, err := renderHTML(plan)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".html", ContentType: "text/html; charset=utf-8"}, nil
	case FormatDocx:
		data, err := renderDocx(plan)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:        data,
			Filename:    base + ".docx",
			ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	case FormatPDF:
		data, err := renderPDF(plan)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".pdf", ContentType: "application/pdf"}, nil
	case FormatZip:
		data, err := renderZip(plan, base)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".zip", ContentType: "application/zip"}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

var slugCleanRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug строит имя файла из идеи: латиница и цифры через дефис,
// не длиннее 40 символов. Для идей без латиницы возвращается "plan".
func Slug(idea string) string {
	slug := slugCleanRe.ReplaceAllString(strings.ToLower(idea), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	if slug == "" {
		slug = "plan"
	}
	return slug
}

// renderMarkdown добавляет YAML front-matter к содержимому плана.
func renderMarkdown(plan PlanExport) []byte {
	var b bytes.Buffer
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", plan.Idea)
	fmt.Fprintf(&b, "generated: %s\n", plan.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "model: %s\n", plan.Model)
	fmt.Fprintf(&b, "quality_score: %d\n", plan.QualityScore)
	b.WriteString("---\n\n")
	b.WriteString(plan.Content)
	if !strings.HasSuffix(plan.Content, "\n") {
		b.WriteByte('\n')
	}
	return b.Bytes()
}

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { max-width: 860px; margin: 2rem auto; padding: 0 1rem; font-family: -apple-system, "Segoe UI", sans-serif; line-height: 1.6; color: #1f2328; }
pre { background: #f6f8fa; padding: 1rem; border-radius: 6px; overflow-x: auto; }
code { font-family: "SFMono-Regular", Consolas, monospace; font-size: 0.92em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #d1d9e0; padding: 0.4rem 0.8rem; }
h1, h2 { border-bottom: 1px solid #d1d9e0; padding-bottom: 0.3rem; }
.meta { color: #59636e; font-size: 0.9em; }
</style>
<script type="module">
import mermaid from "https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.esm.min.mjs";
mermaid.initialize({ startOnLoad: false });
await mermaid.run({ querySelector: "pre code.language-mermaid" });
</script>
</head>
<body>
<p class="meta">Generated %s · model %s · quality %d/100</p>
%s
</body>
</html>
`

// renderHTML конвертирует Markdown через goldmark и оборачивает
// в самодостаточную страницу с mermaid-скриптом с CDN.
func renderHTML(plan PlanExport) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(plan.Content), &body); err != nil {
		return nil, fmt.Errorf("markdown to html conversion failed: %w", err)
	}
	page := fmt.Sprintf(htmlShell,
		htmlEscape(plan.Idea),
		plan.GeneratedAt.Format("2006-01-02 15:04"),
		htmlEscape(plan.Model),
		plan.QualityScore,
		body.String(),
	)
	return []byte(page), nil
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// renderDocx строит Word-документ: центрированный заголовок,
// секции и абзацы. Кодовые блоки вставляются как простой текст.
func renderDocx(plan PlanExport) ([]byte, error) {
	doc := docx.New().WithDefaultTheme()

	title := doc.AddParagraph()
	title.Justification("center")
	title.AddText(plan.Idea).Size("32").Bold()

	meta := doc.AddParagraph()
	meta.Justification("center")
	meta.AddText(fmt.Sprintf("Generated %s · %s · quality %d/100",
		plan.GeneratedAt.Format("2006-01-02"), plan.Model, plan.QualityScore)).Size("18")

	doc.AddParagraph() // отступ после шапки

	inFence := false
	for _, line := range strings.Split(plan.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}

		p := doc.AddParagraph()
		switch {
		case inFence:
			p.AddText(line).Size("18")
		case strings.HasPrefix(trimmed, "# "):
			p.AddText(strings.TrimPrefix(trimmed, "# ")).Size("28").Bold()
		case strings.HasPrefix(trimmed, "## "):
			p.AddText(strings.TrimPrefix(trimmed, "## ")).Size("24").Bold()
		case strings.HasPrefix(trimmed, "### "):
			p.AddText(strings.TrimPrefix(trimmed, "### ")).Size("22").Bold()
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			p.AddText("• " + trimmed[2:]).Size("20")
		default:
			p.AddText(stripInlineMarkdown(line)).Size("20")
		}
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("docx rendering failed: %w", err)
	}
	return buf.Bytes(), nil
}

// renderPDF строит PDF: A4, заголовок, тело мультиселлами, номера страниц.
func renderPDF(plan PlanExport) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, plan.Idea, "", "C", false)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s - %s - quality %d/100",
		plan.GeneratedAt.Format("2006-01-02"), plan.Model, plan.QualityScore), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	inFence := false
	for _, line := range strings.Split(plan.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		switch {
		case inFence:
			pdf.SetFont("Courier", "", 9)
			pdf.MultiCell(0, 4.5, line, "", "L", false)
		case strings.HasPrefix(trimmed, "# "):
			pdf.Ln(3)
			pdf.SetFont("Helvetica", "B", 14)
			pdf.MultiCell(0, 7, strings.TrimPrefix(trimmed, "# "), "", "L", false)
		case strings.HasPrefix(trimmed, "## "):
			pdf.Ln(2)
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 6, strings.TrimPrefix(trimmed, "## "), "", "L", false)
		case strings.HasPrefix(trimmed, "### "):
			pdf.SetFont("Helvetica", "B", 11)
			pdf.MultiCell(0, 5.5, strings.TrimPrefix(trimmed, "### "), "", "L", false)
		default:
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, stripInlineMarkdown(line), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf rendering failed: %w", err)
	}
	return buf.Bytes(), nil
}

// renderZip упаковывает все форматы плюс README в один архив.
func renderZip(plan PlanExport, base string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := []struct {
		name   string
		render func() ([]byte, error)
	}{
		{base + ".md", func() ([]byte, error) { return renderMarkdown(plan), nil }},
		{base + ".html", func() ([]byte, error) { return renderHTML(plan) }},
		{base + ".docx", func() ([]byte, error) { return renderDocx(plan) }},
		{base + ".pdf", func() ([]byte, error) { return renderPDF(plan) }},
		{"README.txt", func() ([]byte, error) { return renderManifest(plan, base), nil }},
	}

	for _, f := range files {
		data, err := f.render()
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", f.name, err)
		}
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", f.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", f.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip archive: %w", err)
	}
	return buf.Bytes(), nil
}

func renderManifest(plan PlanExport, base string) []byte {
	var b bytes.Buffer
	b.WriteString("Development plan export\n")
	b.WriteString("=======================\n\n")
	fmt.Fprintf(&b, "Idea:      %s\n", plan.Idea)
	fmt.Fprintf(&b, "Generated: %s\n", plan.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Model:     %s\n", plan.Model)
	fmt.Fprintf(&b, "Quality:   %d/100\n\n", plan.QualityScore)
	b.WriteString("Files:\n")
	for _, ext := range []string{".md", ".html", ".docx", ".pdf"} {
		fmt.Fprintf(&b, "  %s%s\n", base, ext)
	}
	return b.Bytes()
}

var inlineMarkdownRe = regexp.MustCompile(`(\*\*|__|\*|_|` + "`" + `)`)

// stripInlineMarkdown убирает маркеры форматирования из строки
// для plain-text рендеров (docx, pdf).
func stripInlineMarkdown(s string) string {
	return inlineMarkdownRe.ReplaceAllString(s, "")
}
