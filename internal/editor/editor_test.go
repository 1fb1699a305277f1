package editor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# Overview

A short paragraph
spanning two lines.

- item one
- item two
  continuation

| Col A | Col B |
|-------|-------|
| 1     | 2     |

` + "```mermaid" + `
flowchart TD
    A --> B
` + "```" + `

# AI Programming Assistant Prompts

1. First prompt.
`

func TestParse_SectionTypes(t *testing.T) {
	doc := Parse(sampleDoc)
	require.GreaterOrEqual(t, len(doc.Sections), 6)

	assert.Equal(t, SectionHeading, doc.Sections[0].Type)
	assert.Equal(t, "# Overview", doc.Sections[0].Content)
	assert.Equal(t, 1, doc.Sections[0].StartLine)

	assert.Equal(t, SectionParagraph, doc.Sections[1].Type)
	assert.Contains(t, doc.Sections[1].Content, "spanning two lines.")

	assert.Equal(t, SectionList, doc.Sections[2].Type)
	assert.Contains(t, doc.Sections[2].Content, "continuation")

	assert.Equal(t, SectionTable, doc.Sections[3].Type)
	assert.Equal(t, SectionCode, doc.Sections[4].Type)
	assert.Contains(t, doc.Sections[4].Content, "flowchart TD")
}

func TestParse_PromptsHeadingNotEditable(t *testing.T) {
	doc := Parse(sampleDoc)

	var promptsHeading *Section
	for i := range doc.Sections {
		if doc.Sections[i].Type == SectionHeading && doc.Sections[i].Content == "# AI Programming Assistant Prompts" {
			promptsHeading = &doc.Sections[i]
		}
	}
	require.NotNil(t, promptsHeading)
	assert.False(t, promptsHeading.Editable)

	// Все остальные секции, включая mermaid-код, редактируемы
	for _, s := range doc.Sections {
		if s.ID != promptsHeading.ID {
			assert.True(t, s.Editable, "section %d (%s) should be editable", s.ID, s.Type)
		}
	}
}

func TestUpdateSection(t *testing.T) {
	doc := Parse(sampleDoc)

	err := UpdateSection(doc, 2, "A rewritten paragraph.")
	require.NoError(t, err)
	assert.Equal(t, "A rewritten paragraph.", doc.Sections[1].Content)
	require.Len(t, doc.Sections[1].History, 1)
	assert.Contains(t, doc.Sections[1].History[0].Previous, "spanning two lines.")
}

func TestUpdateSection_Errors(t *testing.T) {
	doc := Parse(sampleDoc)

	err := UpdateSection(doc, 999, "text")
	assert.ErrorAs(t, err, &ErrSectionNotFound{})

	var protectedID int
	for _, s := range doc.Sections {
		if !s.Editable {
			protectedID = s.ID
		}
	}
	require.NotZero(t, protectedID)
	err = UpdateSection(doc, protectedID, "text")
	assert.ErrorAs(t, err, &ErrSectionNotEditable{})
}

func TestRebuild(t *testing.T) {
	doc := Parse(sampleDoc)
	require.NoError(t, UpdateSection(doc, 1, "# New Overview"))

	rebuilt := Rebuild(doc)
	assert.Contains(t, rebuilt, "# New Overview")
	assert.Contains(t, rebuilt, "flowchart TD")
	assert.Contains(t, rebuilt, "# AI Programming Assistant Prompts")

	// Порядок секций сохранен
	assert.Less(t,
		strings.Index(rebuilt, "# New Overview"),
		strings.Index(rebuilt, "flowchart TD"))
}

func TestReset(t *testing.T) {
	doc := Parse(sampleDoc)
	require.NoError(t, UpdateSection(doc, 1, "# Changed"))
	require.NoError(t, UpdateSection(doc, 2, "Changed body."))

	Reset(doc)
	assert.Equal(t, "# Overview", doc.Sections[0].Content)
	assert.Contains(t, doc.Sections[1].Content, "spanning two lines.")
	assert.Empty(t, doc.Sections[0].History)
}
