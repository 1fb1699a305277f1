package prompt

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextMonday(t *testing.T) {
	// 2026-08-26 is a Wednesday
	wednesday := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC), NextMonday(wednesday))

	// Sunday rolls to the very next day
	sunday := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Monday, NextMonday(sunday).Weekday())
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), NextMonday(sunday))

	// Monday goes a full week ahead, never "today"
	monday := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), NextMonday(monday))
}

func TestDateContext(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	ctx := DateContext(now)
	assert.Contains(t, ctx, "Today is 2026-08-26")
	assert.Contains(t, ctx, "starts on 2026-08-31")
	assert.Contains(t, ctx, "the year 2026")
}

func TestBuildPlanSystemPrompt(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	t.Run("without knowledge", func(t *testing.T) {
		p := BuildPlanSystemPrompt(now, "")
		assert.Contains(t, p, PromptsSectionTitle)
		assert.Contains(t, p, "flowchart TD")
		assert.Contains(t, p, "dateFormat YYYY-MM-DD")
		assert.NotContains(t, p, "Reference Material")
		for _, domain := range TrustedDomains {
			assert.Contains(t, p, domain)
		}
	})

	t.Run("with knowledge", func(t *testing.T) {
		p := BuildPlanSystemPrompt(now, "Some retrieved wiki content.")
		assert.Contains(t, p, "Reference Material")
		assert.Contains(t, p, "Some retrieved wiki content.")
	})
}

func TestBuildOptimizerSystemPrompt(t *testing.T) {
	p := BuildOptimizerSystemPrompt()
	for _, key := range []string{"optimized_idea", "key_improvements", "suggestions"} {
		assert.True(t, strings.Contains(p, fmt.Sprintf("%q", key)), "prompt must mention %s", key)
	}
}
