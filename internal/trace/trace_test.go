package trace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CollectsSteps(t *testing.T) {
	r := NewRecorder("task-1")

	r.Begin(StageInputValidation)
	r.Detail("idea_length", "42")
	r.End(nil)

	r.Begin(StageAIGeneration)
	r.End(errors.New("timeout"))

	tr := r.Finish()
	require.Len(t, tr.Steps, 2)

	assert.Equal(t, StageInputValidation, tr.Steps[0].Stage)
	assert.True(t, tr.Steps[0].Success)
	assert.Equal(t, "42", tr.Steps[0].Details["idea_length"])

	assert.Equal(t, StageAIGeneration, tr.Steps[1].Stage)
	assert.False(t, tr.Steps[1].Success)
	assert.Equal(t, "timeout", tr.Steps[1].Error)
	assert.False(t, tr.FinishedAt.IsZero())
}

func TestRecorder_BeginClosesPreviousStep(t *testing.T) {
	r := NewRecorder("task-2")
	r.Begin(StageInputValidation)
	r.Begin(StagePromptOptimization)
	tr := r.Finish()

	require.Len(t, tr.Steps, 2)
	assert.True(t, tr.Steps[0].Success)
	assert.Equal(t, StagePromptOptimization, tr.Steps[1].Stage)
}

func TestRecorder_EvidenceTruncated(t *testing.T) {
	r := NewRecorder("task-3")
	r.Begin(StageContentFormatting)
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	r.Evidence(string(long))
	r.End(nil)
	tr := r.Finish()

	assert.LessOrEqual(t, len(tr.Steps[0].Evidence), 2003)
}

func TestTrace_Report(t *testing.T) {
	r := NewRecorder("task-4")
	r.Begin(StageInputValidation)
	r.End(nil)
	r.Begin(StageAIGeneration)
	r.Detail("model", "deepseek-ai/DeepSeek-V3")
	r.End(errors.New("rate limited"))
	tr := r.Finish()

	report := tr.Report()
	assert.Contains(t, report, "# Processing Report")
	assert.Contains(t, report, "task-4")
	assert.Contains(t, report, StageInputValidation)
	assert.Contains(t, report, "failed: rate limited")
	assert.Contains(t, report, "deepseek-ai/DeepSeek-V3")
}
