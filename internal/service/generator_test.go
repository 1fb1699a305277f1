package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"vibedoc-server/internal/mocks"
	"vibedoc-server/internal/service"
	"vibedoc-server/internal/trace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// planFixture собирает правдоподобный ответ модели с нужными секциями.
func planFixture() string {
	year := time.Now().Year()
	return fmt.Sprintf(`# Development Plan

## Project Overview
A task manager for busy parents with reminders and shared lists.

## Tech Stack
- Go backend
- PostgreSQL

## Architecture

`+"```mermaid"+`
flowchart TD
    A[Client] --> B[API]
    B --> C[Database]
`+"```"+`

## Milestones

`+"```mermaid"+`
gantt
    dateFormat YYYY-MM-DD
    title Schedule
    Design :%d-09-01, 7d
`+"```"+`

## Risk Assessment
- Scope creep

## Resources
- [Go documentation](https://golang.org/doc)

# AI Programming Assistant Prompts

1. **Project skeleton**: Create a Go module with a cmd/server entrypoint.
2. **Database layer**: Implement the tasks table and repository.
`, year)
}

func newGenerator(t *testing.T, aiClient *mocks.MockAIClient, knowledge *mocks.MockKnowledgeRetriever) *service.Generator {
	t.Helper()
	cfg := testConfig()
	optimizer := service.NewOptimizer(aiClient, cfg, zap.NewNop())
	return service.NewGenerator(aiClient, optimizer, knowledge, cfg, zap.NewNop())
}

func TestGeneratePlan_Success(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(planFixture(), service.UsageInfo{PromptTokens: 500, CompletionTokens: 1500, TotalTokens: 2000}, nil).Once()

	knowledge := &mocks.MockKnowledgeRetriever{}
	generator := newGenerator(t, aiClient, knowledge)

	result, err := generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID:       "task-1",
		Idea:         "a task manager for busy parents",
		SkipOptimize: true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Content)
	assert.Equal(t, "deepseek-ai/DeepSeek-V3", result.Model)
	assert.Equal(t, 2000, result.Usage.TotalTokens)
	assert.GreaterOrEqual(t, result.Quality.Total, 50)
	assert.Len(t, result.Prompts, 2)
	assert.Equal(t, "Project skeleton", result.Prompts[0].Title)

	stages := make([]string, 0, len(result.Trace.Steps))
	for _, step := range result.Trace.Steps {
		stages = append(stages, step.Stage)
		assert.True(t, step.Success, "stage %s should succeed", step.Stage)
	}
	assert.Equal(t, []string{
		trace.StageInputValidation,
		trace.StagePromptOptimization,
		trace.StageKnowledgeRetrieval,
		trace.StageAIGeneration,
		trace.StageContentFormatting,
		trace.StageQualityAssessment,
		trace.StageResultValidation,
	}, stages)

	knowledge.AssertNotCalled(t, "Retrieve")
}

func TestGeneratePlan_IdeaTooShort(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	generator := newGenerator(t, aiClient, &mocks.MockKnowledgeRetriever{})

	result, err := generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID: "task-2",
		Idea:   "short",
	})
	assert.ErrorIs(t, err, service.ErrIdeaTooShort)
	require.Len(t, result.Trace.Steps, 1)
	assert.False(t, result.Trace.Steps[0].Success)
	aiClient.AssertNotCalled(t, "GenerateText")
}

func TestGeneratePlan_WithOptimizationAndKnowledge(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	// Первый вызов: оптимизатор
	aiClient.On("GenerateText", mock.Anything, mock.Anything, "a task manager for busy parents", mock.Anything).
		Return(`{"optimized_idea":"A family task manager with shared lists","key_improvements":["audience"],"suggestions":[]}`,
			service.UsageInfo{TotalTokens: 200}, nil).Once()
	// Второй вызов: генерация плана с оптимизированной идеей и справкой в промпте
	aiClient.On("GenerateText", mock.Anything,
		mock.MatchedBy(func(systemPrompt string) bool {
			return strings.Contains(systemPrompt, "retrieved reference snippets")
		}),
		"A family task manager with shared lists", mock.Anything).
		Return(planFixture(), service.UsageInfo{TotalTokens: 1800}, nil).Once()

	knowledge := &mocks.MockKnowledgeRetriever{}
	knowledge.On("Retrieve", mock.Anything, "https://github.com/example/tasks").
		Return("retrieved reference snippets", nil).Once()

	generator := newGenerator(t, aiClient, knowledge)

	result, err := generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID:       "task-3",
		Idea:         "a task manager for busy parents",
		ReferenceURL: "https://github.com/example/tasks",
	})
	require.NoError(t, err)

	require.NotNil(t, result.OptimizedIdea)
	assert.Equal(t, "A family task manager with shared lists", result.OptimizedIdea.OptimizedIdea)
	assert.Equal(t, 2000, result.Usage.TotalTokens)
	aiClient.AssertExpectations(t)
	knowledge.AssertExpectations(t)
}

func TestGeneratePlan_OptimizerFailureIsNotFatal(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", service.UsageInfo{}, service.ErrAIGenerationFailed).Once()
	aiClient.On("GenerateText", mock.Anything, mock.Anything, "a task manager for busy parents", mock.Anything).
		Return(planFixture(), service.UsageInfo{TotalTokens: 1500}, nil).Once()

	generator := newGenerator(t, aiClient, &mocks.MockKnowledgeRetriever{})

	result, err := generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID: "task-4",
		Idea:   "a task manager for busy parents",
	})
	require.NoError(t, err)
	assert.Nil(t, result.OptimizedIdea)
	assert.NotEmpty(t, result.Content)

	// Этап оптимизации записан как неуспешный, но конвейер дошел до конца
	var optStep *trace.Step
	for i := range result.Trace.Steps {
		if result.Trace.Steps[i].Stage == trace.StagePromptOptimization {
			optStep = &result.Trace.Steps[i]
		}
	}
	require.NotNil(t, optStep)
	assert.False(t, optStep.Success)
}

func TestGeneratePlan_MissingSectionsRecordedInTrace(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("# Development Plan\n\n## Project Overview\nA short plan without the rest.",
			service.UsageInfo{TotalTokens: 300}, nil).Once()

	generator := newGenerator(t, aiClient, &mocks.MockKnowledgeRetriever{})

	result, err := generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID:       "task-7",
		Idea:         "a task manager for busy parents",
		SkipOptimize: true,
	})
	require.NoError(t, err)

	var valStep *trace.Step
	for i := range result.Trace.Steps {
		if result.Trace.Steps[i].Stage == trace.StageResultValidation {
			valStep = &result.Trace.Steps[i]
		}
	}
	require.NotNil(t, valStep)
	assert.True(t, valStep.Success)
	assert.Contains(t, valStep.Details["missing_sections"], "risks")
	assert.Contains(t, valStep.Details["missing_sections"], "architecture")
	assert.NotContains(t, valStep.Details["missing_sections"], "overview")
}

func TestGeneratePlan_RetriesThenSucceeds(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", service.UsageInfo{}, service.ErrAIGenerationFailed).Once()
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(planFixture(), service.UsageInfo{TotalTokens: 1200}, nil).Once()

	generator := newGenerator(t, aiClient, &mocks.MockKnowledgeRetriever{})

	result, err := generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID:       "task-5",
		Idea:         "a task manager for busy parents",
		SkipOptimize: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)
	aiClient.AssertExpectations(t)
}

func TestGeneratePlan_AllAttemptsFail(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", service.UsageInfo{}, service.ErrAIGenerationFailed).Times(3)

	generator := newGenerator(t, aiClient, &mocks.MockKnowledgeRetriever{})

	result, err := generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID:       "task-6",
		Idea:         "a task manager for busy parents",
		SkipOptimize: true,
	})
	assert.ErrorIs(t, err, service.ErrAIGenerationFailed)
	assert.Empty(t, result.Content)

	last := result.Trace.Steps[len(result.Trace.Steps)-1]
	assert.Equal(t, trace.StageAIGeneration, last.Stage)
	assert.False(t, last.Success)
}
