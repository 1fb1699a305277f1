package worker

import (
	"fmt"
	"testing"
	"time"

	"vibedoc-server/internal/config"
	"vibedoc-server/internal/messaging"
	"vibedoc-server/internal/mocks"
	"vibedoc-server/internal/model"
	"vibedoc-server/internal/repository"
	"vibedoc-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		AIClientType:     "openai",
		AIModel:          "deepseek-ai/DeepSeek-V3",
		AIMaxTokens:      4096,
		AITemperature:    0.7,
		AIMaxAttempts:    2,
		AIBaseRetryDelay: time.Millisecond,
	}
}

// planResponse - минимальный правдоподобный ответ модели.
func planResponse() string {
	return fmt.Sprintf(`# Development Plan

## Project Overview
A recipe sharing application.

## Tech Stack
- Go

## Architecture
Simple three tier architecture.

## Milestones
Week one through four, %d.

## Risks
- None identified yet.

# AI Programming Assistant Prompts

1. **Bootstrap**: Create the project skeleton.
`, time.Now().Year())
}

func newTestHandler(t *testing.T, aiClient *mocks.MockAIClient, planRepo *mocks.MockPlanRepository, notifier *mocks.MockNotifier) *TaskHandler {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()
	optimizer := service.NewOptimizer(aiClient, cfg, logger)
	generator := service.NewGenerator(aiClient, optimizer, &mocks.MockKnowledgeRetriever{}, cfg, logger)
	return NewTaskHandler(cfg, generator, planRepo, notifier)
}

func TestHandle_Success(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(planResponse(), service.UsageInfo{PromptTokens: 300, CompletionTokens: 900, TotalTokens: 1200, EstimatedCostUSD: 0.001}, nil)

	planRepo := &mocks.MockPlanRepository{}
	planRepo.On("UpdateStatus", mock.Anything, "task-1", model.PlanStatusProcessing, "").Return(nil).Once()

	var savedPlan *model.Plan
	planRepo.On("SaveResult", mock.Anything, mock.AnythingOfType("*model.Plan")).
		Run(func(args mock.Arguments) {
			savedPlan = args.Get(1).(*model.Plan)
		}).Return(nil).Once()

	notifier := &mocks.MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(p messaging.NotificationPayload) bool {
		return p.TaskID == "task-1" && p.Status == messaging.NotificationStatusSuccess
	})).Return(nil).Once()

	handler := newTestHandler(t, aiClient, planRepo, notifier)

	err := handler.Handle(messaging.GenerationTaskPayload{
		TaskID:       "task-1",
		Idea:         "a recipe sharing application",
		SkipOptimize: true,
	})
	require.NoError(t, err)

	require.NotNil(t, savedPlan)
	assert.Equal(t, "task-1", savedPlan.ID)
	assert.NotEmpty(t, savedPlan.Content)
	assert.Equal(t, 1200, savedPlan.PromptTokens+savedPlan.CompletionTokens)
	assert.NotEmpty(t, savedPlan.Prompts)
	assert.NotEmpty(t, savedPlan.Quality)
	assert.NotEmpty(t, savedPlan.Trace)

	planRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestHandle_PlanNotFound(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")

	planRepo := &mocks.MockPlanRepository{}
	planRepo.On("UpdateStatus", mock.Anything, "task-2", model.PlanStatusProcessing, "").
		Return(repository.ErrPlanNotFound).Once()

	notifier := &mocks.MockNotifier{}
	handler := newTestHandler(t, aiClient, planRepo, notifier)

	// Отсутствующий план подтверждается без ретраев
	err := handler.Handle(messaging.GenerationTaskPayload{TaskID: "task-2", Idea: "a recipe sharing application"})
	assert.NoError(t, err)

	aiClient.AssertNotCalled(t, "GenerateText")
	notifier.AssertNotCalled(t, "Notify")
}

func TestHandle_GenerationFailure(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", service.UsageInfo{}, service.ErrAIGenerationFailed)

	planRepo := &mocks.MockPlanRepository{}
	planRepo.On("UpdateStatus", mock.Anything, "task-3", model.PlanStatusProcessing, "").Return(nil).Once()
	planRepo.On("UpdateStatus", mock.Anything, "task-3", model.PlanStatusFailed, mock.AnythingOfType("string")).Return(nil).Once()

	notifier := &mocks.MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(p messaging.NotificationPayload) bool {
		return p.Status == messaging.NotificationStatusError && p.ErrorDetails != ""
	})).Return(nil).Once()

	handler := newTestHandler(t, aiClient, planRepo, notifier)

	err := handler.Handle(messaging.GenerationTaskPayload{
		TaskID:       "task-3",
		Idea:         "a recipe sharing application",
		SkipOptimize: true,
	})
	assert.ErrorIs(t, err, service.ErrAIGenerationFailed)

	planRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestHandle_SaveFailure(t *testing.T) {
	aiClient := mocks.NewMockAIClient(t)
	aiClient.On("Model").Return("deepseek-ai/DeepSeek-V3")
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(planResponse(), service.UsageInfo{TotalTokens: 800}, nil)

	planRepo := &mocks.MockPlanRepository{}
	planRepo.On("UpdateStatus", mock.Anything, "task-4", model.PlanStatusProcessing, "").Return(nil).Once()
	planRepo.On("SaveResult", mock.Anything, mock.Anything).Return(fmt.Errorf("connection lost")).Once()

	notifier := &mocks.MockNotifier{}
	handler := newTestHandler(t, aiClient, planRepo, notifier)

	err := handler.Handle(messaging.GenerationTaskPayload{
		TaskID:       "task-4",
		Idea:         "a recipe sharing application",
		SkipOptimize: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")

	notifier.AssertNotCalled(t, "Notify")
}
