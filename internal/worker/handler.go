package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"vibedoc-server/internal/config"
	"vibedoc-server/internal/messaging"
	"vibedoc-server/internal/model"
	"vibedoc-server/internal/repository"
	"vibedoc-server/internal/service"
)

// TaskHandler обрабатывает задачи генерации планов из очереди.
type TaskHandler struct {
	cfg       *config.Config
	generator *service.Generator
	planRepo  repository.PlanRepository
	notifier  messaging.Notifier
}

// NewTaskHandler создает новый экземпляр обработчика задач.
func NewTaskHandler(
	cfg *config.Config,
	generator *service.Generator,
	planRepo repository.PlanRepository,
	notifier messaging.Notifier,
) *TaskHandler {
	return &TaskHandler{
		cfg:       cfg,
		generator: generator,
		planRepo:  planRepo,
		notifier:  notifier,
	}
}

// Handle обрабатывает одну задачу генерации плана.
// Возврат ошибки означает Nack: сообщение уйдет в DLQ.
func (h *TaskHandler) Handle(payload messaging.GenerationTaskPayload) (err error) {
	MetricsIncrementTasksReceived()
	taskStartTime := time.Now()
	log.Printf("[TaskID: %s] Обработка задачи: IdeaLen=%d, ReferenceURL=%q, SkipOptimize=%v",
		payload.TaskID, len(payload.Idea), payload.ReferenceURL, payload.SkipOptimize)

	taskStatus := "success"

	// Объявляем переменные результата заранее: после goto объявлений быть не может
	var result *service.GeneratedPlan
	var processingErr error
	var qualityScore int

	defer func() {
		duration := time.Since(taskStartTime)
		MetricsRecordTaskDuration(duration)
		if err != nil {
			taskStatus = "failed"
		}
		log.Printf("[TaskID: %s] Завершение обработки задачи. Статус: %s. Общее время: %v.", payload.TaskID, taskStatus, duration)
	}()

	// --- Этап 1: Перевод плана в статус processing ---
	if updErr := h.planRepo.UpdateStatus(context.Background(), payload.TaskID, model.PlanStatusProcessing, ""); updErr != nil {
		if errors.Is(updErr, repository.ErrPlanNotFound) {
			// План удален или никогда не существовал: подтверждаем сообщение, ретраи бессмысленны
			log.Printf("[TaskID: %s] План не найден в базе, задача отброшена.", payload.TaskID)
			MetricsIncrementTaskFailed("plan_not_found")
			return nil
		}
		log.Printf("[TaskID: %s] Ошибка перевода плана в processing: %v", payload.TaskID, updErr)
		MetricsIncrementTaskFailed("status_update_error")
		processingErr = fmt.Errorf("failed to mark plan as processing: %w", updErr)
		goto SaveAndNotify
	}

	// --- Этап 2: Конвейер генерации (ретраи AI выполняются внутри) ---
	result, processingErr = h.generator.GeneratePlan(context.Background(), service.GenerateRequest{
		TaskID:       payload.TaskID,
		Idea:         payload.Idea,
		ReferenceURL: payload.ReferenceURL,
		SkipOptimize: payload.SkipOptimize,
	})
	if processingErr != nil {
		log.Printf("[TaskID: %s] Конвейер генерации завершился ошибкой: %v", payload.TaskID, processingErr)
		if errors.Is(processingErr, service.ErrIdeaTooShort) {
			MetricsIncrementTaskFailed("idea_too_short")
		} else {
			MetricsIncrementTaskFailed("generation_error")
		}
	}

SaveAndNotify:
	// --- Этап 3: Сохранение результата и отправка уведомления ---
	completedAt := time.Now()
	processingDuration := completedAt.Sub(taskStartTime)
	if result != nil && processingErr == nil {
		qualityScore = result.Quality.Total
		MetricsRecordQualityScore(qualityScore)
	}

	saveErr := h.saveAndNotifyResult(payload.TaskID, result, processingErr, processingDuration)
	if saveErr != nil {
		log.Printf("[TaskID: %s] Критическая ошибка при сохранении результата или отправке уведомления: %v", payload.TaskID, saveErr)
		MetricsIncrementTaskFailed("save_notify_error")
		if processingErr != nil {
			// Ошибка обработки приоритетнее
			return processingErr
		}
		return fmt.Errorf("ошибка сохранения/уведомления: %w", saveErr)
	}

	if processingErr != nil {
		return processingErr
	}

	MetricsIncrementTasksSucceeded()
	return nil
}

// saveAndNotifyResult пишет итог задачи в базу и публикует уведомление.
// При processingErr план помечается failed, иначе сохраняется полный результат.
func (h *TaskHandler) saveAndNotifyResult(taskID string, result *service.GeneratedPlan, processingErr error, processingDuration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	notification := messaging.NotificationPayload{
		TaskID: taskID,
	}

	if processingErr != nil {
		if err := h.planRepo.UpdateStatus(ctx, taskID, model.PlanStatusFailed, processingErr.Error()); err != nil {
			return fmt.Errorf("failed to mark plan as failed: %w", err)
		}
		notification.Status = messaging.NotificationStatusError
		notification.ErrorDetails = processingErr.Error()
	} else {
		plan := &model.Plan{
			ID:               taskID,
			Content:          result.Content,
			Model:            result.Model,
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			EstimatedCostUSD: result.Usage.EstimatedCostUSD,
			ProcessingTimeMs: processingDuration.Milliseconds(),
		}
		if result.OptimizedIdea != nil {
			plan.OptimizedIdea = result.OptimizedIdea.OptimizedIdea
		}

		// jsonb-поля: промпты, оценка качества и трейс обработки
		var err error
		if plan.Prompts, err = json.Marshal(result.Prompts); err != nil {
			return fmt.Errorf("failed to marshal prompts: %w", err)
		}
		if plan.Quality, err = json.Marshal(result.Quality); err != nil {
			return fmt.Errorf("failed to marshal quality score: %w", err)
		}
		if plan.Trace, err = json.Marshal(result.Trace); err != nil {
			return fmt.Errorf("failed to marshal trace: %w", err)
		}

		if err := h.planRepo.SaveResult(ctx, plan); err != nil {
			return fmt.Errorf("failed to save plan result: %w", err)
		}
		notification.Status = messaging.NotificationStatusSuccess
		notification.QualityScore = result.Quality.Total
	}

	if err := h.notifier.Notify(ctx, notification); err != nil {
		// Результат уже в базе: уведомление не должно ронять задачу
		log.Printf("[TaskID: %s][WARN] Не удалось отправить уведомление: %v", taskID, err)
	}
	return nil
}
