package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vibedoc-server/internal/export"
	"vibedoc-server/internal/messaging"
	"vibedoc-server/internal/model"
	"vibedoc-server/internal/service"
	"vibedoc-server/internal/trace"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// optimizeIdea синхронно прогоняет идею через оптимизатор.
func (h *PlanHandler) optimizeIdea(c *gin.Context) {
	var req OptimizeIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	optimized, usage, err := h.optimizer.OptimizeIdea(c.Request.Context(), req.Idea)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, OptimizeIdeaResponse{
		OptimizedIdea:   optimized.OptimizedIdea,
		KeyImprovements: optimized.KeyImprovements,
		Suggestions:     optimized.Suggestions,
		TotalTokens:     usage.TotalTokens,
	})
}

// generatePlan ставит задачу генерации в очередь и отвечает 202.
func (h *PlanHandler) generatePlan(c *gin.Context) {
	var req GeneratePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := service.ValidateIdea(req.Idea); err != nil {
		h.handleServiceError(c, err)
		return
	}

	plan := &model.Plan{
		ID:           uuid.NewString(),
		Idea:         req.Idea,
		ReferenceURL: req.ReferenceURL,
		Status:       model.PlanStatusQueued,
	}
	if err := h.planRepo.Create(c.Request.Context(), plan); err != nil {
		h.handleServiceError(c, err)
		return
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:       plan.ID,
		Idea:         req.Idea,
		ReferenceURL: req.ReferenceURL,
		SkipOptimize: req.SkipOptimize,
	}

	// Inline режим: RabbitMQ не сконфигурирован, генерируем в фоне прямо здесь
	if h.publisher == nil {
		go h.processInline(payload)
		c.JSON(http.StatusAccepted, GeneratePlanResponse{
			TaskID: plan.ID,
			Status: string(model.PlanStatusQueued),
		})
		return
	}

	if err := h.publisher.PublishGenerationTask(c.Request.Context(), payload); err != nil {
		h.logger.Error("Failed to publish generation task", zap.String("taskID", plan.ID), zap.Error(err))
		// Задача создана, но не опубликована: помечаем failed, чтобы клиент не ждал вечно
		if updErr := h.planRepo.UpdateStatus(c.Request.Context(), plan.ID, model.PlanStatusFailed, "failed to enqueue task"); updErr != nil {
			h.logger.Error("Failed to mark unpublished plan as failed", zap.String("taskID", plan.ID), zap.Error(updErr))
		}
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "failed to enqueue generation task"})
		return
	}

	c.JSON(http.StatusAccepted, GeneratePlanResponse{
		TaskID: plan.ID,
		Status: string(model.PlanStatusQueued),
	})
}

// processInline выполняет генерацию внутри процесса API: статус processing,
// конвейер, сохранение результата. Уведомления в inline режиме не отправляются,
// клиент опрашивает статус задачи.
func (h *PlanHandler) processInline(payload messaging.GenerationTaskPayload) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.APITimeout+time.Minute)
	defer cancel()

	if err := h.planRepo.UpdateStatus(ctx, payload.TaskID, model.PlanStatusProcessing, ""); err != nil {
		h.logger.Error("Inline: failed to mark plan as processing",
			zap.String("taskID", payload.TaskID), zap.Error(err))
		return
	}

	result, genErr := h.generator.GeneratePlan(ctx, service.GenerateRequest{
		TaskID:       payload.TaskID,
		Idea:         payload.Idea,
		ReferenceURL: payload.ReferenceURL,
		SkipOptimize: payload.SkipOptimize,
	})
	if genErr != nil {
		h.logger.Error("Inline: generation pipeline failed",
			zap.String("taskID", payload.TaskID), zap.Error(genErr))
		if err := h.planRepo.UpdateStatus(ctx, payload.TaskID, model.PlanStatusFailed, genErr.Error()); err != nil {
			h.logger.Error("Inline: failed to mark plan as failed",
				zap.String("taskID", payload.TaskID), zap.Error(err))
		}
		return
	}

	plan := &model.Plan{
		ID:               payload.TaskID,
		Content:          result.Content,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		EstimatedCostUSD: result.Usage.EstimatedCostUSD,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	if result.OptimizedIdea != nil {
		plan.OptimizedIdea = result.OptimizedIdea.OptimizedIdea
	}

	var err error
	if plan.Prompts, err = json.Marshal(result.Prompts); err != nil {
		h.logger.Error("Inline: failed to marshal prompts",
			zap.String("taskID", payload.TaskID), zap.Error(err))
		return
	}
	if plan.Quality, err = json.Marshal(result.Quality); err != nil {
		h.logger.Error("Inline: failed to marshal quality score",
			zap.String("taskID", payload.TaskID), zap.Error(err))
		return
	}
	if plan.Trace, err = json.Marshal(result.Trace); err != nil {
		h.logger.Error("Inline: failed to marshal trace",
			zap.String("taskID", payload.TaskID), zap.Error(err))
		return
	}

	if err := h.planRepo.SaveResult(ctx, plan); err != nil {
		h.logger.Error("Inline: failed to save plan result",
			zap.String("taskID", payload.TaskID), zap.Error(err))
		return
	}

	h.logger.Info("Inline: plan generated",
		zap.String("taskID", payload.TaskID),
		zap.Int("quality", result.Quality.Total),
		zap.Duration("duration", time.Since(start)))
}

// getTaskStatus возвращает статус задачи генерации для опроса клиентом.
func (h *PlanHandler) getTaskStatus(c *gin.Context) {
	plan, err := h.planRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, TaskStatusResponse{
		TaskID:       plan.ID,
		Status:       string(plan.Status),
		QualityScore: qualityTotal(plan),
		Error:        plan.Error,
		CreatedAt:    plan.CreatedAt,
		CompletedAt:  plan.CompletedAt,
	})
}

// listPlans возвращает страницу истории планов.
func (h *PlanHandler) listPlans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	plans, total, err := h.planRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	summaries := make([]PlanSummary, 0, len(plans))
	for _, plan := range plans {
		summaries = append(summaries, PlanSummary{
			ID:           plan.ID,
			Idea:         plan.Idea,
			Status:       string(plan.Status),
			QualityScore: qualityTotal(plan),
			CreatedAt:    plan.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, PlanListResponse{
		Plans:  summaries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// getPlan возвращает план целиком.
func (h *PlanHandler) getPlan(c *gin.Context) {
	plan, err := h.planRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, planToDetail(plan))
}

// getPrompts возвращает извлеченные промпты для кодинг-ассистента.
func (h *PlanHandler) getPrompts(c *gin.Context) {
	plan, err := h.planRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if plan.Status != model.PlanStatusCompleted {
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "plan is not completed yet"})
		return
	}

	var prompts []model.CodingPrompt
	if len(plan.Prompts) > 0 {
		if err := json.Unmarshal(plan.Prompts, &prompts); err != nil {
			h.handleServiceError(c, fmt.Errorf("failed to unmarshal stored prompts: %w", err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"taskId": plan.ID, "prompts": prompts})
}

// getTrace возвращает трейс обработки задачи.
func (h *PlanHandler) getTrace(c *gin.Context) {
	plan, err := h.planRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if len(plan.Trace) == 0 {
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "trace is not available for this plan"})
		return
	}

	// format=markdown отдает человекочитаемый отчет вместо сырого следа
	if c.DefaultQuery("format", "json") == "markdown" {
		var tr trace.Trace
		if err := json.Unmarshal(plan.Trace, &tr); err != nil {
			h.logger.Error("Failed to unmarshal stored trace", zap.String("planID", plan.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "stored trace is corrupted"})
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(tr.Report()))
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", plan.Trace)
}

// exportPlan отдает план файлом в выбранном формате.
func (h *PlanHandler) exportPlan(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", "markdown"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
		return
	}

	plan, err := h.planRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if plan.Status != model.PlanStatusCompleted {
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "plan is not completed yet"})
		return
	}

	generatedAt := plan.UpdatedAt
	if plan.CompletedAt != nil {
		generatedAt = *plan.CompletedAt
	}
	result, err := export.Export(export.PlanExport{
		Idea:         plan.Idea,
		Content:      plan.Content,
		Model:        plan.Model,
		QualityScore: qualityTotal(plan),
		GeneratedAt:  generatedAt,
	}, format)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
