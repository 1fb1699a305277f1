package handler

import (
	"encoding/json"
	"time"

	"vibedoc-server/internal/model"
)

// OptimizeIdeaRequest - запрос синхронной оптимизации идеи.
type OptimizeIdeaRequest struct {
	Idea string `json:"idea" binding:"required"`
}

// OptimizeIdeaResponse - результат оптимизации.
type OptimizeIdeaResponse struct {
	OptimizedIdea   string   `json:"optimizedIdea"`
	KeyImprovements []string `json:"keyImprovements"`
	Suggestions     []string `json:"suggestions"`
	TotalTokens     int      `json:"totalTokens"`
}

// GeneratePlanRequest - запрос постановки задачи генерации плана.
type GeneratePlanRequest struct {
	Idea         string `json:"idea" binding:"required"`
	ReferenceURL string `json:"referenceUrl,omitempty"`
	SkipOptimize bool   `json:"skipOptimize,omitempty"`
}

// GeneratePlanResponse возвращается с кодом 202 после постановки в очередь.
type GeneratePlanResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// TaskStatusResponse - статус задачи генерации.
type TaskStatusResponse struct {
	TaskID       string     `json:"taskId"`
	Status       string     `json:"status"`
	QualityScore int        `json:"qualityScore,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// PlanSummary - сокращенная версия плана для списков.
type PlanSummary struct {
	ID           string    `json:"id"`
	Idea         string    `json:"idea"`
	Status       string    `json:"status"`
	QualityScore int       `json:"qualityScore,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PlanListResponse - страница списка планов.
type PlanListResponse struct {
	Plans  []PlanSummary `json:"plans"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// PlanDetailResponse - полная информация о плане.
type PlanDetailResponse struct {
	ID               string          `json:"id"`
	Idea             string          `json:"idea"`
	OptimizedIdea    string          `json:"optimizedIdea,omitempty"`
	ReferenceURL     string          `json:"referenceUrl,omitempty"`
	Status           string          `json:"status"`
	Content          string          `json:"content,omitempty"`
	Quality          json.RawMessage `json:"quality,omitempty"`
	Model            string          `json:"model,omitempty"`
	PromptTokens     int             `json:"promptTokens"`
	CompletionTokens int             `json:"completionTokens"`
	EstimatedCostUSD float64         `json:"estimatedCostUsd"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

// CreateSessionRequest - запрос создания сессии редактирования.
// Указывается либо planId готового плана, либо сырой markdown в content.
type CreateSessionRequest struct {
	PlanID  string `json:"planId"`
	Content string `json:"content"`
}

// UpdateSectionRequest - новое содержимое секции.
type UpdateSectionRequest struct {
	Content string `json:"content" binding:"required"`
}

// DocumentResponse - собранный из секций документ.
type DocumentResponse struct {
	SessionID string `json:"sessionId"`
	PlanID    string `json:"planId"`
	Content   string `json:"content"`
}

// planToDetail конвертирует модель плана в ответ API.
func planToDetail(plan *model.Plan) PlanDetailResponse {
	return PlanDetailResponse{
		ID:               plan.ID,
		Idea:             plan.Idea,
		OptimizedIdea:    plan.OptimizedIdea,
		ReferenceURL:     plan.ReferenceURL,
		Status:           string(plan.Status),
		Content:          plan.Content,
		Quality:          json.RawMessage(plan.Quality),
		Model:            plan.Model,
		PromptTokens:     plan.PromptTokens,
		CompletionTokens: plan.CompletionTokens,
		EstimatedCostUSD: plan.EstimatedCostUSD,
		ProcessingTimeMs: plan.ProcessingTimeMs,
		Error:            plan.Error,
		CreatedAt:        plan.CreatedAt,
		CompletedAt:      plan.CompletedAt,
	}
}

// qualityTotal достает итоговый балл из jsonb-поля плана.
func qualityTotal(plan *model.Plan) int {
	if len(plan.Quality) == 0 {
		return 0
	}
	var q model.QualityScore
	if err := json.Unmarshal(plan.Quality, &q); err != nil {
		return 0
	}
	return q.Total
}
