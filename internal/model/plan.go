package model

import (
	"time"
)

// PlanStatus описывает состояние задачи генерации плана.
type PlanStatus string

const (
	PlanStatusQueued     PlanStatus = "queued"
	PlanStatusProcessing PlanStatus = "processing"
	PlanStatusCompleted  PlanStatus = "completed"
	PlanStatusFailed     PlanStatus = "failed"
)

// IsValidPlanStatus проверяет, является ли строка допустимым статусом плана.
func IsValidPlanStatus(s PlanStatus) bool {
	switch s {
	case PlanStatusQueued, PlanStatusProcessing, PlanStatusCompleted, PlanStatusFailed:
		return true
	default:
		return false
	}
}

// OptimizedIdea - результат работы оптимизатора идеи.
type OptimizedIdea struct {
	OptimizedIdea   string   `json:"optimized_idea"`
	KeyImprovements []string `json:"key_improvements"`
	Suggestions     []string `json:"suggestions"`
}

// CodingPrompt - один промпт для AI-ассистента программирования,
// извлеченный из финальной секции плана.
type CodingPrompt struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// QualityScore - оценка качества сгенерированного плана (0..100)
// с разбивкой по компонентам.
type QualityScore struct {
	Total     int `json:"total"`
	Length    int `json:"length"`    // до 20
	Structure int `json:"structure"` // до 30
	Mermaid   int `json:"mermaid"`   // до 20
	Dates     int `json:"dates"`     // до 15
	Links     int `json:"links"`     // до 15
}

// Plan - план разработки, сохраненный в базе.
type Plan struct {
	ID               string        `json:"id" db:"id"`
	Idea             string        `json:"idea" db:"idea"`
	OptimizedIdea    string        `json:"optimizedIdea,omitempty" db:"optimized_idea"`
	ReferenceURL     string        `json:"referenceUrl,omitempty" db:"reference_url"`
	Status           PlanStatus    `json:"status" db:"status"`
	Content          string        `json:"content,omitempty" db:"content"`
	Prompts          []byte        `json:"-" db:"prompts"` // jsonb: []CodingPrompt
	Quality          []byte        `json:"-" db:"quality"` // jsonb: QualityScore
	Trace            []byte        `json:"-" db:"trace"`   // jsonb: trace.Trace
	Model            string        `json:"model,omitempty" db:"model"`
	PromptTokens     int           `json:"promptTokens" db:"prompt_tokens"`
	CompletionTokens int           `json:"completionTokens" db:"completion_tokens"`
	EstimatedCostUSD float64       `json:"estimatedCostUsd" db:"estimated_cost_usd"`
	ProcessingTimeMs int64         `json:"processingTimeMs" db:"processing_time_ms"`
	Error            string        `json:"error,omitempty" db:"error"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time     `json:"updatedAt" db:"updated_at"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty" db:"completed_at"`
}

// ExampleConfiguration - готовый пример идеи для demo-каталога.
type ExampleConfiguration struct {
	Name         string `json:"name"`
	Idea         string `json:"idea"`
	ReferenceURL string `json:"referenceUrl,omitempty"`
}
