package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"vibedoc-server/internal/config"
	"vibedoc-server/internal/model"
	"vibedoc-server/internal/prompt"

	"go.uber.org/zap"
)

// MinIdeaLength - минимальная длина идеи в символах (рунах).
const MinIdeaLength = 10

// ErrIdeaTooShort возвращается, когда идея короче MinIdeaLength.
var ErrIdeaTooShort = errors.New("идея слишком короткая, опишите подробнее (минимум 10 символов)")

// Optimizer преобразует сырую идею пользователя в структурированное
// описание продукта перед генерацией плана.
type Optimizer struct {
	aiClient AIClient
	cfg      *config.Config
	logger   *zap.Logger
}

func NewOptimizer(aiClient AIClient, cfg *config.Config, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		aiClient: aiClient,
		cfg:      cfg,
		logger:   logger.Named("Optimizer"),
	}
}

// ValidateIdea проверяет минимальную длину идеи.
func ValidateIdea(idea string) error {
	if len([]rune(strings.TrimSpace(idea))) < MinIdeaLength {
		return ErrIdeaTooShort
	}
	return nil
}

// OptimizeIdea отправляет идею AI-оптимизатору и разбирает JSON-ответ.
// Если модель вернула невалидный JSON, сырой текст ответа используется
// как оптимизированная идея без списков улучшений.
func (o *Optimizer) OptimizeIdea(ctx context.Context, idea string) (*model.OptimizedIdea, UsageInfo, error) {
	if err := ValidateIdea(idea); err != nil {
		return nil, UsageInfo{}, err
	}

	temperature := 0.3 // оптимизатор должен быть детерминированнее генератора
	maxTokens := 1024
	params := GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	raw, usage, err := o.aiClient.GenerateText(ctx, prompt.BuildOptimizerSystemPrompt(), idea, params)
	if err != nil {
		return nil, usage, err
	}

	optimized := parseOptimizerResponse(raw)
	if optimized.OptimizedIdea == "" {
		o.logger.Warn("Оптимизатор вернул пустой результат, используется исходная идея")
		optimized.OptimizedIdea = idea
	}

	o.logger.Info("Идея оптимизирована",
		zap.Int("original_len", len(idea)),
		zap.Int("optimized_len", len(optimized.OptimizedIdea)),
		zap.Int("improvements", len(optimized.KeyImprovements)))

	return optimized, usage, nil
}

// parseOptimizerResponse извлекает JSON-объект между первой '{' и последней '}'.
// Модели часто оборачивают JSON в markdown-ограждения или пояснительный текст.
func parseOptimizerResponse(raw string) *model.OptimizedIdea {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		var parsed model.OptimizedIdea
		if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err == nil {
			return &parsed
		}
	}
	// Фолбэк: ответ целиком считается оптимизированной идеей
	return &model.OptimizedIdea{
		OptimizedIdea: strings.TrimSpace(raw),
	}
}
