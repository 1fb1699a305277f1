package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"vibedoc-server/internal/config"
	"vibedoc-server/internal/content"
	"vibedoc-server/internal/model"
	"vibedoc-server/internal/prompt"
	"vibedoc-server/internal/trace"

	"go.uber.org/zap"
)

// KnowledgeRetriever получает справочный материал по URL через MCP.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, rawURL string) (string, error)
}

// GenerateRequest - входные данные конвейера генерации плана.
type GenerateRequest struct {
	TaskID       string
	Idea         string
	ReferenceURL string
	SkipOptimize bool
}

// GeneratedPlan - результат полного прохода конвейера.
type GeneratedPlan struct {
	Content       string
	OptimizedIdea *model.OptimizedIdea
	Prompts       []model.CodingPrompt
	Quality       model.QualityScore
	Trace         trace.Trace
	Usage         UsageInfo
	Model         string
}

// Generator выполняет конвейер: валидация идеи, оптимизация промпта,
// получение знаний, генерация плана, постобработка и оценка качества.
type Generator struct {
	aiClient  AIClient
	optimizer *Optimizer
	knowledge KnowledgeRetriever
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewGenerator(aiClient AIClient, optimizer *Optimizer, knowledge KnowledgeRetriever, cfg *config.Config, logger *zap.Logger) *Generator {
	return &Generator{
		aiClient:  aiClient,
		optimizer: optimizer,
		knowledge: knowledge,
		cfg:       cfg,
		logger:    logger.Named("Generator"),
		now:       time.Now,
	}
}

// GeneratePlan прогоняет идею через весь конвейер. Ошибки оптимизации и
// получения знаний не фатальны: конвейер продолжает работу без этих данных.
func (g *Generator) GeneratePlan(ctx context.Context, req GenerateRequest) (*GeneratedPlan, error) {
	rec := trace.NewRecorder(req.TaskID)
	now := g.now()
	result := &GeneratedPlan{Model: g.aiClient.Model()}

	// Этап 1: валидация входа
	rec.Begin(trace.StageInputValidation)
	err := ValidateIdea(req.Idea)
	rec.Detail("idea_length", fmt.Sprintf("%d", len([]rune(req.Idea))))
	rec.End(err)
	if err != nil {
		result.Trace = rec.Finish()
		return result, err
	}

	// Этап 2: оптимизация промпта (не фатально)
	ideaForPlan := req.Idea
	rec.Begin(trace.StagePromptOptimization)
	if req.SkipOptimize {
		rec.Detail("skipped", "true")
		rec.End(nil)
	} else {
		optimized, usage, optErr := g.optimizer.OptimizeIdea(ctx, req.Idea)
		result.Usage = addUsage(result.Usage, usage)
		if optErr != nil {
			g.logger.Warn("Оптимизация идеи не удалась, используется исходная формулировка", zap.Error(optErr))
			rec.End(optErr)
		} else {
			result.OptimizedIdea = optimized
			ideaForPlan = optimized.OptimizedIdea
			rec.Detail("improvements", fmt.Sprintf("%d", len(optimized.KeyImprovements)))
			rec.Evidence(optimized.OptimizedIdea)
			rec.End(nil)
		}
	}

	// Этап 3: получение знаний через MCP (не фатально)
	knowledgeText := ""
	rec.Begin(trace.StageKnowledgeRetrieval)
	if req.ReferenceURL == "" || g.knowledge == nil {
		rec.Detail("skipped", "no reference URL")
		rec.End(nil)
	} else {
		rec.Detail("url", req.ReferenceURL)
		text, kerr := g.knowledge.Retrieve(ctx, req.ReferenceURL)
		if kerr != nil {
			g.logger.Warn("Получение справочного материала не удалось",
				zap.String("url", req.ReferenceURL), zap.Error(kerr))
			rec.End(kerr)
		} else {
			knowledgeText = text
			rec.Detail("content_length", fmt.Sprintf("%d", len(text)))
			rec.End(nil)
		}
	}

	// Этап 4: генерация плана с повторами
	rec.Begin(trace.StageAIGeneration)
	systemPrompt := prompt.BuildPlanSystemPrompt(now, knowledgeText)
	raw, usage, genErr := g.generateWithRetries(ctx, systemPrompt, ideaForPlan)
	result.Usage = addUsage(result.Usage, usage)
	rec.Detail("model", result.Model)
	rec.Detail("total_tokens", fmt.Sprintf("%d", result.Usage.TotalTokens))
	rec.End(genErr)
	if genErr != nil {
		result.Trace = rec.Finish()
		return result, genErr
	}

	// Этап 5: постобработка контента
	rec.Begin(trace.StageContentFormatting)
	formatted, report := content.Postprocess(raw, now)
	if evidence, merr := json.Marshal(report); merr == nil {
		rec.Evidence(string(evidence))
	}
	rec.End(nil)
	result.Content = formatted

	// Этап 6: оценка качества
	rec.Begin(trace.StageQualityAssessment)
	result.Quality = content.Score(formatted, now)
	rec.Detail("total_score", fmt.Sprintf("%d", result.Quality.Total))
	rec.End(nil)

	// Этап 7: валидация результата
	rec.Begin(trace.StageResultValidation)
	prompts, found := content.ExtractPrompts(formatted)
	result.Prompts = prompts
	rec.Detail("prompts_found", fmt.Sprintf("%d", len(prompts)))
	if !found {
		g.logger.Warn("Секция с промптами для кодинг-ассистента отсутствует в сгенерированном плане")
		rec.Detail("prompts_section", "missing")
	}
	// Отсутствие ключевых секций не фатально, но фиксируется в трейсе
	if missing := content.MissingSections(formatted); len(missing) > 0 {
		g.logger.Warn("В плане отсутствуют ключевые секции", zap.Strings("sections", missing))
		rec.Detail("missing_sections", strings.Join(missing, ", "))
	}
	valErr := validateResult(formatted)
	rec.End(valErr)
	result.Trace = rec.Finish()
	if valErr != nil {
		return result, valErr
	}

	g.logger.Info("План сгенерирован",
		zap.String("task_id", req.TaskID),
		zap.Int("content_length", len(formatted)),
		zap.Int("quality_score", result.Quality.Total),
		zap.Int("total_tokens", result.Usage.TotalTokens))

	return result, nil
}

// generateWithRetries повторяет запрос к AI с экспоненциальной задержкой
// и джиттером ±10%, как минимум одна попытка выполняется всегда.
func (g *Generator) generateWithRetries(ctx context.Context, systemPrompt, userInput string) (string, UsageInfo, error) {
	var totalUsage UsageInfo
	var lastErr error

	attempts := g.cfg.AIMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	params := GenerationParams{
		Temperature: &g.cfg.AITemperature,
		MaxTokens:   &g.cfg.AIMaxTokens,
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		text, usage, err := g.aiClient.GenerateText(ctx, systemPrompt, userInput, params)
		totalUsage = addUsage(totalUsage, usage)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, totalUsage, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: получен пустой ответ", ErrAIGenerationFailed)
		}
		lastErr = err
		g.logger.Warn("Попытка генерации не удалась",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", totalUsage, ctx.Err()
		case <-time.After(retryDelay(g.cfg.AIBaseRetryDelay, attempt)):
		}
	}

	return "", totalUsage, lastErr
}

// retryDelay считает задержку перед следующей попыткой: base * 2^(attempt-1)
// с джиттером ±10%.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base << uint(attempt-1)
	jitter := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(delay) * jitter)
}

func validateResult(markdown string) error {
	if strings.TrimSpace(markdown) == "" {
		return fmt.Errorf("%w: итоговый план пуст", ErrAIGenerationFailed)
	}
	return nil
}

func addUsage(a, b UsageInfo) UsageInfo {
	return UsageInfo{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
		EstimatedCostUSD: a.EstimatedCostUSD + b.EstimatedCostUSD,
		Estimated:        a.Estimated || b.Estimated,
	}
}
