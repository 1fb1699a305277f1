package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"vibedoc-server/internal/config"
	"vibedoc-server/internal/editor"
	"vibedoc-server/internal/knowledge"
	"vibedoc-server/internal/messaging"
	"vibedoc-server/internal/model"
	"vibedoc-server/internal/repository"
	"vibedoc-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MCPStatusProvider отдает состояние внешних MCP сервисов.
type MCPStatusProvider interface {
	Status(ctx context.Context) []knowledge.ServiceStatus
}

// PlanHandler обрабатывает HTTP запросы сервиса планов.
type PlanHandler struct {
	cfg         *config.Config
	optimizer   *service.Optimizer
	generator   *service.Generator
	planRepo    repository.PlanRepository
	sessionRepo repository.SessionRepository
	publisher   messaging.TaskPublisher
	mcpStatus   MCPStatusProvider
	db          *pgxpool.Pool
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewPlanHandler создает новый PlanHandler. Если publisher равен nil, сервис
// работает в inline режиме: генерация выполняется в фоне самого API процесса.
func NewPlanHandler(
	cfg *config.Config,
	optimizer *service.Optimizer,
	generator *service.Generator,
	planRepo repository.PlanRepository,
	sessionRepo repository.SessionRepository,
	publisher messaging.TaskPublisher,
	mcpStatus MCPStatusProvider,
	db *pgxpool.Pool,
	redisClient *redis.Client,
	logger *zap.Logger,
) *PlanHandler {
	return &PlanHandler{
		cfg:         cfg,
		optimizer:   optimizer,
		generator:   generator,
		planRepo:    planRepo,
		sessionRepo: sessionRepo,
		publisher:   publisher,
		mcpStatus:   mcpStatus,
		db:          db,
		redisClient: redisClient,
		logger:      logger.Named("PlanHandler"),
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *PlanHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.POST("/ideas/optimize", h.optimizeIdea)

		plans := api.Group("/plans")
		{
			plans.POST("/generate", h.generatePlan)
			plans.GET("", h.listPlans)
			plans.GET("/tasks/:id", h.getTaskStatus)
			plans.GET("/:id", h.getPlan)
			plans.GET("/:id/prompts", h.getPrompts)
			plans.GET("/:id/trace", h.getTrace)
			plans.GET("/:id/export", h.exportPlan)
		}

		sessions := api.Group("/editor/sessions")
		{
			sessions.POST("", h.createSession)
			sessions.GET("/:id", h.getSession)
			sessions.PUT("/:id/sections/:sectionId", h.updateSection)
			sessions.POST("/:id/sections/:sectionId/reset", h.resetSection)
			sessions.POST("/:id/reset", h.resetSession)
			sessions.GET("/:id/document", h.getDocument)
			sessions.DELETE("/:id", h.deleteSession)
		}

		api.GET("/mcp/status", h.getMCPStatus)
		api.GET("/examples", h.listExamples)
	}
}

// health проверяет доступность PostgreSQL и Redis.
func (h *PlanHandler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "ok"}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Health check: database unreachable", zap.Error(err))
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.logger.Error("Health check: redis unreachable", zap.Error(err))
		checks["redis"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ok", false: "degraded"}[status == http.StatusOK],
		"checks": checks,
	})
}

// handleServiceError транслирует ошибки сервисов в HTTP статусы.
func (h *PlanHandler) handleServiceError(c *gin.Context, err error) {
	var notFound editor.ErrSectionNotFound
	var notEditable editor.ErrSectionNotEditable

	switch {
	case errors.Is(err, service.ErrIdeaTooShort):
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrPlanNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, model.ErrorResponse{Error: "plan not found"})
	case errors.Is(err, repository.ErrSessionNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, model.ErrorResponse{Error: "edit session not found or expired"})
	case errors.As(err, &notFound):
		c.AbortWithStatusJSON(http.StatusNotFound, model.ErrorResponse{Error: err.Error()})
	case errors.As(err, &notEditable):
		c.AbortWithStatusJSON(http.StatusConflict, model.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAIGenerationFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, model.ErrorResponse{Error: "AI provider request failed"})
	default:
		h.logger.Error("Unhandled internal error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: "internal server error"})
	}
}
