package repository

import (
	"context"
	"errors"
	"fmt"

	"vibedoc-server/internal/model"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check
var _ PlanRepository = (*pgPlanRepository)(nil)

const planFields = `id, idea, optimized_idea, reference_url, status, content,
	prompts, quality, trace, model, prompt_tokens, completion_tokens,
	estimated_cost_usd, processing_time_ms, error, created_at, updated_at, completed_at`

type pgPlanRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPgPlanRepository(db *pgxpool.Pool, logger *zap.Logger) PlanRepository {
	return &pgPlanRepository{
		db:     db,
		logger: logger.Named("PgPlanRepo"),
	}
}

func (r *pgPlanRepository) Create(ctx context.Context, plan *model.Plan) error {
	query := `
        INSERT INTO plans (id, idea, reference_url, status)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at, updated_at
    `
	logFields := []zap.Field{zap.String("planID", plan.ID)}
	r.logger.Debug("Creating plan", logFields...)

	err := r.db.QueryRow(ctx, query, plan.ID, plan.Idea, plan.ReferenceURL, plan.Status).
		Scan(&plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create plan", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create plan: %w", err)
	}
	r.logger.Info("Plan created", logFields...)
	return nil
}

func (r *pgPlanRepository) UpdateStatus(ctx context.Context, id string, status model.PlanStatus, errMsg string) error {
	query := `UPDATE plans SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	logFields := []zap.Field{zap.String("planID", id), zap.String("status", string(status))}

	tag, err := r.db.Exec(ctx, query, status, errMsg, id)
	if err != nil {
		r.logger.Error("Failed to update plan status", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	r.logger.Debug("Plan status updated", logFields...)
	return nil
}

func (r *pgPlanRepository) SaveResult(ctx context.Context, plan *model.Plan) error {
	query := `
        UPDATE plans SET
            status = $1,
            optimized_idea = $2,
            content = $3,
            prompts = $4,
            quality = $5,
            trace = $6,
            model = $7,
            prompt_tokens = $8,
            completion_tokens = $9,
            estimated_cost_usd = $10,
            processing_time_ms = $11,
            error = '',
            updated_at = NOW(),
            completed_at = NOW()
        WHERE id = $12
    `
	logFields := []zap.Field{zap.String("planID", plan.ID)}
	r.logger.Debug("Saving plan result", logFields...)

	tag, err := r.db.Exec(ctx, query,
		model.PlanStatusCompleted,
		plan.OptimizedIdea,
		plan.Content,
		plan.Prompts,
		plan.Quality,
		plan.Trace,
		plan.Model,
		plan.PromptTokens,
		plan.CompletionTokens,
		plan.EstimatedCostUSD,
		plan.ProcessingTimeMs,
		plan.ID,
	)
	if err != nil {
		r.logger.Error("Failed to save plan result", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to save plan result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	r.logger.Info("Plan result saved", logFields...)
	return nil
}

func (r *pgPlanRepository) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE id = $1`, planFields)

	var plan model.Plan
	err := pgxscan.Get(ctx, r.db, &plan, query, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		r.logger.Error("Failed to get plan by ID", zap.String("planID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get plan by ID: %w", err)
	}
	return &plan, nil
}

func (r *pgPlanRepository) List(ctx context.Context, limit, offset int) ([]*model.Plan, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM plans`).Scan(&total); err != nil {
		r.logger.Error("Failed to count plans", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count plans: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM plans ORDER BY created_at DESC LIMIT $1 OFFSET $2`, planFields)

	var plans []*model.Plan
	if err := pgxscan.Select(ctx, r.db, &plans, query, limit, offset); err != nil {
		r.logger.Error("Failed to list plans", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, total, nil
}
