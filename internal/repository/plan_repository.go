package repository

import (
	"context"
	"errors"

	"vibedoc-server/internal/model"
)

// ErrPlanNotFound возвращается, когда план с указанным ID не существует.
var ErrPlanNotFound = errors.New("plan not found")

// PlanRepository - хранилище планов разработки.
type PlanRepository interface {
	// Create сохраняет новую задачу генерации в статусе queued.
	Create(ctx context.Context, plan *model.Plan) error
	// UpdateStatus переводит план в новый статус. errMsg пишется только для failed.
	UpdateStatus(ctx context.Context, id string, status model.PlanStatus, errMsg string) error
	// SaveResult записывает результат успешной генерации и помечает план completed.
	SaveResult(ctx context.Context, plan *model.Plan) error
	// GetByID возвращает план по ID или ErrPlanNotFound.
	GetByID(ctx context.Context, id string) (*model.Plan, error)
	// List возвращает страницу планов (новые первыми) и общее количество.
	List(ctx context.Context, limit, offset int) ([]*model.Plan, int, error)
}
