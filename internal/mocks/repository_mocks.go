package mocks

import (
	"context"

	"vibedoc-server/internal/model"
	"vibedoc-server/internal/repository"

	"github.com/stretchr/testify/mock"
)

// Mock PlanRepository
type MockPlanRepository struct {
	mock.Mock
}

var _ repository.PlanRepository = (*MockPlanRepository)(nil)

func (m *MockPlanRepository) Create(ctx context.Context, plan *model.Plan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPlanRepository) UpdateStatus(ctx context.Context, id string, status model.PlanStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockPlanRepository) SaveResult(ctx context.Context, plan *model.Plan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPlanRepository) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	args := m.Called(ctx, id)
	plan, _ := args.Get(0).(*model.Plan)
	return plan, args.Error(1)
}

func (m *MockPlanRepository) List(ctx context.Context, limit, offset int) ([]*model.Plan, int, error) {
	args := m.Called(ctx, limit, offset)
	plans, _ := args.Get(0).([]*model.Plan)
	return plans, args.Int(1), args.Error(2)
}

// Mock SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

var _ repository.SessionRepository = (*MockSessionRepository)(nil)

func (m *MockSessionRepository) Save(ctx context.Context, session *repository.EditSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*repository.EditSession, error) {
	args := m.Called(ctx, id)
	session, _ := args.Get(0).(*repository.EditSession)
	return session, args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
