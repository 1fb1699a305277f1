package mocks

import (
	"context"

	"vibedoc-server/internal/messaging"
	"vibedoc-server/internal/service"

	"github.com/stretchr/testify/mock"
)

// Mock TaskPublisher
type MockTaskPublisher struct {
	mock.Mock
}

var _ messaging.TaskPublisher = (*MockTaskPublisher)(nil)

func (m *MockTaskPublisher) PublishGenerationTask(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Mock Notifier
type MockNotifier struct {
	mock.Mock
}

var _ messaging.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, payload messaging.NotificationPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Mock KnowledgeRetriever
type MockKnowledgeRetriever struct {
	mock.Mock
}

var _ service.KnowledgeRetriever = (*MockKnowledgeRetriever)(nil)

func (m *MockKnowledgeRetriever) Retrieve(ctx context.Context, rawURL string) (string, error) {
	args := m.Called(ctx, rawURL)
	return args.String(0), args.Error(1)
}
