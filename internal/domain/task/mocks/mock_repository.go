package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/delegation-hub/delegation-hub/internal/domain/task"
)

// MockRepository is a mock implementation of task.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockRepository) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.Status, errMsg *string) (task.Status, error) {
	args := m.Called(ctx, taskID, status, errMsg)
	return args.Get(0).(task.Status), args.Error(1)
}

func (m *MockRepository) GetSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) (*task.Subtask, error) {
	args := m.Called(ctx, taskID, subtaskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Subtask), args.Error(1)
}

func (m *MockRepository) ListSubtasks(ctx context.Context, taskID uuid.UUID) ([]*task.Subtask, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Subtask), args.Error(1)
}

func (m *MockRepository) UpdateSubtaskStatus(ctx context.Context, taskID, subtaskID uuid.UUID, status task.SubtaskStatus, mut *task.SubtaskMutation) error {
	args := m.Called(ctx, taskID, subtaskID, status, mut)
	return args.Error(0)
}
