package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/delegation-hub/delegation-hub/internal/domain/task"
)

// TaskRepository is an in-memory task.Repository with the same transition
// guarantees as the Postgres implementation: per-record atomic writes and
// compare-and-set status updates.
type TaskRepository struct {
	mu    sync.RWMutex
	seq   int64
	tasks map[uuid.UUID]*task.Task
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: make(map[uuid.UUID]*task.Task)}
}

func (r *TaskRepository) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.TaskID]; exists {
		return fmt.Errorf("task already exists: %s", t.TaskID)
	}
	r.seq++
	t.ID = r.seq
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	for _, s := range t.Subtasks {
		r.seq++
		s.ID = r.seq
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
	}
	r.tasks[t.TaskID] = copyTask(t)
	return nil
}

func (r *TaskRepository) GetByID(_ context.Context, taskID uuid.UUID) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return copyTask(t), nil
}

func (r *TaskRepository) List(_ context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if status != nil && t.Status != *status {
			continue
		}
		all = append(all, copyTask(t))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *TaskRepository) UpdateTaskStatus(_ context.Context, taskID uuid.UUID, status task.Status, errMsg *string) (task.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return "", task.ErrTaskNotFound
	}
	// Duplicate completion signals are tolerated: a terminal record is
	// returned as-is instead of rejected.
	if t.Status.IsTerminal() {
		return t.Status, nil
	}
	if !t.CanTransitionTo(status) {
		return t.Status, fmt.Errorf("%w: task %s %s -> %s", task.ErrStaleTransition, taskID, t.Status, status)
	}
	t.Status = status
	if errMsg != nil {
		t.Error = errMsg
	}
	if status.IsTerminal() {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	return t.Status, nil
}

func (r *TaskRepository) GetSubtask(_ context.Context, taskID, subtaskID uuid.UUID) (*task.Subtask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, err := r.findSubtask(taskID, subtaskID)
	if err != nil {
		return nil, err
	}
	return copySubtask(s), nil
}

func (r *TaskRepository) ListSubtasks(_ context.Context, taskID uuid.UUID) ([]*task.Subtask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, task.ErrTaskNotFound
	}
	out := make([]*task.Subtask, 0, len(t.Subtasks))
	for _, s := range t.Subtasks {
		out = append(out, copySubtask(s))
	}
	return out, nil
}

func (r *TaskRepository) UpdateSubtaskStatus(_ context.Context, taskID, subtaskID uuid.UUID, status task.SubtaskStatus, mut *task.SubtaskMutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.findSubtask(taskID, subtaskID)
	if err != nil {
		return err
	}
	if !s.CanTransitionTo(status) {
		return fmt.Errorf("%w: subtask %s %s -> %s", task.ErrStaleTransition, subtaskID, s.Status, status)
	}
	if status == task.SubtaskAssigned && (mut == nil || mut.AssignedRobot == nil) {
		return fmt.Errorf("ASSIGNED requires an assigned robot for subtask %s", subtaskID)
	}
	s.Status = status
	now := time.Now().UTC()
	switch status {
	case task.SubtaskDispatched:
		s.DispatchedAt = &now
	case task.SubtaskCompleted:
		s.CompletedAt = &now
	case task.SubtaskFailed:
		s.FailedAt = &now
	}
	if mut != nil {
		if mut.AssignedRobot != nil {
			s.AssignedRobot = mut.AssignedRobot
		}
		if mut.Score != nil {
			s.Score = mut.Score
		}
		if mut.ScoreSource != nil {
			s.ScoreSource = mut.ScoreSource
		}
		if mut.Attempts != nil {
			s.Attempts = *mut.Attempts
		}
		if mut.Error != nil {
			s.Error = mut.Error
		}
	}
	return nil
}

func (r *TaskRepository) findSubtask(taskID, subtaskID uuid.UUID) (*task.Subtask, error) {
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, task.ErrTaskNotFound
	}
	for _, s := range t.Subtasks {
		if s.SubtaskID == subtaskID {
			return s, nil
		}
	}
	return nil, task.ErrSubtaskNotFound
}

func copyTask(t *task.Task) *task.Task {
	cp := *t
	cp.Parameters = append([]float64(nil), t.Parameters...)
	cp.Subtasks = make([]*task.Subtask, 0, len(t.Subtasks))
	for _, s := range t.Subtasks {
		cp.Subtasks = append(cp.Subtasks, copySubtask(s))
	}
	return &cp
}

func copySubtask(s *task.Subtask) *task.Subtask {
	cp := *s
	cp.Parameters = append([]float64(nil), s.Parameters...)
	return &cp
}
