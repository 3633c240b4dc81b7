package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/delegation-hub/delegation-hub/internal/application/decomposer"
	"github.com/delegation-hub/delegation-hub/internal/application/orchestrator"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

// Service handles task submission and status queries.
type Service struct {
	store        task.Repository
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Metrics
	async        bool
	logger       zerolog.Logger
}

// NewService creates a task service. With async set, submissions are
// orchestrated in the background; tests disable it to run inline.
func NewService(store task.Repository, orch *orchestrator.Orchestrator, m *metrics.Metrics, async bool, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		orchestrator: orch,
		metrics:      m,
		async:        async,
		logger:       logger.With().Str("service", "task").Logger(),
	}
}

// Submit validates and decomposes a command, persists the task with its
// subtasks, and hands it to the orchestrator. Validation errors are
// returned synchronously and no task record is created.
func (s *Service) Submit(ctx context.Context, taskID *uuid.UUID, command string, parameters []float64, preferredRobot *string) (*task.Task, error) {
	if command == "" {
		return nil, fmt.Errorf("%w: command is required", decomposer.ErrInvalidParameters)
	}

	id := uuid.New()
	if taskID != nil && *taskID != uuid.Nil {
		id = *taskID
	}

	subtasks, err := decomposer.Decompose(id, command, parameters)
	if err != nil {
		return nil, err
	}
	for _, sub := range subtasks {
		sub.MaxAttempts = s.orchestrator.MaxAttempts()
	}

	t := &task.Task{
		TaskID:         id,
		Command:        command,
		Parameters:     parameters,
		PreferredRobot: preferredRobot,
		Status:         task.StatusPending,
		Subtasks:       subtasks,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.metrics.TasksSubmitted.Inc()
	s.logger.Info().
		Str("task_id", id.String()).
		Str("command", command).
		Int("subtasks", len(subtasks)).
		Msg("task submitted")

	if s.async {
		go func() {
			if err := s.orchestrator.Run(context.Background(), id); err != nil {
				s.logger.Error().Err(err).Str("task_id", id.String()).Msg("orchestration failed")
			}
		}()
		return t, nil
	}

	if err := s.orchestrator.Run(ctx, id); err != nil {
		return nil, err
	}
	// Inline orchestration settled the task; hand back the stored record
	// rather than the pre-run snapshot.
	return s.Get(ctx, id)
}

// Get returns a task with its subtasks.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	t, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, task.ErrTaskNotFound
	}
	return t, nil
}

// List returns tasks, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	return s.store.List(ctx, status, limit, offset)
}

// Cancel requests best-effort cancellation.
func (s *Service) Cancel(ctx context.Context, taskID uuid.UUID) error {
	t, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return task.ErrTaskNotFound
	}
	if t.Status.IsTerminal() {
		return fmt.Errorf("task %s already %s", taskID, t.Status)
	}
	return s.orchestrator.Cancel(ctx, taskID)
}
