package task

import (
	"context"

	"github.com/google/uuid"
)

// SubtaskMutation carries the fields updated alongside a subtask status
// change. Assignment data rides with the ASSIGNED transition so a reader
// never observes an assigned subtask without its robot.
type SubtaskMutation struct {
	AssignedRobot *string
	Score         *float64
	ScoreSource   *string
	Attempts      *int
	Error         *string
}

// Repository is the durable task store. Writes are atomic per record.
// Status updates enforce the state machines and return ErrStaleTransition
// on an illegal move; a terminal-to-terminal task update is a no-op that
// returns the stored terminal status.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, taskID uuid.UUID) (*Task, error)
	List(ctx context.Context, status *Status, limit, offset int) ([]*Task, error)
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status Status, errMsg *string) (Status, error)

	GetSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) (*Subtask, error)
	ListSubtasks(ctx context.Context, taskID uuid.UUID) ([]*Subtask, error)
	UpdateSubtaskStatus(ctx context.Context, taskID, subtaskID uuid.UUID, status SubtaskStatus, mut *SubtaskMutation) error
}
