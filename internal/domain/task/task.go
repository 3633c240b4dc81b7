package task

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Status represents task status.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusDecomposing Status = "DECOMPOSING"
	StatusAssigning   Status = "ASSIGNING"
	StatusDispatching Status = "DISPATCHING"
	StatusExecuting   Status = "EXECUTING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// SubtaskStatus represents subtask status.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "PENDING"
	SubtaskAssigned   SubtaskStatus = "ASSIGNED"
	SubtaskDispatched SubtaskStatus = "DISPATCHED"
	SubtaskCompleted  SubtaskStatus = "COMPLETED"
	SubtaskFailed     SubtaskStatus = "FAILED"
)

// ScoreSource records which scoring tier produced an assignment.
const (
	ScoreSourcePredicted = "predicted"
	ScoreSourceFallback  = "fallback"
)

var (
	ErrStaleTransition = errors.New("stale status transition")
	ErrTaskNotFound    = errors.New("task not found")
	ErrSubtaskNotFound = errors.New("subtask not found")
)

// Task represents a submitted command and its decomposed subtasks.
// Once the status reaches a terminal value the record is immutable.
type Task struct {
	ID             int64      `json:"id"`
	TaskID         uuid.UUID  `json:"taskId"`
	Command        string     `json:"command"`
	Parameters     []float64  `json:"parameters"`
	PreferredRobot *string    `json:"preferredRobot,omitempty"`
	Status         Status     `json:"status"`
	Error          *string    `json:"error,omitempty"`
	Subtasks       []*Subtask `json:"subtasks,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Subtask is one unit of work within a task, requiring one capability.
// Owned exclusively by its parent task.
type Subtask struct {
	ID                 int64         `json:"id"`
	SubtaskID          uuid.UUID     `json:"subtaskId"`
	TaskID             uuid.UUID     `json:"taskId"`
	Seq                int           `json:"seq"`
	Name               string        `json:"name"`
	RequiredCapability string        `json:"requiredCapability"`
	Priority           int           `json:"priority"`
	Parameters         []float64     `json:"parameters"`
	AssignedRobot      *string       `json:"assignedRobot,omitempty"`
	Score              *float64      `json:"score,omitempty"`
	ScoreSource        *string       `json:"scoreSource,omitempty"`
	Attempts           int           `json:"attempts"`
	MaxAttempts        int           `json:"maxAttempts"`
	Status             SubtaskStatus `json:"status"`
	Error              *string       `json:"error,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	DispatchedAt       *time.Time    `json:"dispatchedAt,omitempty"`
	CompletedAt        *time.Time    `json:"completedAt,omitempty"`
	FailedAt           *time.Time    `json:"failedAt,omitempty"`
}

var taskTransitions = map[Status][]Status{
	StatusPending:     {StatusDecomposing, StatusFailed},
	StatusDecomposing: {StatusAssigning, StatusFailed},
	StatusAssigning:   {StatusDispatching, StatusFailed},
	StatusDispatching: {StatusExecuting, StatusFailed},
	StatusExecuting:   {StatusCompleted, StatusFailed},
	StatusCompleted:   {},
	StatusFailed:      {},
}

// DISPATCHED -> ASSIGNED covers a retried subtask being re-scored onto a
// possibly different robot.
var subtaskTransitions = map[SubtaskStatus][]SubtaskStatus{
	SubtaskPending:    {SubtaskAssigned, SubtaskFailed},
	SubtaskAssigned:   {SubtaskDispatched, SubtaskFailed},
	SubtaskDispatched: {SubtaskCompleted, SubtaskFailed, SubtaskAssigned},
	SubtaskCompleted:  {},
	SubtaskFailed:     {},
}

// IsTerminal reports whether a task status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsTerminal reports whether a subtask status is final.
func (s SubtaskStatus) IsTerminal() bool {
	return s == SubtaskCompleted || s == SubtaskFailed
}

// CanTransitionTo validates a task status transition.
func (t *Task) CanTransitionTo(target Status) bool {
	for _, s := range taskTransitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// CanTransitionTo validates a subtask status transition.
func (s *Subtask) CanTransitionTo(target SubtaskStatus) bool {
	for _, st := range subtaskTransitions[s.Status] {
		if st == target {
			return true
		}
	}
	return false
}

// DeriveStatus computes the aggregate task status from subtask statuses:
// COMPLETED iff every subtask completed, FAILED iff any subtask failed,
// EXECUTING otherwise.
func DeriveStatus(subtasks []*Subtask) Status {
	if len(subtasks) == 0 {
		return StatusExecuting
	}
	completed := 0
	for _, s := range subtasks {
		switch s.Status {
		case SubtaskFailed:
			return StatusFailed
		case SubtaskCompleted:
			completed++
		}
	}
	if completed == len(subtasks) {
		return StatusCompleted
	}
	return StatusExecuting
}

// SubtaskID derives the deterministic subtask identifier for a task and
// sequence index. Stable across retries of the same decomposition.
func SubtaskID(taskID uuid.UUID, seq int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(taskID.String()+":"+strconv.Itoa(seq)))
}
