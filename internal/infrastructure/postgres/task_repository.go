package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/delegation-hub/delegation-hub/internal/domain/task"
)

// TaskRepository implements task.Repository on Postgres. Status updates
// re-read the current row inside a transaction so concurrent writers get
// compare-and-set semantics.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `id, task_id, command, parameters, preferred_robot, status, error, created_at, completed_at`

const subtaskColumns = `id, subtask_id, task_id, seq, name, required_capability, priority, parameters,
	assigned_robot, score, score_source, attempts, max_attempts, status, error,
	created_at, dispatched_at, completed_at, failed_at`

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO tasks (task_id, command, parameters, preferred_robot, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, t.TaskID, t.Command, t.Parameters, t.PreferredRobot, t.Status, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return err
	}

	for _, s := range t.Subtasks {
		if s.CreatedAt.IsZero() {
			s.CreatedAt = t.CreatedAt
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO subtasks (subtask_id, task_id, seq, name, required_capability, priority, parameters, attempts, max_attempts, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING id
		`, s.SubtaskID, s.TaskID, s.Seq, s.Name, s.RequiredCapability, s.Priority, s.Parameters, s.Attempts, s.MaxAttempts, s.Status, s.CreatedAt).Scan(&s.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id=$1`, taskID)
	t, err := scanTask(row)
	if err != nil || t == nil {
		return t, err
	}
	subtasks, err := r.ListSubtasks(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t.Subtasks = subtasks
	return t, nil
}

func (r *TaskRepository) List(ctx context.Context, status *task.Status, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []interface{}{}
	if status != nil {
		query += " WHERE status=$1"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		subtasks, err := r.ListSubtasks(ctx, t.TaskID)
		if err != nil {
			return nil, err
		}
		t.Subtasks = subtasks
	}
	return tasks, nil
}

func (r *TaskRepository) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.Status, errMsg *string) (task.Status, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var current task.Status
	err = tx.QueryRow(ctx, `SELECT status FROM tasks WHERE task_id=$1 FOR UPDATE`, taskID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", task.ErrTaskNotFound
	}
	if err != nil {
		return "", err
	}

	// Duplicate completion signals are tolerated: a terminal record is
	// returned as-is instead of rejected.
	if current.IsTerminal() {
		return current, tx.Commit(ctx)
	}
	probe := task.Task{Status: current}
	if !probe.CanTransitionTo(status) {
		return current, fmt.Errorf("%w: task %s %s -> %s", task.ErrStaleTransition, taskID, current, status)
	}

	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}
	_, err = tx.Exec(ctx, `
		UPDATE tasks SET status=$1, error=COALESCE($2, error), completed_at=COALESCE($3, completed_at)
		WHERE task_id=$4
	`, status, errMsg, completedAt, taskID)
	if err != nil {
		return "", err
	}
	return status, tx.Commit(ctx)
}

func (r *TaskRepository) GetSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) (*task.Subtask, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subtaskColumns+` FROM subtasks WHERE task_id=$1 AND subtask_id=$2
	`, taskID, subtaskID)
	s, err := scanSubtask(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		if exists, err := r.taskExists(ctx, taskID); err != nil {
			return nil, err
		} else if !exists {
			return nil, task.ErrTaskNotFound
		}
		return nil, task.ErrSubtaskNotFound
	}
	return s, nil
}

func (r *TaskRepository) ListSubtasks(ctx context.Context, taskID uuid.UUID) ([]*task.Subtask, error) {
	if exists, err := r.taskExists(ctx, taskID); err != nil {
		return nil, err
	} else if !exists {
		return nil, task.ErrTaskNotFound
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+subtaskColumns+` FROM subtasks WHERE task_id=$1 ORDER BY seq ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subtasks []*task.Subtask
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}

func (r *TaskRepository) UpdateSubtaskStatus(ctx context.Context, taskID, subtaskID uuid.UUID, status task.SubtaskStatus, mut *task.SubtaskMutation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current task.SubtaskStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM subtasks WHERE task_id=$1 AND subtask_id=$2 FOR UPDATE
	`, taskID, subtaskID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		if exists, err := r.taskExists(ctx, taskID); err != nil {
			return err
		} else if !exists {
			return task.ErrTaskNotFound
		}
		return task.ErrSubtaskNotFound
	}
	if err != nil {
		return err
	}

	probe := task.Subtask{Status: current}
	if !probe.CanTransitionTo(status) {
		return fmt.Errorf("%w: subtask %s %s -> %s", task.ErrStaleTransition, subtaskID, current, status)
	}
	if status == task.SubtaskAssigned && (mut == nil || mut.AssignedRobot == nil) {
		return fmt.Errorf("ASSIGNED requires an assigned robot for subtask %s", subtaskID)
	}

	now := time.Now().UTC()
	var dispatchedAt, completedAt, failedAt *time.Time
	switch status {
	case task.SubtaskDispatched:
		dispatchedAt = &now
	case task.SubtaskCompleted:
		completedAt = &now
	case task.SubtaskFailed:
		failedAt = &now
	}
	if mut == nil {
		mut = &task.SubtaskMutation{}
	}
	_, err = tx.Exec(ctx, `
		UPDATE subtasks SET status=$1,
			assigned_robot=COALESCE($2, assigned_robot),
			score=COALESCE($3, score),
			score_source=COALESCE($4, score_source),
			attempts=COALESCE($5, attempts),
			error=COALESCE($6, error),
			dispatched_at=COALESCE($7, dispatched_at),
			completed_at=COALESCE($8, completed_at),
			failed_at=COALESCE($9, failed_at)
		WHERE task_id=$10 AND subtask_id=$11
	`, status, mut.AssignedRobot, mut.Score, mut.ScoreSource, mut.Attempts, mut.Error,
		dispatchedAt, completedAt, failedAt, taskID, subtaskID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TaskRepository) taskExists(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE task_id=$1)`, taskID).Scan(&exists)
	return exists, err
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	if err := row.Scan(&t.ID, &t.TaskID, &t.Command, &t.Parameters, &t.PreferredRobot, &t.Status, &t.Error, &t.CreatedAt, &t.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func scanSubtask(row pgx.Row) (*task.Subtask, error) {
	var s task.Subtask
	if err := row.Scan(&s.ID, &s.SubtaskID, &s.TaskID, &s.Seq, &s.Name, &s.RequiredCapability, &s.Priority, &s.Parameters,
		&s.AssignedRobot, &s.Score, &s.ScoreSource, &s.Attempts, &s.MaxAttempts, &s.Status, &s.Error,
		&s.CreatedAt, &s.DispatchedAt, &s.CompletedAt, &s.FailedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
