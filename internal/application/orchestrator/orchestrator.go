package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/delegation-hub/delegation-hub/internal/application/dispatch"
	"github.com/delegation-hub/delegation-hub/internal/application/scoring"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

// ErrNoCapableExecutor indicates no registered robot satisfies a
// subtask's capability requirement.
var ErrNoCapableExecutor = errors.New("no capable executor")

const persistAttempts = 3

// Orchestrator drives one task end-to-end: score, assign, persist,
// dispatch, finalize. All mutations for a subtask flow through the single
// goroutine owning it, so concurrent retries cannot double-assign.
type Orchestrator struct {
	store       task.Repository
	scorer      *scoring.Scorer
	dispatcher  *dispatch.Dispatcher
	metrics     *metrics.Metrics
	maxAttempts int
	robotSlots  int
	logger      zerolog.Logger

	mu      sync.Mutex
	slots   map[string]chan struct{}
	running map[uuid.UUID]context.CancelFunc
}

func NewOrchestrator(
	store task.Repository,
	scorer *scoring.Scorer,
	dispatcher *dispatch.Dispatcher,
	m *metrics.Metrics,
	maxAttempts int,
	robotSlots int,
	logger zerolog.Logger,
) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if robotSlots <= 0 {
		robotSlots = 1
	}
	return &Orchestrator{
		store:       store,
		scorer:      scorer,
		dispatcher:  dispatcher,
		metrics:     m,
		maxAttempts: maxAttempts,
		robotSlots:  robotSlots,
		logger:      logger.With().Str("service", "orchestrator").Logger(),
		slots:       make(map[string]chan struct{}),
		running:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// MaxAttempts returns the dispatch retry bound.
func (o *Orchestrator) MaxAttempts() int {
	return o.maxAttempts
}

// Run processes a task until it reaches a terminal status. Subtasks of
// equal priority are dispatched concurrently; a later priority level
// starts only after every earlier subtask completed. On retry exhaustion
// the task fails fast: in-flight peers finish, pending levels never start.
func (o *Orchestrator) Run(ctx context.Context, taskID uuid.UUID) error {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.running[taskID] = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.running, taskID)
		o.mu.Unlock()
	}()

	t, err := o.store.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return task.ErrTaskNotFound
	}
	if t.Status.IsTerminal() {
		return nil
	}

	for _, status := range []task.Status{task.StatusDecomposing, task.StatusAssigning, task.StatusDispatching, task.StatusExecuting} {
		if _, err := o.updateTask(ctx, taskID, status, nil); err != nil {
			return o.failTask(ctx, taskID, fmt.Sprintf("persistence error: %v", err))
		}
	}

	subtasks, err := o.store.ListSubtasks(ctx, taskID)
	if err != nil {
		return o.failTask(ctx, taskID, fmt.Sprintf("persistence error: %v", err))
	}

	var failed atomic.Bool
	for _, level := range priorityLevels(subtasks) {
		if failed.Load() {
			break
		}
		if ctx.Err() != nil {
			return o.failTask(ctx, taskID, "task cancelled")
		}

		var g errgroup.Group
		for _, sub := range level {
			if sub.Status.IsTerminal() {
				if sub.Status == task.SubtaskFailed {
					failed.Store(true)
				}
				continue
			}
			sub := sub
			g.Go(func() error {
				ok, err := o.runSubtask(ctx, t, sub)
				if err != nil {
					failed.Store(true)
					return err
				}
				if !ok {
					failed.Store(true)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return o.failTask(ctx, taskID, fmt.Sprintf("persistence error: %v", err))
		}
	}

	return o.finalize(ctx, taskID)
}

// Cancel requests best-effort cancellation of a running task. In-flight
// dispatches resolve before the task settles as FAILED; a task that never
// started is failed directly.
func (o *Orchestrator) Cancel(ctx context.Context, taskID uuid.UUID) error {
	o.mu.Lock()
	cancel, ok := o.running[taskID]
	o.mu.Unlock()
	if ok {
		cancel()
		return nil
	}
	_, err := o.updateTask(ctx, taskID, task.StatusFailed, strPtr("task cancelled"))
	return err
}

// runSubtask owns the score/assign/dispatch/retry cycle for one subtask.
// Returns false when the subtask settled as FAILED.
func (o *Orchestrator) runSubtask(ctx context.Context, t *task.Task, sub *task.Subtask) (bool, error) {
	var lastErr *string
	for attempt := sub.Attempts + 1; attempt <= o.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false, o.failSubtask(ctx, sub, "task cancelled")
		}

		candidates, err := o.scorer.Score(ctx, sub)
		if err != nil {
			return false, o.failSubtask(ctx, sub, fmt.Sprintf("scoring failed: %v", err))
		}
		if len(candidates) == 0 {
			return false, o.failSubtask(ctx, sub, ErrNoCapableExecutor.Error())
		}
		candidates = o.applyPreference(t, sub, candidates)

		chosen, release, err := o.acquireRobot(ctx, candidates)
		if err != nil {
			return false, o.failSubtask(ctx, sub, "task cancelled")
		}

		attemptCopy := attempt
		mut := &task.SubtaskMutation{
			AssignedRobot: &chosen.RobotID,
			Score:         &chosen.Score,
			ScoreSource:   &chosen.Source,
			Attempts:      &attemptCopy,
			Error:         lastErr,
		}
		if err := o.updateSubtask(ctx, sub, task.SubtaskAssigned, mut); err != nil {
			release()
			return false, err
		}
		if err := o.updateSubtask(ctx, sub, task.SubtaskDispatched, nil); err != nil {
			release()
			return false, err
		}

		outcome := o.dispatcher.Dispatch(ctx, sub, chosen.RobotID)
		release()

		switch outcome.Result {
		case dispatch.ResultAck:
			if err := o.updateSubtask(ctx, sub, task.SubtaskCompleted, nil); err != nil {
				return false, err
			}
			return true, nil
		default:
			reason := outcome.Reason
			o.logger.Warn().
				Str("task_id", t.TaskID.String()).
				Str("subtask_id", sub.SubtaskID.String()).
				Str("robot_id", chosen.RobotID).
				Int("attempt", attempt).
				Str("reason", reason).
				Msg("dispatch attempt failed")
			lastErr = &reason
		}
	}

	reason := "retries exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("retries exhausted: %s", *lastErr)
	}
	return false, o.failSubtask(ctx, sub, reason)
}

// applyPreference pins a valid preferred robot to the head of the
// ranking; an invalid preference is logged and ignored.
func (o *Orchestrator) applyPreference(t *task.Task, sub *task.Subtask, candidates []scoring.Candidate) []scoring.Candidate {
	if t.PreferredRobot == nil {
		return candidates
	}
	for i, c := range candidates {
		if c.RobotID == *t.PreferredRobot {
			if i > 0 {
				pinned := append([]scoring.Candidate{c}, append(append([]scoring.Candidate{}, candidates[:i]...), candidates[i+1:]...)...)
				return pinned
			}
			return candidates
		}
	}
	o.logger.Warn().
		Str("task_id", t.TaskID.String()).
		Str("subtask_id", sub.SubtaskID.String()).
		Str("preferred_robot", *t.PreferredRobot).
		Msg("preferred robot is not a capable candidate; using ranked choice")
	return candidates
}

// acquireRobot takes a dispatch slot on the highest-ranked robot not at
// its concurrent-subtask limit, blocking on the top choice when every
// candidate is saturated.
func (o *Orchestrator) acquireRobot(ctx context.Context, candidates []scoring.Candidate) (scoring.Candidate, func(), error) {
	for _, c := range candidates {
		slot := o.slotFor(c.RobotID)
		select {
		case slot <- struct{}{}:
			return c, func() { <-slot }, nil
		default:
		}
	}
	top := candidates[0]
	slot := o.slotFor(top.RobotID)
	select {
	case slot <- struct{}{}:
		return top, func() { <-slot }, nil
	case <-ctx.Done():
		return scoring.Candidate{}, nil, ctx.Err()
	}
}

func (o *Orchestrator) slotFor(robotID string) chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot, ok := o.slots[robotID]
	if !ok {
		slot = make(chan struct{}, o.robotSlots)
		o.slots[robotID] = slot
	}
	return slot
}

func (o *Orchestrator) failSubtask(ctx context.Context, sub *task.Subtask, reason string) error {
	return o.updateSubtask(ctx, sub, task.SubtaskFailed, &task.SubtaskMutation{Error: &reason})
}

func (o *Orchestrator) finalize(ctx context.Context, taskID uuid.UUID) error {
	subtasks, err := o.store.ListSubtasks(ctx, taskID)
	if err != nil {
		return o.failTask(ctx, taskID, fmt.Sprintf("persistence error: %v", err))
	}
	derived := task.DeriveStatus(subtasks)
	if !derived.IsTerminal() {
		derived = task.StatusFailed
	}

	var errMsg *string
	if derived == task.StatusFailed {
		for _, s := range subtasks {
			if s.Status == task.SubtaskFailed && s.Error != nil {
				msg := fmt.Sprintf("subtask %s failed: %s", s.Name, *s.Error)
				errMsg = &msg
				break
			}
		}
		if errMsg == nil {
			errMsg = strPtr("task did not complete")
		}
	}

	final, err := o.updateTask(ctx, taskID, derived, errMsg)
	if err != nil {
		return err
	}
	o.metrics.TasksCompleted.WithLabelValues(string(final)).Inc()
	o.logger.Info().Str("task_id", taskID.String()).Str("status", string(final)).Msg("task finalized")
	return nil
}

func (o *Orchestrator) failTask(ctx context.Context, taskID uuid.UUID, reason string) error {
	if _, err := o.updateTask(ctx, taskID, task.StatusFailed, &reason); err != nil {
		return err
	}
	o.metrics.TasksCompleted.WithLabelValues(string(task.StatusFailed)).Inc()
	return nil
}

// updateTask writes a task status with bounded retries; the store must
// confirm a write before the orchestrator assumes it happened.
func (o *Orchestrator) updateTask(ctx context.Context, taskID uuid.UUID, status task.Status, errMsg *string) (task.Status, error) {
	var final task.Status
	var err error
	for i := 0; i < persistAttempts; i++ {
		final, err = o.store.UpdateTaskStatus(context.WithoutCancel(ctx), taskID, status, errMsg)
		if err == nil || errors.Is(err, task.ErrStaleTransition) || errors.Is(err, task.ErrTaskNotFound) {
			return final, err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return final, err
}

func (o *Orchestrator) updateSubtask(ctx context.Context, sub *task.Subtask, status task.SubtaskStatus, mut *task.SubtaskMutation) error {
	var err error
	for i := 0; i < persistAttempts; i++ {
		err = o.store.UpdateSubtaskStatus(context.WithoutCancel(ctx), sub.TaskID, sub.SubtaskID, status, mut)
		if err == nil {
			sub.Status = status
			if mut != nil {
				if mut.AssignedRobot != nil {
					sub.AssignedRobot = mut.AssignedRobot
				}
				if mut.Attempts != nil {
					sub.Attempts = *mut.Attempts
				}
			}
			return nil
		}
		if errors.Is(err, task.ErrStaleTransition) || errors.Is(err, task.ErrSubtaskNotFound) {
			o.logger.Error().Err(err).Str("subtask_id", sub.SubtaskID.String()).Msg("rejected stale subtask transition")
			return err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return err
}

// priorityLevels groups subtasks by ascending priority.
func priorityLevels(subtasks []*task.Subtask) [][]*task.Subtask {
	byPriority := make(map[int][]*task.Subtask)
	priorities := make([]int, 0)
	for _, s := range subtasks {
		if _, ok := byPriority[s.Priority]; !ok {
			priorities = append(priorities, s.Priority)
		}
		byPriority[s.Priority] = append(byPriority[s.Priority], s)
	}
	sort.Ints(priorities)
	levels := make([][]*task.Subtask, 0, len(priorities))
	for _, p := range priorities {
		levels = append(levels, byPriority[p])
	}
	return levels
}

func strPtr(s string) *string {
	return &s
}
