package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/delegation-hub/delegation-hub/internal/application/decomposer"
	"github.com/delegation-hub/delegation-hub/internal/application/dispatch"
	"github.com/delegation-hub/delegation-hub/internal/application/orchestrator"
	approbot "github.com/delegation-hub/delegation-hub/internal/application/robot"
	"github.com/delegation-hub/delegation-hub/internal/application/scoring"
	"github.com/delegation-hub/delegation-hub/internal/domain/task"
	taskMocks "github.com/delegation-hub/delegation-hub/internal/domain/task/mocks"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/memory"
	"github.com/delegation-hub/delegation-hub/internal/infrastructure/metrics"
)

type channelFunc func(ctx context.Context, cmd dispatch.Command) (dispatch.Reply, error)

func (f channelFunc) Send(ctx context.Context, cmd dispatch.Command) (dispatch.Reply, error) {
	return f(ctx, cmd)
}

func newService(t *testing.T, store task.Repository) *Service {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	registry := approbot.NewService(memory.NewRobotRepository(), zerolog.Nop())
	_, err := registry.Register(context.Background(), "KUKA_1", map[string]int{
		"navigation": 90, "delicate_task": 90, "heavy_lifting": 90,
	}, "")
	require.NoError(t, err)

	scorer := scoring.NewScorer(registry, nil, 50*time.Millisecond, m, zerolog.Nop())
	channel := channelFunc(func(_ context.Context, cmd dispatch.Command) (dispatch.Reply, error) {
		return dispatch.Reply{SubtaskID: cmd.SubtaskID, Status: dispatch.ReplySuccess}, nil
	})
	dispatcher := dispatch.NewDispatcher(channel, 50*time.Millisecond, nil, m, zerolog.Nop())
	orch := orchestrator.NewOrchestrator(store, scorer, dispatcher, m, 3, 1, zerolog.Nop())
	return NewService(store, orch, m, false, zerolog.Nop())
}

func TestSubmitCompletes(t *testing.T) {
	store := memory.NewTaskRepository()
	svc := newService(t, store)

	created, err := svc.Submit(context.Background(), nil, "weld_component", []float64{100, 10, 20, 30, 1}, nil)
	require.NoError(t, err)
	// inline mode returns the settled record, not the PENDING snapshot
	require.Equal(t, task.StatusCompleted, created.Status)

	got, err := svc.Get(context.Background(), created.TaskID)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, got.Status)
	require.Len(t, got.Subtasks, 2)
}

func TestSubmitUnknownCommandCreatesNothing(t *testing.T) {
	store := memory.NewTaskRepository()
	svc := newService(t, store)

	_, err := svc.Submit(context.Background(), nil, "fold_laundry", []float64{1}, nil)
	require.ErrorIs(t, err, decomposer.ErrUnsupportedCommand)

	tasks, err := store.List(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestSubmitArityMismatchCreatesNothing(t *testing.T) {
	store := memory.NewTaskRepository()
	svc := newService(t, store)

	_, err := svc.Submit(context.Background(), nil, "weld_component", []float64{1, 2}, nil)
	require.ErrorIs(t, err, decomposer.ErrInvalidParameters)

	tasks, err := store.List(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestSubmitPersistenceErrorSurfaces(t *testing.T) {
	repo := new(taskMocks.MockRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	svc := newService(t, repo)

	_, err := svc.Submit(context.Background(), nil, "weld_component", []float64{100, 10, 20, 30, 1}, nil)
	require.Error(t, err)
	repo.AssertExpectations(t)
}

func TestGetUnknownTask(t *testing.T) {
	store := memory.NewTaskRepository()
	svc := newService(t, store)

	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestCancelTerminalTaskRejected(t *testing.T) {
	store := memory.NewTaskRepository()
	svc := newService(t, store)

	created, err := svc.Submit(context.Background(), nil, "calibrate_gripper", []float64{1, 2}, nil)
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), created.TaskID)
	require.Error(t, err)
}
