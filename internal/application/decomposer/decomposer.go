package decomposer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/delegation-hub/delegation-hub/internal/domain/task"
)

var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrInvalidParameters  = errors.New("invalid parameters")
)

type stepSpec struct {
	name        string
	requirement string
	priority    int
	paramStart  int
	paramEnd    int
}

type commandSpec struct {
	arity int
	steps []stepSpec
}

// Decomposition rules keyed by command name. Parameter slices index into
// the task's raw parameter list; arity is validated before any subtask is
// created. Capability requirements may be expressions over alternatives.
var commands = map[string]commandSpec{
	"weld_component": {
		arity: 5,
		steps: []stepSpec{
			{name: "move_to_position", requirement: "navigation", priority: 1, paramStart: 0, paramEnd: 3},
			{name: "weld", requirement: "delicate_task || heavy_lifting", priority: 2, paramStart: 3, paramEnd: 5},
		},
	},
	"transport_pallet": {
		arity: 7,
		steps: []stepSpec{
			{name: "move_to_position", requirement: "navigation", priority: 1, paramStart: 0, paramEnd: 3},
			{name: "lift_payload", requirement: "heavy_lifting", priority: 2, paramStart: 3, paramEnd: 4},
			{name: "place_payload", requirement: "heavy_lifting", priority: 3, paramStart: 4, paramEnd: 7},
		},
	},
	"inspect_surface": {
		arity: 5,
		steps: []stepSpec{
			{name: "move_to_position", requirement: "navigation", priority: 1, paramStart: 0, paramEnd: 3},
			{name: "scan_surface", requirement: "delicate_task", priority: 2, paramStart: 3, paramEnd: 5},
			{name: "capture_imagery", requirement: "delicate_task || navigation", priority: 2, paramStart: 3, paramEnd: 5},
		},
	},
	"calibrate_gripper": {
		arity: 2,
		steps: []stepSpec{
			{name: "calibrate", requirement: "delicate_task", priority: 1, paramStart: 0, paramEnd: 2},
		},
	},
}

// Decompose expands a command into its ordered subtasks. Pure and
// deterministic: identical inputs yield identical sequences, which keeps
// retries idempotent. Timestamps and attempt bounds are filled in by the
// caller; subtask IDs derive from the task ID and sequence index.
func Decompose(taskID uuid.UUID, command string, parameters []float64) ([]*task.Subtask, error) {
	spec, ok := commands[command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, command)
	}
	if len(parameters) != spec.arity {
		return nil, fmt.Errorf("%w: command %s expects %d parameters, got %d",
			ErrInvalidParameters, command, spec.arity, len(parameters))
	}

	subtasks := make([]*task.Subtask, 0, len(spec.steps))
	for i, step := range spec.steps {
		params := make([]float64, step.paramEnd-step.paramStart)
		copy(params, parameters[step.paramStart:step.paramEnd])
		subtasks = append(subtasks, &task.Subtask{
			SubtaskID:          task.SubtaskID(taskID, i),
			TaskID:             taskID,
			Seq:                i,
			Name:               step.name,
			RequiredCapability: step.requirement,
			Priority:           step.priority,
			Parameters:         params,
			Status:             task.SubtaskPending,
		})
	}
	return subtasks, nil
}

// Supported lists the known command names, sorted.
func Supported() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Arity returns the parameter count a command requires.
func Arity(command string) (int, error) {
	spec, ok := commands[command]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCommand, command)
	}
	return spec.arity, nil
}
