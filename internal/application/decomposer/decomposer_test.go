package decomposer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/delegation-hub/delegation-hub/internal/domain/task"
)

func TestDecomposeWeldComponent(t *testing.T) {
	taskID := uuid.New()
	subs, err := Decompose(taskID, "weld_component", []float64{100, 10, 20, 30, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(subs))
	}
	if subs[0].Name != "move_to_position" || !reflect.DeepEqual(subs[0].Parameters, []float64{100, 10, 20}) {
		t.Fatalf("unexpected first subtask: %+v", subs[0])
	}
	if subs[1].Name != "weld" || !reflect.DeepEqual(subs[1].Parameters, []float64{30, 1}) {
		t.Fatalf("unexpected second subtask: %+v", subs[1])
	}
	if subs[0].Priority >= subs[1].Priority {
		t.Fatal("expected move_to_position to precede weld")
	}
	if subs[0].Status != task.SubtaskPending || subs[1].Status != task.SubtaskPending {
		t.Fatal("expected new subtasks to be PENDING")
	}
}

func TestDecomposeIsPure(t *testing.T) {
	taskID := uuid.New()
	for _, command := range Supported() {
		arity, err := Arity(command)
		if err != nil {
			t.Fatalf("arity lookup failed for %s: %v", command, err)
		}
		params := make([]float64, arity)
		for i := range params {
			params[i] = float64(i) * 1.5
		}
		first, err := Decompose(taskID, command, params)
		if err != nil {
			t.Fatalf("decompose %s failed: %v", command, err)
		}
		second, err := Decompose(taskID, command, params)
		if err != nil {
			t.Fatalf("decompose %s failed on repeat: %v", command, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("decompose %s is not deterministic", command)
		}
	}
}

func TestDecomposeUnknownCommand(t *testing.T) {
	_, err := Decompose(uuid.New(), "fold_laundry", []float64{1})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("expected ErrUnsupportedCommand, got %v", err)
	}
}

func TestDecomposeArityMismatch(t *testing.T) {
	_, err := Decompose(uuid.New(), "weld_component", []float64{1, 2})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestDecomposeParametersDoNotAlias(t *testing.T) {
	input := []float64{100, 10, 20, 30, 1}
	subs, err := Decompose(uuid.New(), "weld_component", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	input[0] = -1
	if subs[0].Parameters[0] != 100 {
		t.Fatal("subtask parameters must be copied, not aliased")
	}
}

func TestDecomposeEqualPrioritySubtasks(t *testing.T) {
	subs, err := Decompose(uuid.New(), "inspect_surface", []float64{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("expected 3 subtasks, got %d", len(subs))
	}
	if subs[1].Priority != subs[2].Priority {
		t.Fatal("expected scan_surface and capture_imagery to share a priority level")
	}
}
