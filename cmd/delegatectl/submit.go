package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/delegation-hub/delegation-hub/internal/domain/task"
)

var submitPrefer string

var submitCmd = &cobra.Command{
	Use:   "submit <command> [param...]",
	Short: "Submit a high-level command for decomposition and dispatch",
	Long: `Submit a command with its numeric parameters, e.g.:

  delegatectl submit weld_component 100 10 20 30 1
  delegatectl submit transport_pallet 5 0 0 90 10 10 2 --prefer Ford`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitPrefer, "prefer", "", "pin a preferred robot for every subtask it can serve")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	params := make([]float64, 0, len(args)-1)
	for _, arg := range args[1:] {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("parameter %q is not a number", arg)
		}
		params = append(params, v)
	}

	body := map[string]interface{}{
		"command":    args[0],
		"parameters": params,
	}
	if submitPrefer != "" {
		body["preferredRobot"] = submitPrefer
	}

	var t task.Task
	if err := postAPI("/v1/tasks", body, &t); err != nil {
		return err
	}
	fmt.Printf("task %s submitted (%d subtasks)\n", t.TaskID, len(t.Subtasks))
	fmt.Printf("watch it with: delegatectl status %s\n", t.TaskID)
	return nil
}
