package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/delegation-hub/delegation-hub/internal/domain/task"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task and its subtasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "poll until the task reaches a terminal state")
}

func runStatus(cmd *cobra.Command, args []string) error {
	for {
		var t task.Task
		if err := getAPI("/v1/tasks/"+args[0], &t); err != nil {
			return err
		}
		printTask(&t)
		if !statusWatch || t.Status.IsTerminal() {
			return nil
		}
		time.Sleep(time.Second)
		fmt.Println()
	}
}

func printTask(t *task.Task) {
	fmt.Printf("task %s  %s  command=%s\n", t.TaskID, t.Status, t.Command)
	if t.Error != nil {
		fmt.Printf("  error: %s\n", *t.Error)
	}
	for _, sub := range t.Subtasks {
		robot := "-"
		if sub.AssignedRobot != nil {
			robot = *sub.AssignedRobot
		}
		score := ""
		if sub.Score != nil && sub.ScoreSource != nil {
			score = fmt.Sprintf("  score=%.2f (%s)", *sub.Score, *sub.ScoreSource)
		}
		fmt.Printf("  [%d] %-20s %-11s robot=%-10s attempts=%d/%d%s\n",
			sub.Seq, sub.Name, sub.Status, robot, sub.Attempts, sub.MaxAttempts, score)
		if sub.Error != nil {
			fmt.Printf("      error: %s\n", *sub.Error)
		}
	}
}
