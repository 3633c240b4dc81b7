package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Request best-effort cancellation of a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postAPI("/v1/tasks/"+args[0]+"/cancel", struct{}{}, nil); err != nil {
			return err
		}
		fmt.Printf("cancellation requested for task %s\n", args[0])
		return nil
	},
}
