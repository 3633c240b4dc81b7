package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/delegation-hub/delegation-hub/internal/domain/robot"
)

var (
	registerCaps  []string
	registerToken string
)

var robotsCmd = &cobra.Command{
	Use:   "robots",
	Short: "Manage the robot registry",
}

var robotsRegisterCmd = &cobra.Command{
	Use:   "register <robot-id>",
	Short: "Register a robot or replace its capability profile",
	Long: `Register a robot with capability strengths in [0,100], e.g.:

  delegatectl robots register KUKA_1 --cap navigation=90 --cap delicate_task=90`,
	Args: cobra.ExactArgs(1),
	RunE: runRobotsRegister,
}

var robotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered robots",
	Args:  cobra.NoArgs,
	RunE:  runRobotsList,
}

func init() {
	robotsRegisterCmd.Flags().StringArrayVar(&registerCaps, "cap", nil, "capability as name=strength (repeatable)")
	robotsRegisterCmd.Flags().StringVar(&registerToken, "token", "", "channel token the robot will present when attaching")
	robotsCmd.AddCommand(robotsRegisterCmd)
	robotsCmd.AddCommand(robotsListCmd)
}

func runRobotsRegister(cmd *cobra.Command, args []string) error {
	capabilities := make(map[string]int, len(registerCaps))
	for _, spec := range registerCaps {
		name, val, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("capability %q must be name=strength", spec)
		}
		strength, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("capability %q strength is not a number", spec)
		}
		capabilities[name] = strength
	}

	var rb robot.Robot
	err := postAPI("/v1/robots", map[string]interface{}{
		"robotId":      args[0],
		"capabilities": capabilities,
		"channelToken": registerToken,
	}, &rb)
	if err != nil {
		return err
	}
	fmt.Printf("robot %s registered with %d capabilities\n", rb.RobotID, len(rb.Capabilities))
	return nil
}

func runRobotsList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Robots []*robot.Robot `json:"robots"`
	}
	if err := getAPI("/v1/robots", &resp); err != nil {
		return err
	}
	if len(resp.Robots) == 0 {
		fmt.Println("no robots registered")
		return nil
	}
	for _, rb := range resp.Robots {
		caps := make([]string, 0, len(rb.Capabilities))
		for name, strength := range rb.Capabilities {
			caps = append(caps, fmt.Sprintf("%s=%d", name, strength))
		}
		sort.Strings(caps)
		fmt.Printf("%-12s %-8s %s\n", rb.RobotID, rb.Status, strings.Join(caps, " "))
	}
	return nil
}
