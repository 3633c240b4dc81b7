package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "delegatectl",
	Short: "Task delegation hub CLI",
	Long: `delegatectl talks to a running delegation hub.

Submit high-level commands for decomposition and dispatch, watch task
progress, and manage the robot registry.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "delegation hub base URL")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.SetEnvPrefix("DELEGATION_HUB")
	viper.AutomaticEnv()

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(robotsCmd)
}
