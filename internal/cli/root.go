// Package cli wires the cobra command tree around the memory engine.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Selective memory for AI coding agents",
	Long:  "Engram decides which session facts an AI coding agent should retain, decays them over time, and re-ranks them for budget-constrained retrieval.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.engram/config.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(memoriesCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statsCmd)
}
