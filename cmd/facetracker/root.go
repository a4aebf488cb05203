package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "facetracker",
	Short: "Multi-camera face recognition alert service",
	Long: `Face Tracker watches multiple camera feeds, detects and recognizes
faces through an inference sidecar and raises rate-limited alerts over
websocket, Telegram and a persistent event log.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "facetracker.yaml", "Path to the configuration file")
}
