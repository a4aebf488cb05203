package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		enabled := 0
		for _, cam := range cfg.Cameras {
			if cam.Enabled {
				enabled++
			}
		}
		fmt.Printf("%s: OK (%d cameras, %d enabled)\n", configPath, len(cfg.Cameras), enabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
