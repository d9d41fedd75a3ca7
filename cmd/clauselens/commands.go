package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clauselens/clauselens/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the clauselens version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("clauselens version %s\n", version)
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, kv := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", paint(ansiBold, kv.Key), kv.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
