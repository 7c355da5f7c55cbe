package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/liteflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective engine configuration",
	Long:  "Print the configuration after merging defaults, the --config file, LITEFLOW__* environment variables and flags.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Dump(os.Stdout, configFile, cmd.Flags())
	},
}

func registerConfigCommand(root *cobra.Command) {
	root.AddCommand(configCmd)
}
