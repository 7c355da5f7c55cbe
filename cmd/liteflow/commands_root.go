package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/liteflow/internal/config"
	"github.com/sourceplane/liteflow/internal/ctxlog"
	"github.com/sourceplane/liteflow/internal/logging"
)

var (
	configFile    string
	pipelineFile  string
	templatePaths []string
	outputFile    string
	debugMode     bool
	longFormat    bool
	viewPlan      string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "liteflow",
	Short:         "CI pipeline engine: Pipeline → Job DAG → Report",
	Long:          "liteflow compiles templated, matrix-expanded pipeline declarations into a job DAG and runs it with bounded parallelism",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded

		logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
		cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Engine configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&pipelineFile, "file", "f", "pipeline.yaml", "Pipeline declaration file")
	rootCmd.PersistentFlags().StringSliceVarP(&templatePaths, "templates", "t", nil, "Extra template libraries: file, directory or glob (use * or ** for recursive scanning)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text/json)")
	rootCmd.PersistentFlags().Int("max-depth", 8, "Maximum nested template depth")

	registerValidateCommand(rootCmd)
	registerPlanCommand(rootCmd)
	registerRunCommand(rootCmd)
	registerTemplatesCommand(rootCmd)
	registerJobsCommand(rootCmd)
	registerConfigCommand(rootCmd)
}
