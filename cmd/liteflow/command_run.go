package main

import (
	"fmt"
	"maps"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/liteflow/internal/ctxlog"
	"github.com/sourceplane/liteflow/internal/engine"
	"github.com/sourceplane/liteflow/internal/git"
	"github.com/sourceplane/liteflow/internal/metrics"
	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/report"
	"github.com/sourceplane/liteflow/internal/runner"
	"github.com/sourceplane/liteflow/internal/scheduler"
)

var (
	runEvent        string
	runBranch       string
	runTargetBranch string
	runChanged      bool
	runBaseBranch   string
	runFiles        []string
	runChangedUnder string
	runVars         []string
	runEnvFiles     []string
	runJobs         []string
	runExecute      bool
	runReportFile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compile and execute a pipeline",
	Long:  "Compile the pipeline, evaluate its triggers for the given invocation and run every included job, similar to an apply phase.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd)
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runEvent, "event", model.EventPush, "Invocation event (push/pull_request/schedule/manual)")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "Source branch (default: current git branch)")
	runCmd.Flags().StringVar(&runTargetBranch, "target-branch", "", "Target branch of a pull request")
	runCmd.Flags().BoolVar(&runChanged, "changed", false, "Detect changed files with git for path filters")
	runCmd.Flags().StringVar(&runBaseBranch, "base", "main", "Base branch for change detection")
	runCmd.Flags().StringSliceVar(&runFiles, "files", nil, "Comma-separated changed files (overrides git diff calculation)")
	runCmd.Flags().StringVar(&runChangedUnder, "changed-under", "", "Only consider changed files under this directory")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Invocation variable as key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runEnvFiles, "env-file", nil, "Dotenv file with invocation variables (repeatable)")
	runCmd.Flags().StringSliceVar(&runJobs, "job", nil, "Run only these jobs or job groups and their dependencies")
	runCmd.Flags().BoolVarP(&runExecute, "execute", "x", false, "Actually execute commands (default is dry-run)")
	runCmd.Flags().StringVar(&runReportFile, "report", "", "Write the run report to this file (.json/.yaml)")
	runCmd.Flags().IntP("max-parallel", "j", 4, "Maximum number of jobs running at once")
	runCmd.Flags().Duration("grace-timeout", scheduler.DefaultGraceTimeout, "How long an abort waits for running jobs")
	runCmd.Flags().String("workdir", ".", "Working directory for job steps")
	runCmd.Flags().String("shell", "sh", "Shell used to run steps")
	runCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile")
}

func runPipeline(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)

	compiled, err := compilePipeline(ctx)
	if err != nil {
		return err
	}
	if err := compiled.Select(runJobs); err != nil {
		return err
	}

	variables, err := invocationVariables()
	if err != nil {
		return err
	}

	inv := model.Invocation{
		Event:        runEvent,
		Branch:       runBranch,
		TargetBranch: runTargetBranch,
		ChangedFiles: runFiles,
		Variables:    variables,
	}

	detector := git.NewChangeDetector(cfg.Runner.WorkDir, runBaseBranch)
	if inv.Branch == "" {
		if branch, err := detector.CurrentBranch(ctx); err == nil {
			inv.Branch = branch
		} else {
			logger.Warn("branch not detected", "error", err)
		}
	}
	if runChanged && len(inv.ChangedFiles) == 0 {
		files, err := detector.GetChangedFiles(ctx)
		if err != nil {
			return fmt.Errorf("failed to detect changed files: %w", err)
		}
		inv.ChangedFiles = files
		logger.Debug("changed files detected", "count", len(files), "base", runBaseBranch)
	}
	if runChangedUnder != "" {
		inv.ChangedFiles = git.FilterUnderPath(inv.ChangedFiles, runChangedUnder)
	}

	var executor scheduler.Executor
	if runExecute {
		executor = runner.NewShellExecutor(cfg.Runner.Shell, cfg.Runner.WorkDir, variables)
	} else {
		fmt.Println("□ Dry-run mode enabled. Use --execute to run commands.")
		executor = runner.NewDryRunExecutor(os.Stdout)
	}

	recorder := metrics.NewRecorder()
	rep, err := compiled.Run(ctx, engine.RunOptions{
		Invocation: inv,
		Executor:   executor,
		Scheduler: scheduler.Options{
			MaxParallel:    cfg.Scheduler.MaxParallel,
			PlatformLimits: cfg.Scheduler.PlatformLimits,
			GraceTimeout:   cfg.Scheduler.GraceTimeout,
		},
		Metrics: recorder,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	report.WriteSummary(os.Stdout, rep)

	if runReportFile != "" {
		if err := report.WriteReport(rep, runReportFile); err != nil {
			return err
		}
		fmt.Printf("✓ Report saved to: %s\n", runReportFile)
	}
	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return err
		}
	}

	if !rep.Success() {
		return &ExitError{Code: rep.ExitCode()}
	}
	return nil
}

// invocationVariables merges env files in order, then --var assignments
func invocationVariables() (map[string]string, error) {
	variables, err := runner.LoadEnvFiles(runEnvFiles...)
	if err != nil {
		return nil, err
	}
	vars, err := runner.ParseVars(runVars)
	if err != nil {
		return nil, err
	}
	maps.Copy(variables, vars)
	return variables, nil
}
