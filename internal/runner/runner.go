// Package runner provides the executors that run job instances.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/sourceplane/liteflow/internal/ctxlog"
	"github.com/sourceplane/liteflow/internal/logging"
	"github.com/sourceplane/liteflow/internal/model"
)

// DefaultShell runs step commands when none is configured
const DefaultShell = "sh"

// waitDelay bounds how long a canceled step may keep its output pipes open
const waitDelay = 5 * time.Second

// ShellExecutor runs each step of a job as `<shell> -c <run>`.
type ShellExecutor struct {
	Shell   string
	WorkDir string
	Env     map[string]string // added to every job, below the job's own env
}

// NewShellExecutor creates a shell executor
func NewShellExecutor(shell, workDir string, env map[string]string) *ShellExecutor {
	if shell == "" {
		shell = DefaultShell
	}
	return &ShellExecutor{
		Shell:   shell,
		WorkDir: workDir,
		Env:     env,
	}
}

// Execute runs the job's steps in order. A failing step is retried up to its
// retry count; with onFailure "continue" the job carries on after the last
// attempt, otherwise the job fails.
func (r *ShellExecutor) Execute(ctx context.Context, job *model.JobInstance) model.ExecutionResult {
	logger := ctxlog.FromContext(ctx).With("job", job.Name)

	var logs bytes.Buffer
	artifacts := make(map[string]string, len(job.Payload.Steps))
	env := r.environ(job)

	for _, step := range job.Payload.Steps {
		fmt.Fprintf(&logs, "  - Step %s\n", step.Name)
		stepLogger := logger.With("step", step.Name)

		var err error
		for attempt := 0; attempt <= step.Retry; attempt++ {
			if attempt > 0 {
				stepLogger.Warn("retrying step", "attempt", attempt+1, "error", err)
				fmt.Fprintf(&logs, "    retry %d/%d\n", attempt, step.Retry)
			}
			err = r.runStep(ctx, step, env, &logs, stepLogger)
			if err == nil || ctx.Err() != nil {
				break
			}
		}

		switch {
		case err == nil:
			artifacts["steps."+step.Name] = "succeeded"
		case ctx.Err() != nil:
			artifacts["steps."+step.Name] = "canceled"
			return model.Failed(logs.String(), fmt.Errorf("step %s interrupted: %w", step.Name, ctx.Err()))
		case step.OnFailure == "continue":
			stepLogger.Warn("step failed, continuing", "error", err)
			artifacts["steps."+step.Name] = "failed"
		default:
			artifacts["steps."+step.Name] = "failed"
			res := model.Failed(logs.String(), fmt.Errorf("step %s failed: %w", step.Name, err))
			res.Artifacts = artifacts
			return res
		}
	}

	res := model.Succeeded(logs.String())
	res.Artifacts = artifacts
	return res
}

func (r *ShellExecutor) runStep(ctx context.Context, step model.RenderedStep, env []string, logs *bytes.Buffer, logger *slog.Logger) error {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	output := logging.NewWriter(logger)
	defer output.Flush()

	sink := io.MultiWriter(logs, output)
	cmd := exec.CommandContext(ctx, r.Shell, "-c", step.Run)
	cmd.Dir = r.WorkDir
	cmd.Env = env
	cmd.Stdout = sink
	cmd.Stderr = sink
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if step.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("step timed out after %s", step.Timeout)
		}
		return err
	}
	return nil
}

// environ builds the process environment: inherited, executor-wide, job
func (r *ShellExecutor) environ(job *model.JobInstance) []string {
	env := os.Environ()
	env = appendSorted(env, r.Env)
	env = appendSorted(env, job.Payload.Env)
	return append(env, "LITEFLOW_JOB="+job.Name, "LITEFLOW_JOB_GROUP="+job.Group)
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// DryRunExecutor prints what would run and reports success
type DryRunExecutor struct {
	mu  sync.Mutex
	out io.Writer
}

// NewDryRunExecutor creates a dry-run executor writing to out
func NewDryRunExecutor(out io.Writer) *DryRunExecutor {
	if out == nil {
		out = io.Discard
	}
	return &DryRunExecutor{out: out}
}

// Execute writes the job's rendered steps without running them
func (r *DryRunExecutor) Execute(ctx context.Context, job *model.JobInstance) model.ExecutionResult {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "→ Job %s\n", job.Name)
	for _, step := range job.Payload.Steps {
		fmt.Fprintf(&buf, "  - Step %s\n", step.Name)
		fmt.Fprintf(&buf, "    %s\n", step.Run)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(buf.Bytes()); err != nil {
		return model.Failed(buf.String(), err)
	}
	return model.Succeeded(buf.String())
}
