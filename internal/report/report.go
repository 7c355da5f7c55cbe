// Package report folds the final job states of a run into a PipelineReport.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/planner"
	"github.com/sourceplane/liteflow/internal/scheduler"
)

const (
	APIVersion = "liteflow.sourceplane.io/v1"
	Kind       = "PipelineReport"
)

// Meta describes the run being reported
type Meta struct {
	Pipeline      string
	Invocation    model.Invocation
	Triggered     bool
	TriggerReason string
}

// Aggregate builds the report. The status is Canceled when the run was
// aborted, otherwise Failed if any job failed, otherwise Succeeded.
func Aggregate(graph *planner.Graph, outcome *scheduler.Outcome, meta Meta) *model.PipelineReport {
	report := &model.PipelineReport{
		APIVersion:    APIVersion,
		Kind:          Kind,
		RunID:         uuid.NewString(),
		Pipeline:      meta.Pipeline,
		Invocation:    meta.Invocation,
		Triggered:     meta.Triggered,
		TriggerReason: meta.TriggerReason,
		Status:        model.PipelineSucceeded,
		StartedAt:     outcome.StartedAt,
		FinishedAt:    outcome.FinishedAt,
		Duration:      outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond).String(),
		Jobs:          make([]model.JobReport, 0, len(outcome.Runs)),
	}

	for i, run := range outcome.Runs {
		job := graph.Node(i).Job
		jr := model.JobReport{
			Name:      job.Name,
			Group:     job.Group,
			State:     run.State,
			Reason:    run.Reason,
			Logs:      run.Logs,
			Artifacts: run.Artifacts,
		}
		if !run.StartedAt.IsZero() {
			startedAt := run.StartedAt
			jr.StartedAt = &startedAt
		}
		if !run.FinishedAt.IsZero() {
			finishedAt := run.FinishedAt
			jr.FinishedAt = &finishedAt
			if jr.StartedAt != nil {
				jr.Duration = finishedAt.Sub(*jr.StartedAt).Round(time.Millisecond).String()
			}
		}
		if run.Err != nil {
			jr.Error = run.Err.Error()
		}
		if run.State == model.StateFailed {
			report.Status = model.PipelineFailed
		}
		report.Jobs = append(report.Jobs, jr)
	}

	if outcome.Aborted {
		report.Status = model.PipelineCanceled
	}
	return report
}

// RenderJSON renders the report as JSON
func RenderJSON(report *model.PipelineReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// RenderYAML renders the report as YAML
func RenderYAML(report *model.PipelineReport) ([]byte, error) {
	return yaml.Marshal(report)
}

// WriteReport writes the report to path, as YAML for .yaml/.yml and JSON otherwise
func WriteReport(report *model.PipelineReport, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = RenderYAML(report)
	default:
		data, err = RenderJSON(report)
	}
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// stateMarks are the progress glyphs printed per job
var stateMarks = map[model.RunState]string{
	model.StateSucceeded: "✓",
	model.StateFailed:    "✗",
	model.StateSkipped:   "○",
	model.StateCanceled:  "⊘",
}

// WriteSummary prints a human-readable summary of the report
func WriteSummary(w io.Writer, report *model.PipelineReport) {
	fmt.Fprintf(w, "\nPipeline %s: %s (%s)\n", report.Pipeline, report.Status, report.Duration)
	if !report.Triggered {
		fmt.Fprintf(w, "  not triggered: %s\n", report.TriggerReason)
	}
	for _, job := range report.Jobs {
		mark, ok := stateMarks[job.State]
		if !ok {
			mark = "□"
		}
		line := fmt.Sprintf("  %s %s", mark, job.Name)
		if job.Duration != "" {
			line += " (" + job.Duration + ")"
		}
		if job.Reason != "" && job.State != model.StateSucceeded {
			line += ": " + job.Reason
		}
		fmt.Fprintln(w, line)
	}

	counts := make([]string, 0, 4)
	for _, s := range []model.RunState{model.StateSucceeded, model.StateFailed, model.StateSkipped, model.StateCanceled} {
		if n := report.Count(s); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, strings.ToLower(string(s))))
		}
	}
	if len(counts) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(counts, ", "))
	}
	fmt.Fprintf(w, "  run id: %s\n", report.RunID)
}
