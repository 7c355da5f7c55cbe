package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/planner"
)

const (
	PlanAPIVersion = "liteflow.sourceplane.io/v1"
	PlanKind       = "Plan"
)

// Renderer materializes a job graph into a Plan document
type Renderer struct{}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderPlan creates a plan listing every instance in topological order
func (r *Renderer) RenderPlan(pipeline *model.Pipeline, graph *planner.Graph) *model.Plan {
	levels := graph.Levels()
	stages := 0
	for _, level := range levels {
		if level+1 > stages {
			stages = level + 1
		}
	}

	plan := &model.Plan{
		APIVersion: PlanAPIVersion,
		Kind:       PlanKind,
		Metadata: model.Metadata{
			Name:        pipeline.Metadata.Name,
			Description: pipeline.Metadata.Description,
		},
		Spec: model.PlanSpec{
			Trigger: pipeline.Trigger,
			PR:      pipeline.PR,
			Stages:  stages,
		},
		Jobs: make([]model.PlanJob, 0, graph.Len()),
	}

	for _, i := range graph.TopologicalSort() {
		node := graph.Node(i)
		job := node.Job

		planJob := model.PlanJob{
			Name:       job.Name,
			Group:      job.Group,
			Template:   job.Template,
			Coordinate: job.Coordinate,
			Stage:      levels[i],
			Platform:   job.Platform,
			Timeout:    formatDuration(job.Timeout),
			Condition:  job.Condition,
			DependsOn:  make([]model.PlanEdge, 0, len(node.Predecessors)),
			Steps:      r.convertSteps(job.Payload.Steps),
			Env:        job.Payload.Env,
		}
		for _, edge := range node.Predecessors {
			planJob.DependsOn = append(planJob.DependsOn, model.PlanEdge{
				Job:      graph.Node(edge.From).Job.Name,
				Requires: edge.Policy,
			})
		}

		plan.Jobs = append(plan.Jobs, planJob)
	}

	return plan
}

// convertSteps converts rendered steps to plan steps
func (r *Renderer) convertSteps(steps []model.RenderedStep) []model.PlanStep {
	planSteps := make([]model.PlanStep, len(steps))
	for i, step := range steps {
		planSteps[i] = model.PlanStep{
			Name:      step.Name,
			Run:       step.Run,
			Timeout:   formatDuration(step.Timeout),
			Retry:     step.Retry,
			OnFailure: step.OnFailure,
		}
	}
	return planSteps
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// RenderJSON renders plan as JSON
func (r *Renderer) RenderJSON(plan *model.Plan) ([]byte, error) {
	return json.MarshalIndent(plan, "", "  ")
}

// RenderYAML renders plan as YAML
func (r *Renderer) RenderYAML(plan *model.Plan) ([]byte, error) {
	return yaml.Marshal(plan)
}

// WritePlan writes plan to file (JSON or YAML based on extension)
func (r *Renderer) WritePlan(plan *model.Plan, path string) error {
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
		data, err = r.RenderYAML(plan)
	default:
		data, err = r.RenderJSON(plan)
	}
	if err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan to %s: %w", path, err)
	}
	return nil
}

// DebugDump outputs debug information about the plan
func (r *Renderer) DebugDump(plan *model.Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan: %s (%s)\n", plan.Metadata.Name, plan.Metadata.Description)
	fmt.Fprintf(&sb, "Jobs: %d, stages: %d\n\n", len(plan.Jobs), plan.Spec.Stages)

	for _, job := range plan.Jobs {
		fmt.Fprintf(&sb, "Job: %s\n", job.Name)
		fmt.Fprintf(&sb, "  Group: %s\n", job.Group)
		if job.Template != "" {
			fmt.Fprintf(&sb, "  Template: %s\n", job.Template)
		}
		if len(job.Coordinate) > 0 {
			fmt.Fprintf(&sb, "  Coordinate: %v\n", job.Coordinate)
		}
		fmt.Fprintf(&sb, "  Stage: %d\n", job.Stage)
		fmt.Fprintf(&sb, "  Steps: %d\n", len(job.Steps))
		fmt.Fprintf(&sb, "  DependsOn: %v\n", edgeNames(job.DependsOn))
		if job.Condition != "" {
			fmt.Fprintf(&sb, "  Condition: %s\n", job.Condition)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func edgeNames(edges []model.PlanEdge) []string {
	names := make([]string, len(edges))
	for i, edge := range edges {
		names[i] = edge.Job
		if edge.Requires != "" && edge.Requires != model.PolicySuccess {
			names[i] += " [" + string(edge.Requires) + "]"
		}
	}
	return names
}
