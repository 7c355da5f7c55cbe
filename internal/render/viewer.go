package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourceplane/liteflow/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════\n"

// PlanViewer provides human-readable visualization of a plan DAG
type PlanViewer struct {
	plan *model.Plan
}

// NewPlanViewer creates a new plan viewer
func NewPlanViewer(plan *model.Plan) *PlanViewer {
	return &PlanViewer{plan: plan}
}

// ViewDAG returns a tree view of the DAG: stages, then the jobs in each
// stage with their dependencies and steps
func (pv *PlanViewer) ViewDAG() string {
	if len(pv.plan.Jobs) == 0 {
		return "No jobs in plan"
	}

	stageMap := make(map[int][]*model.PlanJob)
	groups := make(map[string]bool)
	for i := range pv.plan.Jobs {
		job := &pv.plan.Jobs[i]
		stageMap[job.Stage] = append(stageMap[job.Stage], job)
		groups[job.Group] = true
	}

	stages := make([]int, 0, len(stageMap))
	for stage := range stageMap {
		stages = append(stages, stage)
	}
	sort.Ints(stages)

	var sb strings.Builder
	for i, stage := range stages {
		isLastStage := i == len(stages)-1

		stagePrefix := "├─ "
		stageConnector := "│  "
		if isLastStage {
			stagePrefix = "└─ "
			stageConnector = "   "
		}
		jobs := stageMap[stage]
		fmt.Fprintf(&sb, "%sstage %d (%d jobs)\n", stagePrefix, stage, len(jobs))

		for j, job := range jobs {
			isLastJob := j == len(jobs)-1

			jobPrefix := stageConnector + "├─ "
			jobConnector := stageConnector + "│  "
			if isLastJob {
				jobPrefix = stageConnector + "└─ "
				jobConnector = stageConnector + "   "
			}

			jobLine := jobPrefix + job.Name
			if job.Platform != "" {
				jobLine += fmt.Sprintf(" [%s]", job.Platform)
			}
			if job.Timeout != "" {
				jobLine += fmt.Sprintf(" (timeout:%s)", job.Timeout)
			}
			if job.Condition != "" {
				jobLine += fmt.Sprintf(" if %s", job.Condition)
			}
			sb.WriteString(jobLine + "\n")

			deps := edgeNames(job.DependsOn)
			total := len(deps) + len(job.Steps)
			n := 0
			for _, dep := range deps {
				n++
				fmt.Fprintf(&sb, "%s%s(depends on) %s\n", jobConnector, branch(n == total), dep)
			}
			for _, step := range job.Steps {
				n++
				stepLine := jobConnector + branch(n == total) + step.Name
				if step.Run != "" {
					stepLine += " | " + truncate(step.Run, 60)
				}
				sb.WriteString(stepLine + "\n")
			}
		}
	}

	sb.WriteString("\n" + rule)
	fmt.Fprintf(&sb, "Summary: %d stages, %d job groups, %d jobs\n", len(stages), len(groups), len(pv.plan.Jobs))

	return sb.String()
}

// ViewByJob shows every instance of a job group, or a single instance
func (pv *PlanViewer) ViewByJob(name string) string {
	var matchingJobs []*model.PlanJob
	for i := range pv.plan.Jobs {
		job := &pv.plan.Jobs[i]
		if job.Group == name || job.Name == name {
			matchingJobs = append(matchingJobs, job)
		}
	}

	if len(matchingJobs) == 0 {
		return fmt.Sprintf("No jobs found for: %s", name)
	}

	var sb strings.Builder
	header := name
	if matchingJobs[0].Template != "" {
		header += fmt.Sprintf(" [%s]", matchingJobs[0].Template)
	}
	sb.WriteString(header + "\n")
	sb.WriteString(rule + "\n")

	for i, job := range matchingJobs {
		prefix, connector := "├─ ", "│  "
		if i == len(matchingJobs)-1 {
			prefix, connector = "└─ ", "   "
		}

		fmt.Fprintf(&sb, "%s%s\n", prefix, job.Name)
		fmt.Fprintf(&sb, "%s  Stage: %d\n", connector, job.Stage)
		if len(job.Coordinate) > 0 {
			axes := make([]string, 0, len(job.Coordinate))
			for axis := range job.Coordinate {
				axes = append(axes, axis)
			}
			sort.Strings(axes)
			for _, axis := range axes {
				fmt.Fprintf(&sb, "%s  %s: %s\n", connector, axis, job.Coordinate[axis])
			}
		}
		if job.Platform != "" {
			fmt.Fprintf(&sb, "%s  Platform: %s\n", connector, job.Platform)
		}
		if job.Timeout != "" {
			fmt.Fprintf(&sb, "%s  Timeout: %s\n", connector, job.Timeout)
		}
		if job.Condition != "" {
			fmt.Fprintf(&sb, "%s  Condition: %s\n", connector, job.Condition)
		}

		if len(job.DependsOn) > 0 {
			fmt.Fprintf(&sb, "%s  Dependencies:\n", connector)
			for _, dep := range edgeNames(job.DependsOn) {
				fmt.Fprintf(&sb, "%s    %s\n", connector, dep)
			}
		}

		if len(job.Steps) > 0 {
			fmt.Fprintf(&sb, "%s  Steps:\n", connector)
			for j, step := range job.Steps {
				fmt.Fprintf(&sb, "%s    %s%s\n", connector, branch(j == len(job.Steps)-1), step.Name)
				if step.Run != "" {
					fmt.Fprintf(&sb, "%s       Run: %s\n", connector, step.Run)
				}
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// ViewDependencies shows job dependencies in a focused way
func (pv *PlanViewer) ViewDependencies() string {
	if len(pv.plan.Jobs) == 0 {
		return "No jobs in plan"
	}

	var sb strings.Builder
	sb.WriteString("Job Dependencies\n")
	sb.WriteString(rule + "\n")

	jobs := make([]*model.PlanJob, len(pv.plan.Jobs))
	for i := range pv.plan.Jobs {
		jobs[i] = &pv.plan.Jobs[i]
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].Name < jobs[b].Name
	})

	for i, job := range jobs {
		fmt.Fprintf(&sb, "%s%s (stage %d)\n", branch(i == len(jobs)-1), job.Name, job.Stage)

		if len(job.DependsOn) == 0 {
			sb.WriteString("   (no dependencies)\n")
		} else {
			deps := edgeNames(job.DependsOn)
			for j, dep := range deps {
				fmt.Fprintf(&sb, "  %s(depends on) %s\n", branch(j == len(deps)-1), dep)
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func branch(last bool) string {
	if last {
		return "└─ "
	}
	return "├─ "
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
