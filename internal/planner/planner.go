// Package planner compiles a normalized pipeline into a dependency graph of
// concrete job instances.
package planner

import (
	"github.com/sourceplane/liteflow/internal/expand"
	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/template"
)

// ConditionCompiler checks a job condition expression without evaluating it
type ConditionCompiler interface {
	Compile(expr string) error
}

// JobPlanner binds job entries to templates and expands them into instances
type JobPlanner struct {
	resolver   *template.Resolver
	conditions ConditionCompiler
}

// NewJobPlanner creates a planner. conditions may be nil, in which case job
// conditions are not checked until evaluation.
func NewJobPlanner(resolver *template.Resolver, conditions ConditionCompiler) *JobPlanner {
	return &JobPlanner{
		resolver:   resolver,
		conditions: conditions,
	}
}

// PlanJobs resolves, expands and links the pipeline's job entries
func (jp *JobPlanner) PlanJobs(pipeline *model.Pipeline) (*Graph, error) {
	expander := expand.NewExpander()
	instances := make([]*model.JobInstance, 0, len(pipeline.Jobs))

	for _, entry := range pipeline.Jobs {
		spec, err := jp.jobSpec(entry)
		if err != nil {
			return nil, err
		}

		if spec.Condition != "" && jp.conditions != nil {
			if err := jp.conditions.Compile(spec.Condition); err != nil {
				return nil, model.NewDefinitionError(model.ErrInvalidCondition, spec.Name, "%v", err)
			}
		}

		expanded, err := expander.Expand(spec)
		if err != nil {
			return nil, err
		}
		instances = append(instances, expanded...)
	}

	return Build(instances)
}

// jobSpec produces the pre-expansion spec of a job entry. Fields set on a
// templated entry override the template's body; env maps are merged.
func (jp *JobPlanner) jobSpec(entry model.JobEntry) (*model.JobSpec, error) {
	if !entry.IsTemplateRef() {
		return &model.JobSpec{
			Name:       entry.Name,
			Parameters: entry.Parameters,
			Platform:   entry.Platform,
			Timeout:    entry.Timeout,
			Env:        entry.Env,
			Steps:      entry.Steps,
			DependsOn:  entry.DependsOn,
			Condition:  entry.Condition,
		}, nil
	}

	spec, err := jp.resolver.Resolve(entry.Template, entry.Parameters)
	if err != nil {
		return nil, err
	}

	spec.Name = entry.Name
	spec.DependsOn = entry.DependsOn
	spec.Condition = entry.Condition
	if entry.Platform != "" {
		spec.Platform = entry.Platform
	}
	if entry.Timeout != "" {
		spec.Timeout = entry.Timeout
	}
	for k, v := range entry.Env {
		spec.Env[k] = v
	}
	return spec, nil
}
