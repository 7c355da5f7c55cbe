package normalize

import (
	"fmt"
	"strings"

	"github.com/sourceplane/liteflow/internal/model"
)

// DefaultPipelineName is used when the declaration carries no metadata name
const DefaultPipelineName = "pipeline"

// NormalizePipeline transforms a raw declaration into canonical form:
// names trimmed, empty collections initialised, edge policies defaulted and
// branch filters stripped of refs/heads/. The input is not modified.
func NormalizePipeline(pipeline *model.Pipeline) (*model.Pipeline, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}

	normalized := *pipeline
	normalized.Metadata.Name = strings.TrimSpace(normalized.Metadata.Name)
	if normalized.Metadata.Name == "" {
		normalized.Metadata.Name = DefaultPipelineName
	}
	normalized.Trigger = normalizeTrigger(pipeline.Trigger)
	normalized.PR = normalizeTrigger(pipeline.PR)

	normalized.Templates = make([]model.Template, 0, len(pipeline.Templates))
	for _, tmpl := range pipeline.Templates {
		tmpl.Name = strings.TrimSpace(tmpl.Name)
		if tmpl.Name == "" {
			return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, "", "template must have a name")
		}
		if (tmpl.Job == nil) == (tmpl.Template == "") {
			return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, tmpl.Name, "template must declare exactly one of job or template")
		}
		for _, param := range tmpl.Parameters {
			if strings.TrimSpace(param.Name) == "" {
				return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, tmpl.Name, "parameter must have a name")
			}
		}
		normalized.Templates = append(normalized.Templates, tmpl)
	}

	seen := make(map[string]bool, len(pipeline.Jobs))
	normalized.Jobs = make([]model.JobEntry, 0, len(pipeline.Jobs))
	for _, entry := range pipeline.Jobs {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.Template = strings.TrimSpace(entry.Template)
		if entry.Name == "" {
			entry.Name = entry.Template
		}
		if entry.Name == "" {
			return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, "", "job must have a name")
		}
		if seen[entry.Name] {
			return nil, model.NewDefinitionError(model.ErrDuplicateJobName, entry.Name, "job declared more than once")
		}
		seen[entry.Name] = true

		if entry.IsTemplateRef() == (len(entry.Steps) > 0) {
			return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, entry.Name, "job must declare exactly one of steps or template")
		}

		if entry.Parameters == nil {
			entry.Parameters = make(map[string]model.Value)
		}
		if entry.Env == nil {
			entry.Env = make(map[string]string)
		}
		entry.Condition = strings.TrimSpace(entry.Condition)

		deps := make([]model.Dependency, 0, len(entry.DependsOn))
		for _, dep := range entry.DependsOn {
			dep.Job = strings.TrimSpace(dep.Job)
			if dep.Job == "" {
				return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, entry.Name, "dependsOn entry must name a job")
			}
			// Default condition
			if dep.Requires == "" {
				dep.Requires = model.PolicySuccess
			}
			if !dep.Requires.Valid() {
				return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, entry.Name, "unknown dependency policy %q for %s", dep.Requires, dep.Job)
			}
			deps = append(deps, dep)
		}
		entry.DependsOn = deps

		normalized.Jobs = append(normalized.Jobs, entry)
	}

	return &normalized, nil
}

func normalizeTrigger(trigger *model.Trigger) *model.Trigger {
	if trigger == nil {
		return nil
	}
	out := *trigger
	out.Branches.Include = trimRefs(trigger.Branches.Include)
	out.Branches.Exclude = trimRefs(trigger.Branches.Exclude)
	return &out
}

func trimRefs(patterns []string) []string {
	if patterns == nil {
		return nil
	}
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, strings.TrimPrefix(strings.TrimSpace(p), "refs/heads/"))
	}
	return out
}
