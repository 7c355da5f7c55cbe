package expand

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/template"
)

// Expander turns resolved job specs into concrete job instances. It remembers
// every name it produced, so one Expander must be used per pipeline.
type Expander struct {
	seen     map[string]string // instance name -> group
	renderer *template.Renderer
}

// NewExpander creates a new expander
func NewExpander() *Expander {
	return &Expander{
		seen:     make(map[string]string),
		renderer: template.NewRenderer(),
	}
}

// cell is one point of the cartesian product
type cell struct {
	values []any    // chosen item per axis
	keys   []string // rendered item per axis
}

// Expand produces one instance per point of the cartesian product over the
// job spec's sequence-valued parameters. Scalar parameters are held constant.
func (e *Expander) Expand(spec *model.JobSpec) ([]*model.JobInstance, error) {
	axes := make([]string, 0)
	for name, v := range spec.Parameters {
		if v.IsSequence() {
			if len(v.Items()) == 0 {
				return nil, model.NewDefinitionError(model.ErrEmptyMatrix, spec.Name, "parameter %q is an empty sequence", name)
			}
			axes = append(axes, name)
		}
	}
	sort.Strings(axes)

	cells := []cell{{}}
	for _, axis := range axes {
		items := spec.Parameters[axis].Items()
		next := make([]cell, 0, len(cells)*len(items))
		for _, c := range cells {
			for _, item := range items {
				next = append(next, cell{
					values: append(slices.Clone(c.values), item),
					keys:   append(slices.Clone(c.keys), model.FormatScalar(item)),
				})
			}
		}
		cells = next
	}

	slices.SortStableFunc(cells, func(a, b cell) int {
		return slices.Compare(a.keys, b.keys)
	})

	timeout, err := parseTimeout(spec.Name, spec.Timeout)
	if err != nil {
		return nil, err
	}

	instances := make([]*model.JobInstance, 0, len(cells))
	for _, c := range cells {
		inst := &model.JobInstance{
			Name:       instanceName(spec.Name, axes, c.keys),
			Group:      spec.Name,
			Template:   spec.Template,
			Parameters: make(map[string]any, len(spec.Parameters)),
			DependsOn:  append([]model.Dependency(nil), spec.DependsOn...),
			Condition:  spec.Condition,
			Timeout:    timeout,
		}
		for name, v := range spec.Parameters {
			inst.Parameters[name] = v.Raw()
		}
		if len(axes) > 0 {
			inst.Coordinate = make(map[string]string, len(axes))
			for i, axis := range axes {
				inst.Parameters[axis] = c.values[i]
				inst.Coordinate[axis] = c.keys[i]
			}
		}

		if group, exists := e.seen[inst.Name]; exists {
			return nil, model.NewDefinitionError(model.ErrDuplicateJobName, inst.Name,
				"produced by job %q and job %q", group, spec.Name)
		}
		e.seen[inst.Name] = spec.Name

		if err := e.renderPayload(inst, spec); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	return instances, nil
}

// instanceName is the group name, or name(k=v,...) for matrix instances
func instanceName(group string, axes, keys []string) string {
	if len(axes) == 0 {
		return group
	}
	pairs := make([]string, len(axes))
	for i, axis := range axes {
		pairs[i] = axis + "=" + keys[i]
	}
	return fmt.Sprintf("%s(%s)", group, strings.Join(pairs, ","))
}

// renderPayload renders platform, env and steps against the instance's parameters
func (e *Expander) renderPayload(inst *model.JobInstance, spec *model.JobSpec) error {
	data := make(map[string]any, len(inst.Parameters)+2)
	for k, v := range inst.Parameters {
		data[k] = v
	}
	data["Job"] = inst.Name
	data["Group"] = inst.Group

	render := func(field, text string) (string, error) {
		out, err := e.renderer.Render(spec.Name+"."+field, text, data)
		if err != nil {
			return "", model.NewDefinitionError(model.ErrInvalidTemplate, inst.Name, "%v", err)
		}
		return out, nil
	}

	var err error
	if inst.Platform, err = render("platform", spec.Platform); err != nil {
		return err
	}

	if len(spec.Env) > 0 {
		inst.Payload.Env = make(map[string]string, len(spec.Env))
		for k, v := range spec.Env {
			if inst.Payload.Env[k], err = render("env."+k, v); err != nil {
				return err
			}
		}
	}

	inst.Payload.Steps = make([]model.RenderedStep, 0, len(spec.Steps))
	for _, step := range spec.Steps {
		run, err := render("steps."+step.Name, step.Run)
		if err != nil {
			return err
		}
		timeout, err := parseTimeout(inst.Name, step.Timeout)
		if err != nil {
			return err
		}
		inst.Payload.Steps = append(inst.Payload.Steps, model.RenderedStep{
			Name:      step.Name,
			Run:       run,
			Timeout:   timeout,
			Retry:     step.Retry,
			OnFailure: step.OnFailure,
		})
	}
	return nil
}

func parseTimeout(subject, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, model.NewDefinitionError(model.ErrInvalidDeclaration, subject, "invalid timeout %q", s)
	}
	return d, nil
}
