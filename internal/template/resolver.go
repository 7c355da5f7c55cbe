// Package template resolves template references and parameter bindings
// into concrete job specs.
package template

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sourceplane/liteflow/internal/model"
)

// DefaultMaxDepth bounds nested template references
const DefaultMaxDepth = 8

// forwardRef matches a binding that forwards one outer parameter unchanged
var forwardRef = regexp.MustCompile(`^\s*\{\{\s*\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}\s*$`)

// Resolver expands named templates. It holds only immutable template
// definitions, so resolution has no side effects.
type Resolver struct {
	templates map[string]*model.Template
	maxDepth  int
	renderer  *Renderer
}

// NewResolver indexes templates by name; duplicate names are a definition error
func NewResolver(templates []model.Template, maxDepth int) (*Resolver, error) {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}

	r := &Resolver{
		templates: make(map[string]*model.Template, len(templates)),
		maxDepth:  maxDepth,
		renderer:  NewRenderer(),
	}
	for i := range templates {
		t := &templates[i]
		if prev, exists := r.templates[t.Name]; exists {
			return nil, model.NewDefinitionError(model.ErrDuplicateTemplate, t.Name,
				"declared in %s and %s", sourceOf(prev), sourceOf(t))
		}
		r.templates[t.Name] = t
	}
	return r, nil
}

// Lookup returns the template named name
func (r *Resolver) Lookup(name string) (*model.Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Names returns all template names in lexical order
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve expands templateRef with bindings into a JobSpec. The returned
// JobSpec carries the innermost template's name and fully bound parameters;
// job-level fields such as Name and DependsOn are left for the caller.
func (r *Resolver) Resolve(templateRef string, bindings map[string]model.Value) (*model.JobSpec, error) {
	return r.resolve(templateRef, bindings, 1, nil)
}

func (r *Resolver) resolve(ref string, bindings map[string]model.Value, depth int, chain []string) (*model.JobSpec, error) {
	if depth > r.maxDepth {
		return nil, model.NewDefinitionError(model.ErrTemplateRecursionLimit, ref,
			"nesting exceeds %d levels via %s", r.maxDepth, strings.Join(append(chain, ref), " -> "))
	}

	t, ok := r.templates[ref]
	if !ok {
		if len(chain) > 0 {
			return nil, model.NewDefinitionError(model.ErrUnknownTemplate, ref, "referenced from template %q", chain[len(chain)-1])
		}
		return nil, model.NewDefinitionError(model.ErrUnknownTemplate, ref, "no such template")
	}

	params, err := bind(t, bindings)
	if err != nil {
		return nil, err
	}
	chain = append(chain, ref)

	if t.Job != nil {
		return &model.JobSpec{
			Template:   t.Name,
			Parameters: params,
			Platform:   t.Job.Platform,
			Timeout:    t.Job.Timeout,
			Env:        copyEnv(t.Job.Env),
			Steps:      append([]model.Step(nil), t.Job.Steps...),
		}, nil
	}

	nested := make(map[string]model.Value, len(t.With))
	for name, value := range t.With {
		v, err := r.substitute(t.Name, name, value, params)
		if err != nil {
			return nil, err
		}
		nested[name] = v
	}
	return r.resolve(t.Template, nested, depth+1, chain)
}

// bind checks bindings against the template's parameter schema and fills defaults
func bind(t *model.Template, bindings map[string]model.Value) (map[string]model.Value, error) {
	declared := make(map[string]bool, len(t.Parameters))
	for _, p := range t.Parameters {
		declared[p.Name] = true
	}

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !declared[name] {
			return nil, model.NewDefinitionError(model.ErrUnknownParameter, t.Name, "parameter %q is not declared", name)
		}
	}

	params := make(map[string]model.Value, len(t.Parameters))
	for _, p := range t.Parameters {
		if v, ok := bindings[p.Name]; ok {
			params[p.Name] = v
			continue
		}
		if p.Required() {
			return nil, model.NewDefinitionError(model.ErrMissingParameter, t.Name, "parameter %q has no value and no default", p.Name)
		}
		params[p.Name] = *p.Default
	}
	return params, nil
}

// substitute evaluates a nested binding against the outer template's parameters
func (r *Resolver) substitute(tmplName, param string, value model.Value, outer map[string]model.Value) (model.Value, error) {
	data := plain(outer)
	key := tmplName + ".with." + param

	if !value.IsSequence() {
		s, ok := value.Raw().(string)
		if !ok {
			return value, nil
		}
		if m := forwardRef.FindStringSubmatch(s); m != nil {
			forwarded, exists := outer[m[1]]
			if !exists {
				return model.Value{}, model.NewDefinitionError(model.ErrInvalidTemplate, tmplName,
					"binding %q forwards undeclared parameter %q", param, m[1])
			}
			return forwarded, nil
		}
		rendered, err := r.renderer.Render(key, s, data)
		if err != nil {
			return model.Value{}, model.NewDefinitionError(model.ErrInvalidTemplate, tmplName, "%v", err)
		}
		return model.Scalar(rendered), nil
	}

	items := value.Items()
	out := make([]any, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			out[i] = item
			continue
		}
		rendered, err := r.renderer.Render(key, s, data)
		if err != nil {
			return model.Value{}, model.NewDefinitionError(model.ErrInvalidTemplate, tmplName, "%v", err)
		}
		out[i] = rendered
	}
	return model.Sequence(out...), nil
}

func plain(params map[string]model.Value) map[string]any {
	data := make(map[string]any, len(params))
	for k, v := range params {
		data[k] = v.Raw()
	}
	return data
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func sourceOf(t *model.Template) string {
	if t.Source == "" {
		return "<inline>"
	}
	return t.Source
}
