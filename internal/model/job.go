package model

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is a single execution unit within a job
type Step struct {
	Name      string `yaml:"name" json:"name"`
	Run       string `yaml:"run" json:"run"`
	Timeout   string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retry     int    `yaml:"retry,omitempty" json:"retry,omitempty"`
	OnFailure string `yaml:"onFailure,omitempty" json:"onFailure,omitempty"` // stop, continue
}

// DependencyPolicy decides which predecessor outcomes satisfy an edge
type DependencyPolicy string

const (
	// PolicySuccess accepts a Succeeded or Skipped predecessor
	PolicySuccess DependencyPolicy = "success"
	// PolicySucceeded accepts only a Succeeded predecessor
	PolicySucceeded DependencyPolicy = "succeeded"
	// PolicyAlways accepts any terminal predecessor
	PolicyAlways DependencyPolicy = "always"
	// PolicyFailure accepts only a Failed predecessor
	PolicyFailure DependencyPolicy = "failure"
)

// Valid reports whether p is a known policy
func (p DependencyPolicy) Valid() bool {
	switch p {
	case PolicySuccess, PolicySucceeded, PolicyAlways, PolicyFailure:
		return true
	}
	return false
}

// Satisfied reports whether a predecessor in state s satisfies the edge
func (p DependencyPolicy) Satisfied(s RunState) bool {
	switch p {
	case PolicySucceeded:
		return s == StateSucceeded
	case PolicyAlways:
		return s.Terminal()
	case PolicyFailure:
		return s == StateFailed
	default:
		return s == StateSucceeded || s == StateSkipped
	}
}

// Dependency names a predecessor job or job group.
// In YAML it is either a plain name or {job: name, requires: policy}.
type Dependency struct {
	Job      string           `yaml:"job" json:"job"`
	Requires DependencyPolicy `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// UnmarshalYAML accepts the short string form as well as the mapping form
func (d *Dependency) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		*d = Dependency{Job: name}
		return nil
	}

	type plain Dependency
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("line %d: invalid dependency: %w", node.Line, err)
	}
	*d = Dependency(p)
	return nil
}

// Policy returns the edge policy, defaulting to success
func (d Dependency) Policy() DependencyPolicy {
	if d.Requires == "" {
		return PolicySuccess
	}
	return d.Requires
}

// JobSpec is a resolved job definition before matrix expansion
type JobSpec struct {
	Name       string
	Template   string // template that supplied the body, empty for inline jobs
	Parameters map[string]Value
	Platform   string
	Timeout    string
	Env        map[string]string
	Steps      []Step
	DependsOn  []Dependency
	Condition  string
}

// JobInstance is a concrete, schedulable job produced by matrix expansion
type JobInstance struct {
	Name       string            `json:"name" yaml:"name"`
	Group      string            `json:"group" yaml:"group"`
	Template   string            `json:"template,omitempty" yaml:"template,omitempty"`
	Coordinate map[string]string `json:"coordinate,omitempty" yaml:"coordinate,omitempty"`
	Parameters map[string]any    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	DependsOn  []Dependency      `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Condition  string            `json:"condition,omitempty" yaml:"condition,omitempty"`
	Platform   string            `json:"platform,omitempty" yaml:"platform,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Payload    Payload           `json:"payload" yaml:"payload"`
}

// Payload is the opaque part handed to the executor
type Payload struct {
	Steps []RenderedStep    `json:"steps" yaml:"steps"`
	Env   map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// RenderedStep is a step with all templates resolved
type RenderedStep struct {
	Name      string        `json:"name" yaml:"name"`
	Run       string        `json:"run" yaml:"run"`
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry     int           `json:"retry,omitempty" yaml:"retry,omitempty"`
	OnFailure string        `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
}

// ExecutionResult is the completion event reported by an executor
type ExecutionResult struct {
	State     RunState
	Logs      string
	Artifacts map[string]string
	Err       error
}

// Succeeded builds a successful result
func Succeeded(logs string) ExecutionResult {
	return ExecutionResult{State: StateSucceeded, Logs: logs}
}

// Failed builds a failed result
func Failed(logs string, err error) ExecutionResult {
	return ExecutionResult{State: StateFailed, Logs: logs, Err: err}
}
