package model

// Pipeline is the top-level declaration document
type Pipeline struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion"`
	Kind       string     `yaml:"kind" json:"kind"`
	Metadata   Metadata   `yaml:"metadata" json:"metadata"`
	Trigger    *Trigger   `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	PR         *Trigger   `yaml:"pr,omitempty" json:"pr,omitempty"`
	Include    []string   `yaml:"include,omitempty" json:"include,omitempty"`
	Templates  []Template `yaml:"templates,omitempty" json:"templates,omitempty"`
	Jobs       []JobEntry `yaml:"jobs" json:"jobs"`
}

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Triggers groups the pipeline-level gates
type Triggers struct {
	Push        *Trigger
	PullRequest *Trigger
}

// Triggers returns the pipeline-level gates of the declaration
func (p *Pipeline) Triggers() Triggers {
	return Triggers{Push: p.Trigger, PullRequest: p.PR}
}

// Trigger filters invocations by branch and changed paths
type Trigger struct {
	Branches Filter `yaml:"branches,omitempty" json:"branches,omitempty"`
	Paths    Filter `yaml:"paths,omitempty" json:"paths,omitempty"`
}

// Filter is an include/exclude glob list
type Filter struct {
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// TemplateLibrary is a standalone file of reusable templates
type TemplateLibrary struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion"`
	Kind       string     `yaml:"kind" json:"kind"`
	Metadata   Metadata   `yaml:"metadata" json:"metadata"`
	Templates  []Template `yaml:"templates" json:"templates"`
}

// Template is a reusable, parameterized job definition.
// Exactly one of Job and Template is set: a literal body or a nested reference.
type Template struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters  []ParameterSpec  `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Job         *JobBody         `yaml:"job,omitempty" json:"job,omitempty"`
	Template    string           `yaml:"template,omitempty" json:"template,omitempty"`
	With        map[string]Value `yaml:"with,omitempty" json:"with,omitempty"`
	Source      string           `yaml:"-" json:"-"` // file the template was loaded from
}

// ParameterSpec is a named parameter slot; a nil Default makes it required
type ParameterSpec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Default     *Value `yaml:"default,omitempty" json:"default,omitempty"`
}

// Required reports whether a binding must be supplied
func (p ParameterSpec) Required() bool {
	return p.Default == nil
}

// JobBody is the literal execution part of a job
type JobBody struct {
	Platform string            `yaml:"platform,omitempty" json:"platform,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Env      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Steps    []Step            `yaml:"steps" json:"steps"`
}

// JobEntry is one item of the pipeline's job list: inline steps or a template reference
type JobEntry struct {
	Name       string            `yaml:"name" json:"name"`
	Template   string            `yaml:"template,omitempty" json:"template,omitempty"`
	Parameters map[string]Value  `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Platform   string            `yaml:"platform,omitempty" json:"platform,omitempty"`
	Timeout    string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Steps      []Step            `yaml:"steps,omitempty" json:"steps,omitempty"`
	DependsOn  []Dependency      `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Condition  string            `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// IsTemplateRef reports whether the entry is bound to a template
func (e JobEntry) IsTemplateRef() bool {
	return e.Template != ""
}
