package model

// Plan is the compiled, execution-ready pipeline DAG
type Plan struct {
	APIVersion string    `json:"apiVersion" yaml:"apiVersion"`
	Kind       string    `json:"kind" yaml:"kind"`
	Metadata   Metadata  `json:"metadata" yaml:"metadata"`
	Spec       PlanSpec  `json:"spec" yaml:"spec"`
	Jobs       []PlanJob `json:"jobs" yaml:"jobs"`
}

// PlanSpec holds the pipeline-level gates carried into the plan
type PlanSpec struct {
	Trigger *Trigger `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	PR      *Trigger `json:"pr,omitempty" yaml:"pr,omitempty"`
	Stages  int      `json:"stages" yaml:"stages"`
}

// PlanJob is the execution unit in the final plan
type PlanJob struct {
	Name       string            `json:"name" yaml:"name"`
	Group      string            `json:"group" yaml:"group"`
	Template   string            `json:"template,omitempty" yaml:"template,omitempty"`
	Coordinate map[string]string `json:"coordinate,omitempty" yaml:"coordinate,omitempty"`
	Stage      int               `json:"stage" yaml:"stage"`
	Platform   string            `json:"platform,omitempty" yaml:"platform,omitempty"`
	Timeout    string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Condition  string            `json:"condition,omitempty" yaml:"condition,omitempty"`
	DependsOn  []PlanEdge        `json:"dependsOn" yaml:"dependsOn"`
	Steps      []PlanStep        `json:"steps" yaml:"steps"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// PlanEdge is a resolved dependency edge
type PlanEdge struct {
	Job      string           `json:"job" yaml:"job"`
	Requires DependencyPolicy `json:"requires" yaml:"requires"`
}

// PlanStep is a step in the final plan
type PlanStep struct {
	Name      string `json:"name" yaml:"name"`
	Run       string `json:"run" yaml:"run"`
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry     int    `json:"retry,omitempty" yaml:"retry,omitempty"`
	OnFailure string `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
}
