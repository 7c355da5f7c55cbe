package model

import "time"

// PipelineStatus is the overall outcome of a run
type PipelineStatus string

const (
	PipelineSucceeded PipelineStatus = "Succeeded"
	PipelineFailed    PipelineStatus = "Failed"
	PipelineCanceled  PipelineStatus = "Canceled"
)

// JobRun is the mutable per-job record kept by the scheduler
type JobRun struct {
	State      RunState
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
	Logs       string
	Artifacts  map[string]string
	Err        error
}

// Invocation event kinds
const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
	EventSchedule    = "schedule"
	EventManual      = "manual"
)

// ValidEvent reports whether event is a known invocation kind
func ValidEvent(event string) bool {
	switch event {
	case EventPush, EventPullRequest, EventSchedule, EventManual:
		return true
	}
	return false
}

// Invocation describes what caused a pipeline run
type Invocation struct {
	Event        string            `json:"event" yaml:"event"`
	Branch       string            `json:"branch,omitempty" yaml:"branch,omitempty"`
	TargetBranch string            `json:"targetBranch,omitempty" yaml:"targetBranch,omitempty"`
	ChangedFiles []string          `json:"changedFiles,omitempty" yaml:"changedFiles,omitempty"`
	Variables    map[string]string `json:"-" yaml:"-"`
}

// PipelineReport is the immutable result of one pipeline run
type PipelineReport struct {
	APIVersion    string         `json:"apiVersion" yaml:"apiVersion"`
	Kind          string         `json:"kind" yaml:"kind"`
	RunID         string         `json:"runId" yaml:"runId"`
	Pipeline      string         `json:"pipeline" yaml:"pipeline"`
	Invocation    Invocation     `json:"invocation" yaml:"invocation"`
	Triggered     bool           `json:"triggered" yaml:"triggered"`
	TriggerReason string         `json:"triggerReason,omitempty" yaml:"triggerReason,omitempty"`
	Status        PipelineStatus `json:"status" yaml:"status"`
	StartedAt     time.Time      `json:"startedAt" yaml:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt" yaml:"finishedAt"`
	Duration      string         `json:"duration" yaml:"duration"`
	Jobs          []JobReport    `json:"jobs" yaml:"jobs"`
}

// JobReport is the snapshot of one job in the report
type JobReport struct {
	Name       string            `json:"name" yaml:"name"`
	Group      string            `json:"group" yaml:"group"`
	State      RunState          `json:"state" yaml:"state"`
	Reason     string            `json:"reason,omitempty" yaml:"reason,omitempty"`
	StartedAt  *time.Time        `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	Duration   string            `json:"duration,omitempty" yaml:"duration,omitempty"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Logs       string            `json:"logs,omitempty" yaml:"logs,omitempty"`
	Artifacts  map[string]string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// Success is the exit indicator exposed to the invoking environment
func (r *PipelineReport) Success() bool {
	return r.Status == PipelineSucceeded
}

// ExitCode maps the overall status to a process exit code
func (r *PipelineReport) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// Count returns how many jobs ended in state s
func (r *PipelineReport) Count(s RunState) int {
	n := 0
	for _, j := range r.Jobs {
		if j.State == s {
			n++
		}
	}
	return n
}

// Job returns the report entry for name
func (r *PipelineReport) Job(name string) (JobReport, bool) {
	for _, j := range r.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobReport{}, false
}
