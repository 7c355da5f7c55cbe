package model

// RunState is the lifecycle state of a job instance within one run
type RunState string

const (
	StatePending   RunState = "Pending"
	StateBlocked   RunState = "Blocked"
	StateReady     RunState = "Ready"
	StateRunning   RunState = "Running"
	StateSucceeded RunState = "Succeeded"
	StateFailed    RunState = "Failed"
	StateSkipped   RunState = "Skipped"
	StateCanceled  RunState = "Canceled"
)

// Terminal reports whether no further transition can happen
func (s RunState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped, StateCanceled:
		return true
	}
	return false
}
