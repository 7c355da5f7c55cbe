// Package scheduler walks a job graph, dispatching ready jobs to an executor
// under a parallelism bound and propagating outcomes to their successors.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sourceplane/liteflow/internal/ctxlog"
	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/planner"
)

// DefaultGraceTimeout bounds how long an abort waits for running jobs
const DefaultGraceTimeout = 10 * time.Second

// ErrAlreadyRunning is returned when Run is called while a run is in progress
var ErrAlreadyRunning = errors.New("scheduler is already running")

var errJobTimeout = errors.New("job timeout")

// Executor runs one job instance and reports its completion. It should
// return promptly once ctx is canceled.
type Executor interface {
	Execute(ctx context.Context, job *model.JobInstance) model.ExecutionResult
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, job *model.JobInstance) model.ExecutionResult

// Execute calls f(ctx, job)
func (f ExecutorFunc) Execute(ctx context.Context, job *model.JobInstance) model.ExecutionResult {
	return f(ctx, job)
}

// Observer is notified of every state transition. Calls are made from the
// scheduler's event loop, one at a time.
type Observer interface {
	JobStateChanged(job *model.JobInstance, run model.JobRun)
}

// Options tunes a scheduler
type Options struct {
	// MaxParallel bounds concurrently running jobs; zero or less means no bound
	MaxParallel int
	// PlatformLimits bounds concurrently running jobs per platform
	PlatformLimits map[string]int
	// GraceTimeout bounds the wait for running jobs after an abort
	GraceTimeout time.Duration
	Observer     Observer
}

// Outcome is the terminal state of every job after a run
type Outcome struct {
	Runs       []model.JobRun // indexed like the graph's nodes
	Aborted    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Scheduler executes a job graph. A Scheduler may be reused for several
// runs, but not concurrently.
type Scheduler struct {
	graph    *planner.Graph
	executor Executor
	opts     Options
	running  atomic.Bool
}

// New creates a scheduler for graph
func New(graph *planner.Graph, executor Executor, opts Options) *Scheduler {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = graph.Len()
	}
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = DefaultGraceTimeout
	}
	return &Scheduler{
		graph:    graph,
		executor: executor,
		opts:     opts,
	}
}

// Run executes the graph until every job is terminal. Jobs named in excluded
// are Skipped before scheduling with the given reason. Canceling ctx aborts
// the run: waiting jobs are Canceled and running jobs get the cancellation
// and GraceTimeout to stop.
func (s *Scheduler) Run(ctx context.Context, excluded map[string]string) (*Outcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	r := newRun(ctx, s)
	r.start(excluded)
	r.loop()

	return &Outcome{
		Runs:       r.runs,
		Aborted:    r.aborting,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
	}, nil
}

// completion is the event a worker sends back to the loop
type completion struct {
	index      int
	result     model.ExecutionResult
	finishedAt time.Time
}

// run holds the state of one execution. Only the loop goroutine touches it.
type run struct {
	ctx       context.Context
	s         *Scheduler
	graph     *planner.Graph
	runs      []model.JobRun
	remaining []int  // predecessors not yet terminal
	cascaded  []bool // skipped because an edge policy was not met
	held      []bool // excluded, waiting for its predecessors before settling
	ready     []int  // sorted by node index
	inflight  map[int]bool
	platforms map[string]int
	done      chan completion
	aborting  bool
	startedAt time.Time
}

func newRun(ctx context.Context, s *Scheduler) *run {
	n := s.graph.Len()
	return &run{
		ctx:       ctx,
		s:         s,
		graph:     s.graph,
		runs:      make([]model.JobRun, n),
		remaining: make([]int, n),
		cascaded:  make([]bool, n),
		held:      make([]bool, n),
		inflight:  make(map[int]bool),
		platforms: make(map[string]int),
		done:      make(chan completion, n),
		startedAt: time.Now(),
	}
}

func (r *run) start(excluded map[string]string) {
	skipped := make([]int, 0, len(excluded))
	for _, node := range r.graph.Nodes() {
		r.runs[node.Index].State = model.StatePending
		r.remaining[node.Index] = len(node.Predecessors)
	}

	for _, node := range r.graph.Nodes() {
		if reason, ok := excluded[node.Job.Name]; ok {
			r.transition(node.Index, model.StateSkipped, reason)
			if len(node.Predecessors) == 0 {
				skipped = append(skipped, node.Index)
			} else {
				r.held[node.Index] = true
			}
			continue
		}
		if len(node.Predecessors) == 0 {
			r.transition(node.Index, model.StateReady, "")
			r.ready = append(r.ready, node.Index)
		} else {
			r.transition(node.Index, model.StateBlocked, "")
		}
	}

	for _, i := range skipped {
		r.settle(i)
	}
}

func (r *run) loop() {
	logger := ctxlog.FromContext(r.ctx)

	if r.ctx.Err() != nil {
		r.abort()
	}

	for {
		if !r.aborting {
			r.dispatch()
		}
		if len(r.inflight) == 0 {
			return
		}

		if r.aborting {
			r.drain()
			return
		}

		select {
		case c := <-r.done:
			r.complete(c)
		case <-r.ctx.Done():
			logger.Warn("pipeline aborted", "running", len(r.inflight), "cause", context.Cause(r.ctx))
			r.abort()
		}
	}
}

// dispatch starts ready jobs in declaration order while capacity allows
func (r *run) dispatch() {
	limits := r.s.opts.PlatformLimits
	kept := r.ready[:0]
	for _, i := range r.ready {
		platform := r.graph.Node(i).Job.Platform
		limit, limited := limits[platform]
		if len(r.inflight) >= r.s.opts.MaxParallel || (limited && limit > 0 && r.platforms[platform] >= limit) {
			kept = append(kept, i)
			continue
		}
		r.launch(i)
	}
	r.ready = kept
}

func (r *run) launch(i int) {
	job := r.graph.Node(i).Job
	r.inflight[i] = true
	r.platforms[job.Platform]++
	r.runs[i].StartedAt = time.Now()
	r.transition(i, model.StateRunning, "")

	ctx := ctxlog.WithLogger(r.ctx, ctxlog.FromContext(r.ctx).With("job", job.Name))
	go func() {
		result := r.s.execute(ctx, job)
		r.done <- completion{index: i, result: result, finishedAt: time.Now()}
	}()
}

func (r *run) complete(c completion) {
	if !r.inflight[c.index] {
		return // already forced to Canceled after the grace timeout
	}
	if !r.aborting && r.ctx.Err() != nil {
		r.abort()
	}
	job := r.graph.Node(c.index).Job
	delete(r.inflight, c.index)
	r.platforms[job.Platform]--

	jr := &r.runs[c.index]
	jr.FinishedAt = c.finishedAt
	jr.Logs = c.result.Logs
	jr.Artifacts = c.result.Artifacts
	jr.Err = c.result.Err

	state, reason := c.result.State, ""
	if c.result.Err != nil {
		reason = c.result.Err.Error()
	}
	if r.aborting && state == model.StateFailed {
		state, reason = model.StateCanceled, "canceled by abort"
	}
	r.transition(c.index, state, reason)

	if !r.aborting {
		r.settle(c.index)
	}
}

// settle propagates a terminal state to successors; successors whose
// predecessors are all terminal become Ready or, when an edge policy is not
// met, Skipped, which propagates in turn. An excluded job settles only once
// its own predecessors are terminal, and carries a failed edge onward.
func (r *run) settle(i int) {
	queue := []int{i}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, succ := range r.graph.Node(current).Successors {
			r.remaining[succ]--
			if r.remaining[succ] > 0 {
				continue
			}
			if r.held[succ] {
				r.held[succ] = false
				if _, blocked := r.unsatisfied(succ); blocked {
					r.cascaded[succ] = true
				}
				queue = append(queue, succ)
				continue
			}
			if r.runs[succ].State != model.StateBlocked {
				continue
			}
			if reason, blocked := r.unsatisfied(succ); blocked {
				r.cascaded[succ] = true
				r.transition(succ, model.StateSkipped, reason)
				queue = append(queue, succ)
				continue
			}
			r.transition(succ, model.StateReady, "")
			r.pushReady(succ)
		}
	}
}

// unsatisfied reports the first edge whose policy rejects its predecessor's
// state. Only jobs excluded before scheduling count as Skipped for the
// success policy; a cascaded skip behaves like the failure that caused it.
func (r *run) unsatisfied(i int) (string, bool) {
	for _, edge := range r.graph.Node(i).Predecessors {
		state := r.runs[edge.From].State
		cascade := state == model.StateSkipped && r.cascaded[edge.From] && edge.Policy == model.PolicySuccess
		if cascade || !edge.Policy.Satisfied(state) {
			return fmt.Sprintf("dependency %q is %s (requires %s)",
				r.graph.Node(edge.From).Job.Name, state, edge.Policy), true
		}
	}
	return "", false
}

func (r *run) pushReady(i int) {
	pos := sort.SearchInts(r.ready, i)
	r.ready = append(r.ready, 0)
	copy(r.ready[pos+1:], r.ready[pos:])
	r.ready[pos] = i
}

// abort cancels every job that has not started
func (r *run) abort() {
	r.aborting = true
	r.ready = nil
	for i := range r.runs {
		switch r.runs[i].State {
		case model.StatePending, model.StateBlocked, model.StateReady:
			r.transition(i, model.StateCanceled, "pipeline aborted")
		}
	}
}

// drain waits for running jobs to stop, up to the grace timeout
func (r *run) drain() {
	timer := time.NewTimer(r.s.opts.GraceTimeout)
	defer timer.Stop()

	for len(r.inflight) > 0 {
		select {
		case c := <-r.done:
			r.complete(c)
		case <-timer.C:
			ctxlog.FromContext(r.ctx).Warn("grace timeout elapsed", "running", len(r.inflight), "timeout", r.s.opts.GraceTimeout)
			for i := range r.runs {
				if r.inflight[i] {
					delete(r.inflight, i)
					r.runs[i].FinishedAt = time.Now()
					r.transition(i, model.StateCanceled, "did not stop within the grace timeout")
				}
			}
		}
	}
}

func (r *run) transition(i int, state model.RunState, reason string) {
	r.runs[i].State = state
	r.runs[i].Reason = reason

	job := r.graph.Node(i).Job
	logger := ctxlog.FromContext(r.ctx)
	switch state {
	case model.StateRunning:
		logger.Info("job started", "job", job.Name)
	case model.StateSucceeded, model.StateFailed, model.StateCanceled:
		logger.Info("job finished", "job", job.Name, "state", state, "reason", reason)
	case model.StateSkipped:
		logger.Info("job skipped", "job", job.Name, "reason", reason)
	default:
		logger.Debug("job state changed", "job", job.Name, "state", state)
	}

	if r.s.opts.Observer != nil {
		r.s.opts.Observer.JobStateChanged(job, r.runs[i])
	}
}

// execute runs one job with its timeout, converting panics and invalid
// results into failures
func (s *Scheduler) execute(ctx context.Context, job *model.JobInstance) model.ExecutionResult {
	if job.Timeout <= 0 {
		return s.invoke(ctx, job)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, job.Timeout, errJobTimeout)
	defer cancel()

	results := make(chan model.ExecutionResult, 1)
	go func() {
		results <- s.invoke(ctx, job)
	}()

	timedOut := func() bool {
		return errors.Is(context.Cause(ctx), errJobTimeout)
	}
	select {
	case res := <-results:
		if res.State != model.StateSucceeded && timedOut() {
			return model.Failed(res.Logs, fmt.Errorf("job timed out after %s", job.Timeout))
		}
		return res
	case <-ctx.Done():
		if timedOut() {
			return model.Failed("", fmt.Errorf("job timed out after %s", job.Timeout))
		}
		return <-results
	}
}

func (s *Scheduler) invoke(ctx context.Context, job *model.JobInstance) (res model.ExecutionResult) {
	defer func() {
		if p := recover(); p != nil {
			res = model.Failed("", fmt.Errorf("executor panicked: %v", p))
		}
	}()

	res = s.executor.Execute(ctx, job)
	switch res.State {
	case model.StateSucceeded, model.StateFailed:
	default:
		if res.Err == nil {
			res.Err = fmt.Errorf("executor reported non-terminal state %q", res.State)
		}
		res.State = model.StateFailed
	}
	return res
}
