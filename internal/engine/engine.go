// Package engine wires the pipeline stages together: load, normalize,
// resolve templates, expand matrices, build the graph, evaluate triggers,
// schedule and aggregate.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sourceplane/liteflow/internal/ctxlog"
	"github.com/sourceplane/liteflow/internal/loader"
	"github.com/sourceplane/liteflow/internal/metrics"
	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/normalize"
	"github.com/sourceplane/liteflow/internal/planner"
	"github.com/sourceplane/liteflow/internal/report"
	"github.com/sourceplane/liteflow/internal/scheduler"
	"github.com/sourceplane/liteflow/internal/template"
	"github.com/sourceplane/liteflow/internal/trigger"
)

// ReasonConditionFalse is recorded for jobs whose condition evaluated to false
const ReasonConditionFalse = "condition is false"

// CompileOptions selects the declaration to compile
type CompileOptions struct {
	PipelineFile string
	// TemplatePaths are extra template libraries: files, directories or globs
	TemplatePaths []string
	MaxDepth      int
}

// Compiled is a pipeline whose job graph has been built and checked
type Compiled struct {
	Pipeline  *model.Pipeline
	Resolver  *template.Resolver
	Evaluator *trigger.Evaluator
	Graph     *planner.Graph
}

// Compile loads a pipeline and turns it into a job graph. Every error
// that comes from the declaration itself is a *model.DefinitionError.
func Compile(ctx context.Context, opts CompileOptions) (*Compiled, error) {
	logger := ctxlog.FromContext(ctx)

	l, err := loader.New()
	if err != nil {
		return nil, err
	}

	logger.Debug("loading pipeline", "file", opts.PipelineFile)
	raw, err := l.LoadPipeline(opts.PipelineFile)
	if err != nil {
		return nil, err
	}
	for _, path := range opts.TemplatePaths {
		templates, err := l.LoadTemplates(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load templates from %s: %w", path, err)
		}
		raw.Templates = append(raw.Templates, templates...)
	}

	return CompilePipeline(ctx, raw, opts.MaxDepth)
}

// CompilePipeline compiles an already loaded declaration
func CompilePipeline(ctx context.Context, raw *model.Pipeline, maxDepth int) (*Compiled, error) {
	logger := ctxlog.FromContext(ctx)

	pipeline, err := normalize.NormalizePipeline(raw)
	if err != nil {
		return nil, err
	}

	resolver, err := template.NewResolver(pipeline.Templates, maxDepth)
	if err != nil {
		return nil, err
	}
	evaluator, err := trigger.NewEvaluator()
	if err != nil {
		return nil, err
	}

	graph, err := planner.NewJobPlanner(resolver, evaluator).PlanJobs(pipeline)
	if err != nil {
		return nil, err
	}
	logger.Debug("pipeline compiled",
		"pipeline", pipeline.Metadata.Name,
		"templates", len(resolver.Names()),
		"jobs", graph.Len())

	return &Compiled{
		Pipeline:  pipeline,
		Resolver:  resolver,
		Evaluator: evaluator,
		Graph:     graph,
	}, nil
}

// Select narrows the graph to the named jobs or groups and their
// transitive dependencies
func (c *Compiled) Select(targets []string) error {
	if len(targets) == 0 {
		return nil
	}
	graph, err := planner.NewDependencyResolver(c.Graph).Select(targets)
	if err != nil {
		return err
	}
	c.Graph = graph
	return nil
}

// RunOptions configures one execution of a compiled pipeline
type RunOptions struct {
	Invocation model.Invocation
	Executor   scheduler.Executor
	Scheduler  scheduler.Options
	// Metrics, when set, observes job transitions and the final report
	Metrics *metrics.Recorder
}

// Run evaluates the triggers, schedules every included job and returns the
// aggregated report. A pipeline that is not triggered yields a report in
// which every job is Skipped and Triggered is false.
func (c *Compiled) Run(ctx context.Context, opts RunOptions) (*model.PipelineReport, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", c.Pipeline.Metadata.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	inv := opts.Invocation
	if inv.Event == "" {
		inv.Event = model.EventManual
	}
	if !model.ValidEvent(inv.Event) {
		return nil, fmt.Errorf("unknown event %q", inv.Event)
	}

	triggered, reason := c.Evaluator.ShouldRun(c.Pipeline.Triggers(), inv)
	excluded, broken := c.gate(inv, triggered, reason)
	for name, err := range broken {
		logger.Warn("condition failed to evaluate", "job", name, "error", err)
	}
	if triggered {
		logger.Info("pipeline triggered", "event", inv.Event, "reason", reason, "jobs", c.Graph.Len(), "excluded", len(excluded))
	} else {
		logger.Info("pipeline not triggered", "event", inv.Event, "reason", reason)
	}

	schedOpts := opts.Scheduler
	var observers multiObserver
	if schedOpts.Observer != nil {
		observers = append(observers, schedOpts.Observer)
	}
	if opts.Metrics != nil {
		observers = append(observers, opts.Metrics)
	}
	if len(observers) > 0 {
		schedOpts.Observer = observers
	}

	executor := opts.Executor
	if len(broken) > 0 {
		executor = failBroken(broken, executor)
	}

	outcome, err := scheduler.New(c.Graph, executor, schedOpts).Run(ctx, excluded)
	if err != nil {
		return nil, err
	}

	rep := report.Aggregate(c.Graph, outcome, report.Meta{
		Pipeline:      c.Pipeline.Metadata.Name,
		Invocation:    inv,
		Triggered:     triggered,
		TriggerReason: reason,
	})
	if opts.Metrics != nil {
		opts.Metrics.ObserveReport(rep)
	}

	logger.Info("pipeline finished", "status", rep.Status, "duration", rep.Duration, "run_id", rep.RunID)
	return rep, nil
}

// gate maps job names to the reason they will not run. Jobs whose condition
// fails to evaluate are returned separately; they fail in place of running.
func (c *Compiled) gate(inv model.Invocation, triggered bool, reason string) (map[string]string, map[string]error) {
	excluded := make(map[string]string)
	broken := make(map[string]error)
	for _, job := range c.Graph.Instances() {
		if !triggered {
			excluded[job.Name] = reason
			continue
		}
		ok, err := c.Evaluator.IsIncluded(job, inv)
		if err != nil {
			broken[job.Name] = err
			continue
		}
		if !ok {
			excluded[job.Name] = ReasonConditionFalse
		}
	}
	return excluded, broken
}

// failBroken reports jobs with an unevaluable condition as Failed once
// their predecessors allow them to start
func failBroken(broken map[string]error, next scheduler.Executor) scheduler.Executor {
	return scheduler.ExecutorFunc(func(ctx context.Context, job *model.JobInstance) model.ExecutionResult {
		if err, ok := broken[job.Name]; ok {
			return model.Failed("", err)
		}
		return next.Execute(ctx, job)
	})
}

// ExcludedJobs lists the jobs a run with inv would skip up front, sorted
func (c *Compiled) ExcludedJobs(inv model.Invocation) []string {
	triggered, reason := c.Evaluator.ShouldRun(c.Pipeline.Triggers(), inv)
	excluded, _ := c.gate(inv, triggered, reason)
	names := make([]string, 0, len(excluded))
	for name := range excluded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type multiObserver []scheduler.Observer

func (m multiObserver) JobStateChanged(job *model.JobInstance, run model.JobRun) {
	for _, o := range m {
		o.JobStateChanged(job, run)
	}
}
